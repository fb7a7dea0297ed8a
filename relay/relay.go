package relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zero-day-ai/thunder/notify"
)

// DefaultPrefix is the key prefix used when RedisOptions.Prefix is empty.
const DefaultPrefix = "thunder:events"

// DefaultHistory is the history length used when RedisOptions.History is zero.
const DefaultHistory = 100

// Message is the payload written to Redis for each event.
type Message struct {
	ID          string       `json:"id"`
	Event       notify.Event `json:"event"`
	PublishedAt int64        `json:"published_at"`
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Prefix for channel and key names
	Prefix string

	// History is the number of messages kept in the history list. Negative
	// disables the history.
	History int

	Logger *slog.Logger
}

// RedisRelay publishes events to Redis.
type RedisRelay struct {
	client  *redis.Client
	prefix  string
	history int
	logger  *slog.Logger
}

var _ notify.Sink = (*RedisRelay)(nil)

// NewRedisRelay connects to Redis and returns a relay.
func NewRedisRelay(opts RedisOptions) (*RedisRelay, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.History == 0 {
		opts.History = DefaultHistory
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRelay{
		client:  client,
		prefix:  strings.TrimSuffix(opts.Prefix, ":"),
		history: opts.History,
		logger:  opts.Logger.With("component", "relay"),
	}, nil
}

// Channel returns the pub/sub channel for plugin and event. Either part may
// be a glob pattern when used with Listen.
func (r *RedisRelay) Channel(plugin, event string) string {
	return formatKeyName(r.prefix, plugin, event)
}

// Publish writes ev to its channel and to the history list.
func (r *RedisRelay) Publish(ctx context.Context, ev notify.Event) error {
	msg := Message{
		ID:          uuid.NewString(),
		Event:       ev,
		PublishedAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := r.Channel(ev.Plugin, ev.Name)

	pipe := r.client.Pipeline()
	pipe.Publish(ctx, channel, data)
	if r.history > 0 {
		key := r.historyKey()
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(r.history-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}

	r.logger.Debug("event relayed", slog.String("channel", channel), slog.String("id", msg.ID))
	return nil
}

// Listen subscribes to events matching the plugin and event glob patterns.
// The returned channel is closed when ctx is done.
func (r *RedisRelay) Listen(ctx context.Context, plugin, event string) (<-chan Message, error) {
	pattern := r.Channel(plugin, event)
	pubsub := r.client.PSubscribe(ctx, pattern)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to pattern %s: %w", pattern, err)
	}

	out := make(chan Message)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					r.logger.Warn("discarding malformed message",
						slog.String("channel", m.Channel),
						slog.String("error", err.Error()))
					continue
				}

				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// History returns up to n of the most recent messages, newest first.
func (r *RedisRelay) History(ctx context.Context, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := r.client.LRange(ctx, r.historyKey(), 0, int64(n-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Close closes the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

func (r *RedisRelay) historyKey() string {
	return formatKeyName(r.prefix, "history")
}

func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}
