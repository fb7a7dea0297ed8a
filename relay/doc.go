// Package relay forwards device events to Redis so other processes can
// consume them.
//
// RedisRelay implements notify.Sink. Every event is published as a JSON
// Message on a pub/sub channel and appended to a capped history list.
//
// # Redis Key Schema
//
//   - <prefix>:<plugin>:<event> - Pub/Sub channel for live events
//   - <prefix>:history - List of the most recent messages (LPUSH/LTRIM)
//
// The default prefix is "thunder:events".
//
// # Usage
//
//	r, err := relay.NewRedisRelay(relay.RedisOptions{URL: "redis://localhost:6379"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close()
//
//	client, err := thunder.New(cfg, thunder.WithSink(r))
//
// Consuming from another process:
//
//	msgs, err := r.Listen(ctx, "Controller", "*")
//	for msg := range msgs {
//		fmt.Println(msg.Event.Plugin, msg.Event.Name)
//	}
//
// # Thread Safety
//
// RedisRelay is safe for concurrent use by multiple goroutines.
package relay
