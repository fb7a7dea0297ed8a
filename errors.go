package thunder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for client-level failures. Plugin resolution failures use
// plugin.ErrUnknownPlugin and plugin.ErrUnknownMethod.
var (
	// ErrInvalidConfig indicates the configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("client closed")
)

// Error kinds categorize errors by their type.
const (
	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindTransport represents errors talking to the device.
	KindTransport = "transport"

	// KindNotification represents subscription failures.
	KindNotification = "notification"

	// KindInternal represents internal client errors.
	KindInternal = "internal"
)

// Error wraps an underlying error with the operation that failed and its
// category. It works with errors.Is and errors.As.
//
//	err := &Error{
//		Op:   "Client.Subscribe",
//		Kind: KindNotification,
//		Err:  cause,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "New", "Client.Subscribe").
	Op string

	// Kind categorizes the error (e.g., KindConfiguration).
	Kind string

	// Err is the underlying error.
	Err error

	// Context holds optional debugging details such as plugin or event names.
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("thunder: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("thunder: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("thunder: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target *Error by Kind (and Op, when the target sets one) and
// otherwise delegates to the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	merged := make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	newErr.Context = merged
	return &newErr
}

// NewConfigurationError creates an Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewTransportError creates an Error with KindTransport.
func NewTransportError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Err: err}
}

// NewNotificationError creates an Error with KindNotification.
func NewNotificationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotification, Err: err}
}

// NewInternalError creates an Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// CloseWithLog closes closer and logs a failure at warning level. It is
// meant for defer statements. A nil logger selects slog.Default().
//
//	defer thunder.CloseWithLog(relay, logger, "redis relay")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
