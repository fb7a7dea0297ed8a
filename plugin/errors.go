package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPlugin indicates that no plugin is registered under the requested name.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrUnknownMethod indicates that the plugin exists but has no such method.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrInvalidPlugin indicates a registration that cannot be accepted.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrArgumentType indicates that an argument cannot be passed to a reflected method.
	ErrArgumentType = errors.New("argument type mismatch")
)

// Resolution error kinds.
const (
	KindUnknownPlugin = "UnknownPlugin"
	KindUnknownMethod = "UnknownMethod"
)

// ResolutionError is returned by Registry.Resolve. It unwraps to
// ErrUnknownPlugin or ErrUnknownMethod depending on Kind.
type ResolutionError struct {
	Kind   string
	Plugin string
	Method string
}

func (e *ResolutionError) Error() string {
	if e.Kind == KindUnknownMethod {
		return fmt.Sprintf("plugin %q has no method %q", e.Plugin, e.Method)
	}
	return fmt.Sprintf("unknown plugin %q", e.Plugin)
}

// Unwrap returns the sentinel matching Kind.
func (e *ResolutionError) Unwrap() error {
	switch e.Kind {
	case KindUnknownPlugin:
		return ErrUnknownPlugin
	case KindUnknownMethod:
		return ErrUnknownMethod
	default:
		return nil
	}
}
