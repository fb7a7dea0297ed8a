package thunder

import (
	"context"
	"log/slog"
	"time"

	"github.com/zero-day-ai/thunder/promise"
)

// Call invokes method on the named plugin and returns a promise for the
// outcome.
//
// Call never panics and never fails synchronously. An unknown plugin or
// method, an error returned by the method, a panic inside it and a rejected
// promise it returns all reject the returned promise. If the last argument
// is a promise.Callback or a func(error, any) it is stripped from the
// arguments and invoked once with the outcome, through the scheduler.
//
// The method itself runs synchronously inside Call.
func (c *Client) Call(ctx context.Context, pluginName, method string, args ...any) *promise.Promise {
	return c.dispatch(ctx, pluginName, method, args)
}

func (c *Client) dispatch(ctx context.Context, pluginName, method string, args []any) *promise.Promise {
	if ctx == nil {
		ctx = context.Background()
	}
	args, cb := splitCallback(args)

	started := time.Now()
	ctx, span := c.tel.start(ctx, pluginName, method)

	var p *promise.Promise
	fn, err := c.registry.Resolve(pluginName, method)
	if err != nil {
		p = promise.From(c.sched, nil, err)
	} else {
		p = promise.Try(c.sched, func() (any, error) {
			return fn(ctx, args...)
		})
	}

	p.Observe(func(_ any, err error) {
		c.tel.finish(ctx, span, pluginName, method, started, err)

		attrs := []any{
			slog.String("plugin", pluginName),
			slog.String("method", method),
			slog.Duration("duration", time.Since(started)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			c.logger.Debug("call rejected", attrs...)
			return
		}
		c.logger.Debug("call fulfilled", attrs...)
	})

	return p.Callback(cb)
}

// splitCallback removes a trailing completion callback from args.
func splitCallback(args []any) ([]any, promise.Callback) {
	if len(args) == 0 {
		return args, nil
	}

	last := len(args) - 1
	switch cb := args[last].(type) {
	case promise.Callback:
		return args[:last], cb
	case func(error, any):
		return args[:last], cb
	default:
		return args, nil
	}
}
