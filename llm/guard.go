package llm

import (
	"context"
	"time"

	"github.com/becomeliminal/recall/core"
)

// GuardedModel bounds every call with a timeout and routes it through a breaker.
// A timed out call is an ordinary failure for the caller.
type GuardedModel struct {
	model   Model
	breaker *Breaker
	timeout time.Duration
}

var _ Model = (*GuardedModel)(nil)

// Guarded wraps model. A nil breaker disables circuit breaking; a zero
// timeout disables the per-call deadline.
func Guarded(model Model, breaker *Breaker, timeout time.Duration) *GuardedModel {
	return &GuardedModel{model: model, breaker: breaker, timeout: timeout}
}

func (g *GuardedModel) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *GuardedModel) run(ctx context.Context, fn func() (string, error)) (string, error) {
	if g.breaker == nil {
		return fn()
	}
	return g.breaker.Execute(ctx, fn)
}

// Invoke calls the wrapped model under the timeout and breaker.
func (g *GuardedModel) Invoke(ctx context.Context, messages []core.Message, opts ...CallOption) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.run(ctx, func() (string, error) {
		return g.model.Invoke(ctx, messages, opts...)
	})
}

// Stream calls the wrapped model under the breaker. The timeout is not
// applied here; the caller's context bounds long streams.
func (g *GuardedModel) Stream(ctx context.Context, messages []core.Message, callback StreamCallback, opts ...CallOption) (string, error) {
	return g.run(ctx, func() (string, error) {
		return g.model.Stream(ctx, messages, callback, opts...)
	})
}
