package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm"
)

type stubModel struct {
	calls int
	delay time.Duration
	reply string
	err   error
}

func (s *stubModel) Invoke(ctx context.Context, _ []core.Message, _ ...llm.CallOption) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func (s *stubModel) Stream(ctx context.Context, msgs []core.Message, cb llm.StreamCallback, opts ...llm.CallOption) (string, error) {
	out, err := s.Invoke(ctx, msgs, opts...)
	if err == nil && cb != nil {
		cb(out, false)
		cb("", true)
	}
	return out, err
}

func TestGuarded_TimeoutIsFailure(t *testing.T) {
	stub := &stubModel{delay: time.Second, reply: "late"}
	g := llm.Guarded(stub, nil, 20*time.Millisecond)

	_, err := g.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGuarded_BreakerOpens(t *testing.T) {
	stub := &stubModel{err: errors.New("backend down")}
	breaker := llm.NewBreaker("test", llm.BreakerConfig{
		MaxFailures:          2,
		OpenTimeout:          time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	g := llm.Guarded(stub, breaker, time.Second)

	for i := 0; i < 2; i++ {
		_, err := g.Invoke(context.Background(), nil)
		require.Error(t, err)
	}
	assert.Equal(t, "open", breaker.State())

	_, err := g.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, llm.ErrCircuitOpen)
	assert.Equal(t, 2, stub.calls)
}

func TestGuarded_Passthrough(t *testing.T) {
	stub := &stubModel{reply: "ok"}
	g := llm.Guarded(stub, llm.NewBreaker("ok", llm.DefaultBreakerConfig()), time.Second)

	out, err := g.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	var got string
	out, err = g.Stream(context.Background(), nil, func(chunk string, done bool) { got += chunk })
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "ok", got)
}
