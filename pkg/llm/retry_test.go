package llm_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/apperror"
	"repochat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	errs  []error
	calls int
	reply string
}

func (s *scriptedProvider) next() (string, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return "", s.errs[s.calls-1]
	}
	return s.reply, nil
}

func (s *scriptedProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return s.next()
}

func (s *scriptedProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return s.next()
}

func fastRetry(maxRetries int) llm.RetryConfig {
	return llm.RetryConfig{MaxRetries: maxRetries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryingProvider(t *testing.T) {
	throttled := &llm.StatusError{Provider: "fake", StatusCode: http.StatusTooManyRequests}
	unavailable := &llm.StatusError{Provider: "fake", StatusCode: http.StatusServiceUnavailable}
	badRequest := &llm.StatusError{Provider: "fake", StatusCode: http.StatusBadRequest}

	tests := []struct {
		name       string
		errs       []error
		maxRetries int
		wantCalls  int
		wantErr    bool
	}{
		{name: "first attempt succeeds", maxRetries: 2, wantCalls: 1},
		{name: "recovers after throttling", errs: []error{throttled, unavailable}, maxRetries: 2, wantCalls: 3},
		{name: "gives up after max retries", errs: []error{throttled, throttled, throttled}, maxRetries: 2, wantCalls: 3, wantErr: true},
		{name: "client error is final", errs: []error{badRequest}, maxRetries: 2, wantCalls: 1, wantErr: true},
		{name: "zero retries", errs: []error{unavailable}, maxRetries: 0, wantCalls: 1, wantErr: true},
		{name: "transport error retried", errs: []error{errors.New("connection reset")}, maxRetries: 1, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &scriptedProvider{errs: tt.errs, reply: "ok"}
			p := llm.WithRetry(fake, fastRetry(tt.maxRetries), logger.NewNopLogger())

			out, err := p.Generate(context.Background(), "hi")

			assert.Equal(t, tt.wantCalls, fake.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperror.ErrModelCallFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", out)
		})
	}
}

func TestRetryingProvider_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &scriptedProvider{errs: []error{context.Canceled}}
	p := llm.WithRetry(fake, fastRetry(5), logger.NewNopLogger())

	_, err := p.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, fake.calls, 1)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, llm.IsRetryable(nil))
	assert.False(t, llm.IsRetryable(context.DeadlineExceeded))
	assert.False(t, llm.IsRetryable(&llm.StatusError{StatusCode: http.StatusUnauthorized}))
	assert.True(t, llm.IsRetryable(&llm.StatusError{StatusCode: http.StatusBadGateway}))
	assert.True(t, llm.IsRetryable(errors.New("dial tcp: timeout")))
}
