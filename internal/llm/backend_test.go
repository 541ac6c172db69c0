package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hipson47/Worm/internal/config"
)

// fakeBackend scripts Complete responses for decorator tests.
type fakeBackend struct {
	out   string
	err   error
	delay time.Duration
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.out, f.err
}

func (f *fakeBackend) Name() string { return "fake/model" }

func TestWithTimeout_Success(t *testing.T) {
	health := &Health{}
	b := WithTimeout(&fakeBackend{out: "ok"}, time.Second, health)

	out, err := b.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "fake/model", b.Name())
	assert.True(t, health.Reachable())
	assert.NoError(t, health.LastError())
}

func TestWithTimeout_FailureRecordsHealth(t *testing.T) {
	health := &Health{}
	boom := errors.New("boom")
	b := WithTimeout(&fakeBackend{err: boom}, time.Second, health)

	_, err := b.Complete(context.Background(), "prompt")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.ErrorIs(t, err, boom)
	assert.False(t, health.Reachable())
	assert.Error(t, health.LastError())

	// A later success clears the failure state.
	ok := WithTimeout(&fakeBackend{out: "ok"}, time.Second, health)
	_, err = ok.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.True(t, health.Reachable())
}

func TestWithTimeout_DeadlineEnforced(t *testing.T) {
	health := &Health{}
	b := WithTimeout(&fakeBackend{out: "late", delay: time.Second}, 20*time.Millisecond, health)

	start := time.Now()
	_, err := b.Complete(context.Background(), "prompt")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, health.Reachable())
}

func TestHealth_NeverCalledIsReachable(t *testing.T) {
	h := &Health{}
	assert.True(t, h.Reachable())
}

func TestNew_DisabledProvider(t *testing.T) {
	b, err := New(config.BackendConfig{Provider: "none"}, &Health{})
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = New(config.BackendConfig{}, &Health{})
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestNew_ConfiguredProviders(t *testing.T) {
	cfg := config.BackendConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   config.Secret("sk-test"),
		Timeout:  config.Duration(time.Second),
	}
	b, err := New(cfg, &Health{})
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "openai/gpt-4o-mini", b.Name())

	cfg.Provider = "anthropic"
	cfg.Model = "claude-sonnet-4-5"
	b, err = New(cfg, &Health{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", b.Name())
}
