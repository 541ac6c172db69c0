// Package llm wraps the external reasoning backend behind a small interface
// with a bounded timeout and health tracking. Callers treat every error from
// Complete as "backend unavailable" and take their deterministic fallback
// path; nothing in this package is allowed to block unboundedly.
package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBackendUnavailable indicates the reasoning backend cannot serve the
// request (not configured, timed out, or errored). It is absorbed by the
// fallback paths and surfaced only in status and rationale strings.
var ErrBackendUnavailable = errors.New("reasoning backend unavailable")

// Backend is the reasoning backend contract.
type Backend interface {
	// Complete sends a prompt and returns the raw model output.
	Complete(ctx context.Context, prompt string) (string, error)

	// Name identifies the provider/model for status reporting.
	Name() string
}

// Health tracks backend reachability for the advisory status surface.
// It never gates requests; operations always proceed through their
// heuristic fallback when the backend errs.
type Health struct {
	mu          sync.RWMutex
	lastSuccess time.Time
	lastError   error
	lastAttempt time.Time
}

// RecordSuccess notes a successful backend call.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	h.lastSuccess = now
	h.lastAttempt = now
	h.lastError = nil
}

// RecordFailure notes a failed backend call.
func (h *Health) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastAttempt = time.Now()
	h.lastError = err
}

// Reachable reports whether the most recent backend call succeeded.
// A backend that has never been called counts as reachable until proven
// otherwise.
func (h *Health) Reachable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastError == nil
}

// LastError returns the most recent backend error, if any.
func (h *Health) LastError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastError
}

// instrumented decorates a Backend with a per-call timeout and health
// recording.
type instrumented struct {
	inner   Backend
	timeout time.Duration
	health  *Health
}

// WithTimeout bounds every Complete call and records outcomes in health.
func WithTimeout(inner Backend, timeout time.Duration, health *Health) Backend {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &instrumented{inner: inner, timeout: timeout, health: health}
}

func (b *instrumented) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.inner.Complete(ctx, prompt)
	if err != nil {
		if b.health != nil {
			b.health.RecordFailure(err)
		}
		return "", errors.Join(ErrBackendUnavailable, err)
	}
	if b.health != nil {
		b.health.RecordSuccess()
	}
	return out, nil
}

func (b *instrumented) Name() string {
	return b.inner.Name()
}
