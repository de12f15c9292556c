package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
)

// RetryPolicy bounds the write attempts of a Writer.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy makes 3 attempts, waiting 30s and then 60s in between.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 30 * time.Second}

// Delay returns the wait after the failed attempt with the given 0-based
// index: BaseDelay * 2^attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// AttemptObserver is notified after every Put attempt.
type AttemptObserver interface {
	ObserveWriteAttempt(err error)
}

// Writer writes one record per call, creating the table on first use and
// retrying transient failures with exponential backoff.
type Writer struct {
	store    Store
	policy   RetryPolicy
	logger   zerolog.Logger
	observer AttemptObserver

	// sleep blocks for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWriter returns a Writer on s. A zero MaxAttempts falls back to
// DefaultRetryPolicy.
func NewWriter(s Store, policy RetryPolicy, logger zerolog.Logger) *Writer {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return &Writer{
		store:  s,
		policy: policy,
		logger: logger.With().Str("component", "store_writer").Logger(),
		sleep:  sleepContext,
	}
}

// SetObserver registers o to be told about each write attempt.
func (w *Writer) SetObserver(o AttemptObserver) {
	w.observer = o
}

// Write ensures the table exists and inserts m. It returns an error wrapping
// ErrRetriesExhausted when all attempts failed; m is then not stored.
func (w *Writer) Write(ctx context.Context, m models.Measurement) error {
	if err := w.store.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensuring table: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < w.policy.MaxAttempts; attempt++ {
		err := w.store.Put(ctx, m)
		if w.observer != nil {
			w.observer.ObserveWriteAttempt(err)
		}
		if err == nil {
			w.logger.Info().Str("id", m.ID).Int("attempt", attempt+1).Msg("Record written")
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			w.logger.Error().Err(err).Str("id", m.ID).Int("attempt", attempt+1).Msg("Write rejected, not retrying")
			return fmt.Errorf("writing record %s: %w", m.ID, err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("writing record %s: %w", m.ID, err)
		}

		if attempt+1 >= w.policy.MaxAttempts {
			break
		}
		delay := w.policy.Delay(attempt)
		w.logger.Warn().
			Err(err).
			Str("id", m.ID).
			Int("attempt", attempt+1).
			Int("max_attempts", w.policy.MaxAttempts).
			Dur("retry_in", delay).
			Msg("Write failed, retrying")
		if err := w.sleep(ctx, delay); err != nil {
			return fmt.Errorf("waiting to retry record %s: %w", m.ID, err)
		}
	}

	w.logger.Error().
		Err(lastErr).
		Str("id", m.ID).
		Int("attempts", w.policy.MaxAttempts).
		Msg("Giving up on record")
	return fmt.Errorf("writing record %s after %d attempts: %w: %w", m.ID, w.policy.MaxAttempts, ErrRetriesExhausted, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
