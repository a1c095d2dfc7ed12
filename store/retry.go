package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
)

// ErrRetriesExhausted is returned when a unit of work still failed with a
// transient error after the last attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExecuteWithRetry runs fn inside a transaction, committing if it returns
// nil. Failures matching retryIf (IsTransient when nil) roll back and run
// the whole transaction again, up to the configured number of attempts.
func (s *Store) ExecuteWithRetry(ctx context.Context, fn func(*sql.Tx) error,
	retryIf func(error) bool) error {

	if retryIf == nil {
		retryIf = IsTransient
	}

	err := retry.Do(
		func() error {
			return s.execute(ctx, fn)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(retryIf),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.Debug("retrying transaction", "attempt", n+1, "error", err)
		}),
	)
	if err != nil && retryIf(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, s.attempts, err)
	}
	return err
}

func (s *Store) execute(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
