package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/templui/picsellart/internal/db"
	"github.com/templui/picsellart/internal/repository"
)

const defaultTxRetries = 5

// isConflict reports whether err came from losing an optimistic race. The
// transaction is safe to rerun from scratch.
func isConflict(err error) bool {
	return errors.Is(err, repository.ErrPlanVersionConflict) ||
		errors.Is(err, repository.ErrOrderVersionConflict) ||
		errors.Is(err, repository.ErrPurchaseExists) ||
		errors.Is(err, repository.ErrPlanExists)
}

func txBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// runTx runs fn in a transaction and reruns the whole transaction on
// optimistic-concurrency conflicts, up to maxRetries times.
func runTx(ctx context.Context, database *sqlx.DB, maxRetries int, fn func(tx *sqlx.Tx) error) error {
	if maxRetries <= 0 {
		maxRetries = defaultTxRetries
	}
	b := backoff.WithContext(backoff.WithMaxRetries(txBackoff(), uint64(maxRetries)), ctx)

	err := backoff.Retry(func() error {
		err := db.WithTx(ctx, database, fn)
		if err != nil && !isConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if isConflict(err) {
		return wrap(ErrConflictRetriesExhausted, err)
	}
	return err
}
