// Package sweep runs the periodic housekeeping triggered by cron: quote expiry and release of
// stale checkout locks.
package sweep

import (
	"context"
	"io"
	"log"
)

type quoteExpirer interface {
	ExpireOverdue(ctx context.Context, batch int) (int, error)
}

type lockReleaser interface {
	ReleaseExpiredLocks(ctx context.Context) (int64, error)
}

type Result struct {
	ExpiredQuotes int   `json:"expiredQuotes"`
	ReleasedLocks int64 `json:"releasedLocks"`
}

type Runner struct {
	quotes quoteExpirer
	carts  lockReleaser
	batch  int
	logger *log.Logger
}

func New(quotes quoteExpirer, carts lockReleaser, batch int, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Runner{quotes: quotes, carts: carts, batch: batch, logger: logger}
}

// Run is safe to repeat and to run concurrently with itself. Lock release still runs when quote
// expiry fails; the first error is returned.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	expired, quoteErr := r.quotes.ExpireOverdue(ctx, r.batch)
	res.ExpiredQuotes = expired
	if quoteErr != nil {
		r.logger.Printf("sweep: expire quotes error=%v", quoteErr)
	}

	released, lockErr := r.carts.ReleaseExpiredLocks(ctx)
	res.ReleasedLocks = released
	if lockErr != nil {
		r.logger.Printf("sweep: release locks error=%v", lockErr)
	}

	r.logger.Printf("sweep: done expired_quotes=%d released_locks=%d", res.ExpiredQuotes, res.ReleasedLocks)
	if quoteErr != nil {
		return res, quoteErr
	}
	return res, lockErr
}
