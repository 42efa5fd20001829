package sweep

import (
	"context"
	"errors"
	"testing"
)

type stubQuotes struct {
	pending int
	err     error
	calls   int
}

func (s *stubQuotes) ExpireOverdue(context.Context, int) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	n := s.pending
	s.pending = 0
	return n, nil
}

type stubLocks struct {
	stale int64
	calls int
}

func (s *stubLocks) ReleaseExpiredLocks(context.Context) (int64, error) {
	s.calls++
	n := s.stale
	s.stale = 0
	return n, nil
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	quotes := &stubQuotes{pending: 3}
	locks := &stubLocks{stale: 2}
	r := New(quotes, locks, 50, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExpiredQuotes != 3 || res.ReleasedLocks != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("second run should do nothing, got %+v", res)
	}
}

func TestRun_LockReleaseRunsWhenExpiryFails(t *testing.T) {
	quotes := &stubQuotes{err: errors.New("db down")}
	locks := &stubLocks{stale: 1}
	r := New(quotes, locks, 50, nil)

	res, err := r.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if locks.calls != 1 || res.ReleasedLocks != 1 {
		t.Fatalf("locks should still be released, got %+v", res)
	}
}
