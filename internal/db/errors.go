package db

import (
	"context"
	"errors"
	"net"
	"strings"

	"cedar-commerce/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Classify maps driver errors onto the domain taxonomy: missing rows become ErrNotFound, unique
// violations ErrAlreadyExists, and timeouts or connection failures ErrTransient. Anything else,
// including errors that are already domain errors, passes through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if IsTransient(err) {
		return domain.Transient(err, "database unavailable")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return &domain.Error{Kind: domain.ErrAlreadyExists, Msg: pgErr.ConstraintName, Err: err}
	}
	return err
}

func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == codeSerializationFailure ||
			pgErr.Code == codeDeadlockDetected
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
