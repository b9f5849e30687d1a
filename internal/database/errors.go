package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/fmp-data/internal/storage"
)

// classify maps driver errors onto the storage error contract.
func classify(entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return &storage.ConstraintViolationError{
				Entity:     entity,
				Constraint: pgErr.ConstraintName,
				Cause:      err,
			}
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			// connection exception, admin shutdown
			return unavailable(err)
		}
		return err
	}

	return unavailable(err)
}

// unavailable wraps connection-level failures in ErrStorageUnavailable.
func unavailable(err error) error {
	if errors.Is(err, storage.ErrStorageUnavailable) {
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	case errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")):
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	return err
}
