package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// classify maps a pgx error onto a domain kind. Check and data errors mean the
// values were invalid, other integrity errors mean the database refused the
// write, and everything else is treated as an outage.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wrap(domain.KindNotFound, err, msg)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23514": // check_violation
			return domain.Wrap(domain.KindValidation, err, msg)
		case strings.HasPrefix(pgErr.Code, "22"): // data_exception
			return domain.Wrap(domain.KindValidation, err, msg)
		case strings.HasPrefix(pgErr.Code, "23"): // integrity_constraint_violation
			return domain.Wrap(domain.KindBackendRejected, err, msg)
		case pgErr.Code == "42501": // insufficient_privilege
			return domain.Wrap(domain.KindBackendRejected, err, msg)
		}
	}

	return domain.Wrap(domain.KindBackendUnavailable, err, msg)
}

// storedRowError reports a row that no longer satisfies the entity invariants.
// Bad stored data is a backend fault, never the caller's.
func storedRowError(entity, key string, err error) error {
	return domain.Wrap(domain.KindBackendUnavailable, err, fmt.Sprintf("stored %s %s is unreadable", entity, key))
}
