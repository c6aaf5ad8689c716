package ledgerrepo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// mapErr converts a driver error into a domain error.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrUnavailable
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return domain.ErrUnavailable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return domain.ErrConflict
		case "23503": // foreign_key_violation
			return domain.ErrAccountNotFound
		case "23514", "22001": // check_violation, string_data_right_truncation
			return domain.ErrValidation
		}

		// connection_exception, insufficient_resources, operator_intervention
		code := string(pqErr.Code)
		if strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || strings.HasPrefix(code, "57") {
			return domain.ErrUnavailable
		}

		return domain.ErrInternal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrUnavailable
	}

	return domain.ErrInternal
}
