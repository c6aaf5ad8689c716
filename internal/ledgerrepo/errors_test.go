package ledgerrepo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/domain"
)

func TestMapErr(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{name: "Nil", err: nil, want: nil},
		{name: "Deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: domain.ErrUnavailable},
		{name: "Canceled", err: context.Canceled, want: domain.ErrUnavailable},
		{name: "BadConn", err: driver.ErrBadConn, want: domain.ErrUnavailable},
		{name: "ConnDone", err: sql.ErrConnDone, want: domain.ErrUnavailable},
		{name: "Dial", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: domain.ErrUnavailable},
		{name: "SerializationFailure", err: &pq.Error{Code: "40001"}, want: domain.ErrConflict},
		{name: "Deadlock", err: &pq.Error{Code: "40P01"}, want: domain.ErrConflict},
		{name: "ForeignKey", err: &pq.Error{Code: "23503"}, want: domain.ErrAccountNotFound},
		{name: "Check", err: &pq.Error{Code: "23514"}, want: domain.ErrValidation},
		{name: "AdminShutdown", err: &pq.Error{Code: "57P01"}, want: domain.ErrUnavailable},
		{name: "ConnectionFailure", err: &pq.Error{Code: "08006"}, want: domain.ErrUnavailable},
		{name: "SyntaxError", err: &pq.Error{Code: "42601"}, want: domain.ErrInternal},
		{name: "Unknown", err: errors.New("boom"), want: domain.ErrInternal},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			got := mapErr(tc.err)
			if tc.want == nil {
				require.NoError(t, got)
				return
			}

			require.ErrorIs(t, got, tc.want)
		})
	}
}
