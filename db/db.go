// Package db embeds the ledger schema and applies it.
package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

//go:embed migration/*.sql
var migrations embed.FS

// Migrate executes every up migration in file name order.
//
// The statements are idempotent, so it is safe to run on every start.
func Migrate(ctx context.Context, conn dbpkg.SQLInterface) error {
	names, err := fs.Glob(migrations, "migration/*.up.sql")
	if err != nil {
		return err
	}

	sort.Strings(names)

	for _, name := range names {
		stmt, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}

		if strings.TrimSpace(string(stmt)) == "" {
			continue
		}

		if _, err := conn.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}

	return nil
}
