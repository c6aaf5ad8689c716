// Package integrationtest provides container and db helpers used in integration tests.
package integrationtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/go-petr/pet-ledger/db"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"

	_ "github.com/lib/pq"
)

const startupTimeout = time.Minute

// Postgres starts a disposable postgres container with the ledger schema applied
// and returns its connection string and a terminate function.
func Postgres(ctx context.Context) (string, func(), error) {
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("pet_ledger"),
		postgres.WithUsername("root"),
		postgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres container: %w", err)
	}

	terminate := func() { _ = testcontainers.TerminateContainer(container) }

	source, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("postgres connection string: %w", err)
	}

	conn, err := dbpkg.Setup("postgres", source)
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("connect postgres container: %w", err)
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		terminate()
		return "", nil, fmt.Errorf("migrate postgres container: %w", err)
	}

	return source, terminate, nil
}

// Redis starts a disposable redis container and returns its address and a
// terminate function.
func Redis(ctx context.Context) (string, func(), error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start redis container: %w", err)
	}

	terminate := func() { _ = testcontainers.TerminateContainer(container) }

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}

	return endpoint, terminate, nil
}

// Flush empties the ledger tables without dropping them.
func Flush(t *testing.T, conn *sql.DB) {
	t.Helper()

	if _, err := conn.Exec(`TRUNCATE TABLE transactions, balances CASCADE`); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB sets up connection with database for testing and then cleans it.
func SetupDB(t *testing.T, driver, source string) *sql.DB {
	t.Helper()

	conn, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, conn)

		if err := conn.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return conn
}
