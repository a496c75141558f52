// Package postgrestest holds helpers for testing code built on postgres.Scoper.
package postgrestest

import (
	"database/sql"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"

	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// EstablishPattern matches the statement that binds a database context to a transaction
const EstablishPattern = `SELECT set_config\('app.current_org_id'`

// NewMock returns a sqlmock database closed at test cleanup
func NewMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// ExpectTenantUnit expects a transaction to begin and bind tc
func ExpectTenantUnit(mock sqlmock.Sqlmock, tc tenancy.TenantContext) {
	mock.ExpectBegin()
	mock.ExpectExec(EstablishPattern).
		WithArgs(tc.OrgID, tc.UserID, tc.Role.String(), "off", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// ExpectServiceUnit expects a transaction to begin and bind a service context.
// An empty reason matches any reason.
func ExpectServiceUnit(mock sqlmock.Sqlmock, reason string) {
	var reasonArg interface{} = reason
	if reason == "" {
		reasonArg = sqlmock.AnyArg()
	}
	mock.ExpectBegin()
	mock.ExpectExec(EstablishPattern).
		WithArgs("", "", "", "on", reasonArg).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// DatabaseURL returns FOUNDRY_TEST_DATABASE_URL or skips the test
func DatabaseURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	dbURL := os.Getenv("FOUNDRY_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping test: FOUNDRY_TEST_DATABASE_URL environment variable not set (database not available)")
	}
	return dbURL
}

// RequireDatabase connects to FOUNDRY_TEST_DATABASE_URL or skips the test
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", DatabaseURL(t))
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
