package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/foundry/pkg/storage/postgres"
	"github.com/platinummonkey/foundry/pkg/storage/postgres/postgrestest"
	"github.com/platinummonkey/foundry/pkg/tenancy"
)

const (
	testOrgID  = "5d3c8a52-0c8e-4a1e-9b0d-3f3c1a1f0a01"
	testUserID = "9a0e6a33-6a55-4c5b-8a1f-2e8d3c7b1b02"
)

var eventColumns = []string{
	"id", "timestamp", "event_type", "status",
	"context_kind", "reason",
	"org_id", "user_id", "role",
	"resource_type", "resource_id",
	"ip_address", "user_agent", "request_id",
	"method", "path", "status_code",
	"message", "error_message", "metadata",
}

func testTenant(t *testing.T) tenancy.TenantContext {
	t.Helper()
	tc, err := tenancy.NewTenantContext(testOrgID, testUserID, tenancy.RoleAdmin)
	require.NoError(t, err)
	return tc
}

func addEventRow(rows *sqlmock.Rows, id int64, ts time.Time, eventType EventType, metadata string) *sqlmock.Rows {
	return rows.AddRow(
		id, ts, string(eventType), "success",
		"tenant", "",
		testOrgID, testUserID, "ADMIN",
		"project", "p-1",
		"", "", "req-1",
		"POST", "/v1/orgs/x/projects", 201,
		"created", "", metadata,
	)
}

func TestBuildSearchQuery(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	query, args := buildSearchQuery(testOrgID, SearchFilter{
		StartTime:  &start,
		UserID:     testUserID,
		EventTypes: []EventType{EventTypeProjectCreate, EventTypeProjectDelete},
		Limit:      25,
	})

	assert.Contains(t, query, "WHERE org_id = $1")
	assert.Contains(t, query, "timestamp >= $2")
	assert.Contains(t, query, "user_id = $3")
	assert.Contains(t, query, "event_type = ANY($4)")
	assert.Contains(t, query, "LIMIT $5 OFFSET $6")
	require.Len(t, args, 6)
	assert.Equal(t, testOrgID, args[0])
	assert.Equal(t, 25, args[4])
	assert.Equal(t, 0, args[5])
}

func TestDBStore_Search(t *testing.T) {
	db, mock := postgrestest.NewMock(t)
	store := NewDBStore(postgres.NewScoper(db, postgres.ScopeConfig{}))
	tc := testTenant(t)
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	postgrestest.ExpectTenantUnit(mock, tc)
	rows := sqlmock.NewRows(eventColumns)
	addEventRow(rows, 2, ts, EventTypeProjectCreate, `{"name":"api"}`)
	addEventRow(rows, 1, ts.Add(-time.Hour), EventTypeOrgCreate, `{}`)
	mock.ExpectQuery(`FROM audit_logs\s+WHERE org_id = \$1`).
		WithArgs(testOrgID, sqlmock.AnyArg(), 100, 0).
		WillReturnRows(rows)
	mock.ExpectCommit()

	events, err := store.Search(context.Background(), tc, SearchFilter{
		EventTypes: []EventType{EventTypeProjectCreate, EventTypeOrgCreate},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(2), events[0].ID)
	assert.Equal(t, EventTypeProjectCreate, events[0].EventType)
	assert.Equal(t, "api", events[0].Metadata["name"])
	assert.Nil(t, events[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_SearchQueryError(t *testing.T) {
	db, mock := postgrestest.NewMock(t)
	store := NewDBStore(postgres.NewScoper(db, postgres.ScopeConfig{}))
	tc := testTenant(t)

	postgrestest.ExpectTenantUnit(mock, tc)
	mock.ExpectQuery("FROM audit_logs").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.Search(context.Background(), tc, SearchFilter{})
	assert.ErrorContains(t, err, "failed to search audit logs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Get(t *testing.T) {
	tc := testTenant(t)

	t.Run("found", func(t *testing.T) {
		db, mock := postgrestest.NewMock(t)
		store := NewDBStore(postgres.NewScoper(db, postgres.ScopeConfig{}))

		postgrestest.ExpectTenantUnit(mock, tc)
		mock.ExpectQuery(`FROM audit_logs\s+WHERE id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(addEventRow(sqlmock.NewRows(eventColumns), 7, time.Now().UTC(), EventTypeOrgMemberAdd, "{}"))
		mock.ExpectCommit()

		event, err := store.Get(context.Background(), tc, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invisible row is not found", func(t *testing.T) {
		db, mock := postgrestest.NewMock(t)
		store := NewDBStore(postgres.NewScoper(db, postgres.ScopeConfig{}))

		postgrestest.ExpectTenantUnit(mock, tc)
		mock.ExpectQuery("FROM audit_logs").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.Get(context.Background(), tc, 8)
		assert.ErrorIs(t, err, ErrEventNotFound)
		assert.ErrorIs(t, err, postgres.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBStore_PurgeBefore(t *testing.T) {
	db, mock := postgrestest.NewMock(t)
	store := NewDBStore(postgres.NewScoper(db, postgres.ScopeConfig{}))
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sc, err := tenancy.NewServiceContext("worker job audit-retention")
	require.NoError(t, err)

	postgrestest.ExpectServiceUnit(mock, "worker job audit-retention")
	mock.ExpectExec("DELETE FROM audit_logs WHERE timestamp < \\$1").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectCommit()

	n, err := store.PurgeBefore(context.Background(), sc, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("nil database", func(t *testing.T) {
		_, err := NewDBLogger(nil)
		assert.ErrorContains(t, err, "database connection is required")
	})

	t.Run("tenant event", func(t *testing.T) {
		db, mock := postgrestest.NewMock(t)
		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
		event := &AuditEvent{
			Timestamp:   ts,
			EventType:   EventTypeProjectDelete,
			Status:      EventStatusSuccess,
			ContextKind: "tenant",
			OrgID:       testOrgID,
			UserID:      testUserID,
			Role:        "OWNER",
			Metadata:    map[string]interface{}{"name": "api"},
		}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(
				ts, "project.delete", "success",
				"tenant", "",
				testOrgID, testUserID, "OWNER",
				"", "",
				"", "", "",
				"", "", 0,
				"", "", []byte(`{"name":"api"}`),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))

		require.NoError(t, logger.Log(context.Background(), event))
		assert.Equal(t, int64(41), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("service event stores null actor", func(t *testing.T) {
		db, mock := postgrestest.NewMock(t)
		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(
				sqlmock.AnyArg(), "db.service_context", "success",
				"service", "purge",
				nil, nil, "",
				"database", "",
				"", "", "",
				"", "", 0,
				"", "", []byte("{}"),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

		err = logger.Log(context.Background(), &AuditEvent{
			Timestamp:    time.Now().UTC(),
			EventType:    EventTypeServiceContext,
			Status:       EventStatusSuccess,
			ContextKind:  "service",
			Reason:       "purge",
			ResourceType: ResourceTypeDatabase,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure", func(t *testing.T) {
		db, mock := postgrestest.NewMock(t)
		logger, err := NewDBLogger(db)
		require.NoError(t, err)

		mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errors.New("relation does not exist"))

		err = logger.Log(context.Background(), &AuditEvent{Timestamp: time.Now()})
		assert.ErrorContains(t, err, "failed to insert audit log")
	})
}
