package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "postgres://r1/db", []string{"postgres://r1/db"}},
		{"trims and skips blanks", " postgres://r1/db , ,postgres://r2/db ", []string{"postgres://r1/db", "postgres://r2/db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReplicaURLs(tt.input))
		})
	}
}

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestConnectionManager_ReplicaRoundRobin(t *testing.T) {
	primary, _ := newPingMock(t)
	cm := NewConnectionManagerFromDB(primary, nil)
	assert.Same(t, primary, cm.Replica(), "falls back to primary without replicas")

	r1, _ := newPingMock(t)
	r2, _ := newPingMock(t)
	cm.replicas = []*sql.DB{r1, r2}

	seen := map[*sql.DB]int{}
	for i := 0; i < 4; i++ {
		seen[cm.Replica()]++
	}
	assert.Equal(t, 2, seen[r1])
	assert.Equal(t, 2, seen[r2])
	assert.Zero(t, seen[primary])
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("primary down", func(t *testing.T) {
		primary, mock := newPingMock(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err := NewConnectionManagerFromDB(primary, nil).HealthCheck(ctx)
		assert.ErrorContains(t, err, "primary unhealthy")
	})

	t.Run("one replica down is tolerated", func(t *testing.T) {
		primary, pm := newPingMock(t)
		r1, m1 := newPingMock(t)
		r2, m2 := newPingMock(t)
		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("timeout"))
		m2.ExpectPing()

		cm := NewConnectionManagerFromDB(primary, nil)
		cm.replicas = []*sql.DB{r1, r2}
		assert.NoError(t, cm.HealthCheck(ctx))
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, pm := newPingMock(t)
		r1, m1 := newPingMock(t)
		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("timeout"))

		cm := NewConnectionManagerFromDB(primary, nil)
		cm.replicas = []*sql.DB{r1}
		assert.ErrorContains(t, cm.HealthCheck(ctx), "all replicas unhealthy: replica-0")
	})
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	primary, _ := newPingMock(t)
	r1, m1 := newPingMock(t)
	r2, m2 := newPingMock(t)
	m1.ExpectPing().WillReturnError(errors.New("gone"))
	m1.ExpectClose()
	m2.ExpectPing()

	cm := NewConnectionManagerFromDB(primary, nil)
	cm.replicas = []*sql.DB{r1, r2}

	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Len(t, cm.Stats().Replicas, 1)
	assert.Same(t, r2, cm.Replica())
}

func TestConnectionManager_Close(t *testing.T) {
	primary, pm := newPingMock(t)
	replica, rm := newPingMock(t)
	pm.ExpectClose()
	rm.ExpectClose().WillReturnError(errors.New("already closed"))

	cm := NewConnectionManagerFromDB(primary, nil)
	cm.replicas = []*sql.DB{replica}

	err := cm.Close()
	assert.ErrorContains(t, err, "replica-0 close error")
	assert.NoError(t, pm.ExpectationsWereMet())
	assert.Empty(t, cm.Stats().Replicas)
}
