//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBHealth(t *testing.T) {
	db := NewDB(testDB.Pool)
	ctx := context.Background()

	require.NoError(t, db.Health(ctx))

	// Holding every pool connection makes the store report itself
	// unavailable for ledger writes
	maxConns := db.Stat().MaxConns()
	conns := make([]*pgxpool.Conn, 0, maxConns)
	for i := int32(0); i < maxConns; i++ {
		conn, err := db.Acquire(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)
	}

	assert.Error(t, db.Health(ctx))

	for _, conn := range conns {
		conn.Release()
	}
	assert.NoError(t, db.Health(ctx))
}
