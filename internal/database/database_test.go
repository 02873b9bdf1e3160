package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	// Applying twice is a no-op.
	require.NoError(t, Migrate(context.Background(), db))

	for _, table := range []string{"portfolio", "account", "equity", "transaction", "transaction_split",
		"equity_value", "equity_event", "exchange_rate", "inflation_index"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	assert.NoError(t, HealthCheck(db))
}

func TestWithTransaction(t *testing.T) {
	ctx := context.Background()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db))

	count := func() int {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM portfolio`).Scan(&n))
		return n
	}
	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO portfolio (id, name, currency) VALUES (?, ?, 'EUR')`, id, id)
		return err
	}

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(ctx, db, func(tx *sql.Tx) error { return insert(tx, "p1") })
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(ctx, db, func(tx *sql.Tx) error {
			require.NoError(t, insert(tx, "p2"))
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(ctx, db, func(tx *sql.Tx) error {
			require.NoError(t, insert(tx, "p3"))
			panic("boom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
		assert.Equal(t, 1, count())
	})
}
