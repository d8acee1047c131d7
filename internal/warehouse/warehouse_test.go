package warehouse

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convista/convsync/pkg/types"
)

func openTestDB(t *testing.T, strategy Strategy) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warehouse.db")
	return openTestDBAt(t, path, strategy)
}

func openTestDBAt(t *testing.T, path string, strategy Strategy) *DB {
	t.Helper()
	w, err := Open(path, strategy, 0, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	require.NoError(t, w.EnsureTables(context.Background()))
	return w
}

func countRows(t *testing.T, w *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, w.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestResolveDriver(t *testing.T) {
	tests := []struct {
		url         string
		wantDriver  string
		wantDSN     string
		wantDialect string
		wantErr     bool
	}{
		{url: "warehouse.db", wantDriver: "sqlite", wantDSN: "warehouse.db", wantDialect: "sqlite"},
		{url: "sqlite:///var/lib/convsync.db", wantDriver: "sqlite", wantDSN: "/var/lib/convsync.db", wantDialect: "sqlite"},
		{url: "postgres://etl:pw@db:5432/warehouse", wantDriver: "pgx", wantDSN: "postgres://etl:pw@db:5432/warehouse", wantDialect: "postgres"},
		{url: "postgresql://db/warehouse", wantDriver: "pgx", wantDialect: "postgres", wantDSN: "postgresql://db/warehouse"},
		{url: "mysql://db/warehouse", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, d, err := resolveDriver(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrUnknownDestination))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
			assert.Equal(t, tt.wantDialect, d.name)
		})
	}
}

func TestAnonymizeURL(t *testing.T) {
	assert.Equal(t, "postgres://etl:xxx@db:5432/warehouse",
		anonymizeURL("postgres://etl:secret@db:5432/warehouse"))
	assert.Equal(t, "postgres://etl@db:5432/warehouse",
		anonymizeURL("postgres://etl@db:5432/warehouse"))
	assert.Equal(t, "warehouse.db", anonymizeURL("warehouse.db"))
}

func TestEnsureTablesIdempotent(t *testing.T) {
	w := openTestDB(t, StrategyAuto)
	// Second run sees every table present and touches nothing.
	require.NoError(t, w.EnsureTables(context.Background()))
	assert.Equal(t, 0, countRows(t, w, "agents"))
	assert.Equal(t, 0, countRows(t, w, "sessions_scores"))
}

func TestLoadUpsertIdempotent(t *testing.T) {
	w := openTestDB(t, StrategyAtomic)

	ds := types.Dataset{
		"agents": {
			{"id": float64(1), "name": "Ada", "is_active": true},
			{"id": float64(2), "name": "Bob", "is_active": false},
		},
	}
	require.NoError(t, w.Load(context.Background(), ds))
	require.NoError(t, w.Load(context.Background(), ds))
	assert.Equal(t, 2, countRows(t, w, "agents"))
}

func TestLoadAtomicUpdatesExistingRow(t *testing.T) {
	w := openTestDB(t, StrategyAtomic)
	ctx := context.Background()

	require.NoError(t, w.Load(ctx, types.Dataset{
		"agents": {{"id": float64(1), "name": "Ada", "phone_number": "100"}},
	}))
	require.NoError(t, w.Load(ctx, types.Dataset{
		"agents": {{"id": float64(1), "name": "Ada Lovelace", "phone_number": "200"}},
	}))

	var name, phone string
	require.NoError(t, w.db.QueryRow(
		"SELECT name, phone_number FROM agents WHERE id = 1").Scan(&name, &phone))
	assert.Equal(t, "Ada Lovelace", name)
	assert.Equal(t, "200", phone)
	assert.Equal(t, 1, countRows(t, w, "agents"))
}

func TestLoadMergePreservesAbsentColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.db")
	ctx := context.Background()

	w := openTestDBAt(t, path, StrategyMerge)
	require.NoError(t, w.Load(ctx, types.Dataset{
		"agents": {{"id": float64(1), "name": "Ada", "phone_number": "100"}},
	}))

	// The partial update touches only the supplied non-key columns.
	require.NoError(t, w.Load(ctx, types.Dataset{
		"agents": {{"id": float64(1), "name": "Ada Lovelace"}},
	}))

	var name, phone string
	require.NoError(t, w.db.QueryRow(
		"SELECT name, phone_number FROM agents WHERE id = 1").Scan(&name, &phone))
	assert.Equal(t, "Ada Lovelace", name)
	assert.Equal(t, "100", phone)
}

func TestLoadAutoIDConflictTarget(t *testing.T) {
	w := openTestDB(t, StrategyAtomic)
	ctx := context.Background()

	ds := types.Dataset{
		"agent_group_associations": {
			{"agent_id": float64(7), "group_id": float64(3),
				"start_dt": time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		},
	}
	require.NoError(t, w.Load(ctx, ds))
	require.NoError(t, w.Load(ctx, ds))
	assert.Equal(t, 1, countRows(t, w, "agent_group_associations"),
		"re-fetched association must not duplicate")
}

func TestLoadMissingKeyRollsBack(t *testing.T) {
	w := openTestDB(t, StrategyAtomic)
	ctx := context.Background()

	err := w.Load(ctx, types.Dataset{
		"agents": {{"id": float64(1), "name": "Ada"}},
		"sessions_scores": {
			{"session_id": "s1", "scorecard_id": float64(1), "reviewer_id": float64(9)},
		},
	})
	require.Error(t, err)

	var mke *types.MissingKeyError
	require.True(t, errors.As(err, &mke))
	assert.Equal(t, "sessions_scores", mke.Entity)
	assert.Equal(t, []string{"scorecard_point_id"}, mke.Columns)

	// The whole dataset rolled back, including the valid agents rows.
	assert.Equal(t, 0, countRows(t, w, "agents"))
}

func TestLoadDropsUndeclaredColumns(t *testing.T) {
	w := openTestDB(t, StrategyAtomic)

	require.NoError(t, w.Load(context.Background(), types.Dataset{
		"agents": {{"id": float64(1), "name": "Ada", "shoe_size": float64(42)}},
	}))
	assert.Equal(t, 1, countRows(t, w, "agents"))
}

func TestLoadBindsNestedValuesAsJSON(t *testing.T) {
	w := openTestDB(t, StrategyAtomic)

	require.NoError(t, w.Load(context.Background(), types.Dataset{
		"sessions": {{
			"id":       "s1",
			"start_dt": time.Date(2024, 6, 26, 10, 15, 44, 0, time.UTC),
			"score_details": map[string]any{
				"average": float64(4.5),
			},
		}},
	}))

	var startDT, details string
	require.NoError(t, w.db.QueryRow(
		"SELECT start_dt, score_details FROM sessions WHERE id = 's1'").
		Scan(&startDT, &details))
	assert.Equal(t, "2024-06-26T10:15:44Z", startDT)
	assert.JSONEq(t, `{"average":4.5}`, details)
}

func TestLoadSkipsAbsentEntities(t *testing.T) {
	w := openTestDB(t, StrategyAtomic)
	require.NoError(t, w.Load(context.Background(), types.Dataset{}))
}

func TestOpenRejectsUnknownStrategy(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), Strategy("replace"), 0, zerolog.Nop())
	require.Error(t, err)
}
