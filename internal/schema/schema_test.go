package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convista/convsync/pkg/types"
)

func TestKeyColumns(t *testing.T) {
	sessions, ok := ByName("sessions")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, sessions.KeyColumns())

	scores, ok := ByName("sessions_scores")
	require.True(t, ok)
	assert.Equal(t,
		[]string{"session_id", "scorecard_id", "reviewer_id", "scorecard_point_id"},
		scores.KeyColumns())

	// No explicit unique constraint falls back to the primary key.
	e := Entity{Name: "x", PrimaryKey: []string{"a", "b"}}
	assert.Equal(t, []string{"a", "b"}, e.KeyColumns())
}

func TestEntityDeclarations(t *testing.T) {
	assert.Len(t, Entities, 20)

	names := map[string]bool{}
	for _, e := range Entities {
		assert.False(t, names[e.Name], "duplicate entity %s", e.Name)
		names[e.Name] = true

		require.NotEmpty(t, e.KeyColumns(), "entity %s has no key", e.Name)
		for _, k := range e.KeyColumns() {
			assert.True(t, e.HasColumn(k), "entity %s key %s not declared", e.Name, k)
		}
		for _, r := range e.Timestamps {
			assert.True(t, e.HasColumn(r.Column),
				"entity %s timestamp rule %s has no column", e.Name, r.Column)
		}
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name string
		ds   types.Dataset
		want int
	}{
		{
			name: "clean dataset",
			ds: types.Dataset{
				"agents": {{"id": float64(1), "name": "A"}},
			},
			want: 0,
		},
		{
			name: "unknown entity",
			ds: types.Dataset{
				"conversations": {{"id": float64(1)}},
			},
			want: 1,
		},
		{
			name: "unknown field",
			ds: types.Dataset{
				"agents": {{"id": float64(1), "shoe_size": float64(42)}},
			},
			want: 1,
		},
		{
			name: "empty row-set never warns on fields",
			ds: types.Dataset{
				"agents": {},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := Reconcile(tt.ds)
			assert.Len(t, warnings, tt.want, "warnings: %v", warnings)
		})
	}
}

func TestReconcileNeverFilters(t *testing.T) {
	ds := types.Dataset{
		"agents": {{"id": float64(1), "unexpected": "x"}},
	}
	_ = Reconcile(ds)
	// Drift is reported, never removed.
	assert.Contains(t, ds["agents"][0], "unexpected")
}
