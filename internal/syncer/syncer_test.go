package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convista/convsync/internal/extract"
	"github.com/convista/convsync/internal/window"
	"github.com/convista/convsync/pkg/types"
)

type fakeExtractor struct {
	dicts    map[string]types.RowSet
	dictsErr error
	// sessions maps the extra filter to the window's result.
	sessions    map[string]types.RowSet
	sessionsErr error

	sessionCalls []string
	sessionRuns  []window.Run
	enrichCalls  int
}

func (f *fakeExtractor) Dictionaries(context.Context) (map[string]types.RowSet, error) {
	if f.dictsErr != nil {
		return nil, f.dictsErr
	}
	return f.dicts, nil
}

func (f *fakeExtractor) Sessions(_ context.Context, run window.Run, extraFilter string) (types.RowSet, error) {
	f.sessionCalls = append(f.sessionCalls, extraFilter)
	f.sessionRuns = append(f.sessionRuns, run)
	if f.sessionsErr != nil {
		return nil, f.sessionsErr
	}
	return f.sessions[extraFilter], nil
}

func (f *fakeExtractor) Enrich(context.Context, types.RowSet, extract.Enrichment) error {
	f.enrichCalls++
	return nil
}

type fakeTransformer struct {
	// categories is returned inside the dictionary dataset so the syncer can
	// compute the category re-fetch pass.
	categories   types.RowSet
	dictCalls    int
	sessionCalls int
}

func (f *fakeTransformer) Dictionaries(raw map[string]types.RowSet) (types.Dataset, error) {
	f.dictCalls++
	ds := types.Dataset{}
	for name, rows := range raw {
		ds[name] = rows
	}
	ds["categories"] = f.categories
	return ds, nil
}

func (f *fakeTransformer) Sessions(sessions types.RowSet) (types.Dataset, error) {
	f.sessionCalls++
	return types.Dataset{"sessions": sessions}, nil
}

type fakeLoader struct {
	loads []types.Dataset
	err   error
}

func (f *fakeLoader) Load(_ context.Context, ds types.Dataset) error {
	if f.err != nil {
		return f.err
	}
	f.loads = append(f.loads, ds)
	return nil
}

type fakeCheckpoints struct {
	last  time.Time
	wrote []time.Time
}

func (f *fakeCheckpoints) Read() time.Time { return f.last }
func (f *fakeCheckpoints) Write(t time.Time) error {
	f.wrote = append(f.wrote, t)
	return nil
}

func dailyRun() window.Run {
	d := time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC)
	return window.Run{Start: d, Stop: d}
}

func newTestSyncer(ex *fakeExtractor, tr *fakeTransformer, ld *fakeLoader, cp *fakeCheckpoints, incrDays int) *Syncer {
	s := New(ex, tr, ld, cp, incrDays,
		[]extract.Enrichment{extract.EnrichScores, extract.EnrichSummary}, zerolog.Nop())
	s.now = func() time.Time {
		return time.Date(2024, 6, 27, 3, 0, 0, 0, time.UTC)
	}
	return s
}

func TestRunDaily(t *testing.T) {
	ex := &fakeExtractor{
		dicts: map[string]types.RowSet{"agents": {{"id": float64(1)}}},
		sessions: map[string]types.RowSet{
			"":                 {{"id": "s1"}},
			"is_scored,manual": {{"id": "s2"}},
		},
	}
	tr := &fakeTransformer{}
	ld := &fakeLoader{}
	cp := &fakeCheckpoints{}
	s := newTestSyncer(ex, tr, ld, cp, 3)

	require.NoError(t, s.Run(context.Background(), dailyRun(), ""))
	assert.Equal(t, StateDone, s.State())

	// Main window plus the scored-incremental pass; no categories changed so
	// the category pass is skipped.
	assert.Equal(t, []string{"", "is_scored,manual"}, ex.sessionCalls)
	// Dicts, main window, incremental window.
	assert.Len(t, ld.loads, 3)
	// Two enrichments per non-empty window.
	assert.Equal(t, 4, ex.enrichCalls)

	// Incremental window trails the stop date.
	inc := ex.sessionRuns[1]
	assert.Equal(t, time.Date(2024, 6, 23, 0, 0, 0, 0, time.UTC), inc.Start)
	assert.Equal(t, time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC), inc.Stop)

	require.Len(t, cp.wrote, 1)
	assert.Equal(t, time.Date(2024, 6, 27, 3, 0, 0, 0, time.UTC), cp.wrote[0])
}

func TestRunCategoryRefetch(t *testing.T) {
	checkpoint := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	ex := &fakeExtractor{
		dicts: map[string]types.RowSet{},
		sessions: map[string]types.RowSet{
			"categories,11,12|or": {{"id": "s9"}},
		},
	}
	tr := &fakeTransformer{categories: types.RowSet{
		{"id": float64(11), "updated_at": checkpoint.Add(24 * time.Hour)},
		{"id": float64(12), "updated_at": checkpoint.Add(48 * time.Hour)},
		{"id": float64(13), "updated_at": checkpoint.Add(-24 * time.Hour)},
		{"id": float64(14)}, // no timestamp: never re-fetched
	}}
	ld := &fakeLoader{}
	cp := &fakeCheckpoints{last: checkpoint}
	s := newTestSyncer(ex, tr, ld, cp, 3)

	require.NoError(t, s.Run(context.Background(), dailyRun(), ""))

	require.Len(t, ex.sessionCalls, 3)
	assert.Equal(t, "categories,11,12|or", ex.sessionCalls[2])
}

func TestRunEmptyWindowSkipsTransformAndLoad(t *testing.T) {
	ex := &fakeExtractor{dicts: map[string]types.RowSet{}}
	tr := &fakeTransformer{}
	ld := &fakeLoader{}
	cp := &fakeCheckpoints{}
	s := newTestSyncer(ex, tr, ld, cp, 3)

	require.NoError(t, s.Run(context.Background(), dailyRun(), ""))
	assert.Equal(t, StateDone, s.State())

	assert.Equal(t, 0, tr.sessionCalls)
	assert.Equal(t, 0, ex.enrichCalls)
	// Only the dictionary dataset was loaded.
	assert.Len(t, ld.loads, 1)
	// An empty run is still a successful run.
	assert.Len(t, cp.wrote, 1)
}

func TestRunHistoricalSkipsIncremental(t *testing.T) {
	ex := &fakeExtractor{
		dicts:    map[string]types.RowSet{},
		sessions: map[string]types.RowSet{"": {{"id": "s1"}}},
	}
	tr := &fakeTransformer{categories: types.RowSet{
		{"id": float64(11), "updated_at": time.Now().UTC()},
	}}
	ld := &fakeLoader{}
	cp := &fakeCheckpoints{}
	s := newTestSyncer(ex, tr, ld, cp, 3)

	run := dailyRun()
	run.Historical = true
	require.NoError(t, s.Run(context.Background(), run, ""))

	assert.Equal(t, []string{""}, ex.sessionCalls, "backfills never re-fetch")
	assert.Len(t, cp.wrote, 1)
}

func TestRunPassesExtraFilter(t *testing.T) {
	ex := &fakeExtractor{dicts: map[string]types.RowSet{}}
	s := newTestSyncer(ex, &fakeTransformer{}, &fakeLoader{}, &fakeCheckpoints{}, 0)

	require.NoError(t, s.Run(context.Background(), dailyRun(), "direction,incoming"))
	assert.Equal(t, []string{"direction,incoming"}, ex.sessionCalls)
}

func TestRunFailureLeavesCheckpoint(t *testing.T) {
	tests := []struct {
		name  string
		ex    *fakeExtractor
		ldErr error
	}{
		{
			name: "dictionary fetch fails",
			ex:   &fakeExtractor{dictsErr: errors.New("api down")},
		},
		{
			name: "session fetch fails",
			ex: &fakeExtractor{
				dicts:       map[string]types.RowSet{},
				sessionsErr: errors.New("api down"),
			},
		},
		{
			name:  "load fails",
			ex:    &fakeExtractor{dicts: map[string]types.RowSet{}},
			ldErr: errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := &fakeCheckpoints{last: time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)}
			s := newTestSyncer(tt.ex, &fakeTransformer{}, &fakeLoader{err: tt.ldErr}, cp, 3)

			require.Error(t, s.Run(context.Background(), dailyRun(), ""))
			assert.Equal(t, StateFailed, s.State())
			assert.Empty(t, cp.wrote, "failed runs must not advance the checkpoint")
		})
	}
}

func TestChangedCategoryIDs(t *testing.T) {
	checkpoint := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	ids := changedCategoryIDs(types.RowSet{
		{"id": float64(1), "updated_at": checkpoint.Add(time.Hour)},
		{"id": float64(2), "updated_at": checkpoint},
		{"id": float64(3), "updated_at": "2024-06-25T00:00:00"}, // unparsed string ignored
		{"updated_at": checkpoint.Add(time.Hour)},               // no id
	}, checkpoint)
	assert.Equal(t, []string{"1"}, ids)
}
