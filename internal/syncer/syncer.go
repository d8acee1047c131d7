// Package syncer orchestrates one ETL run: dictionaries first, then the
// session window, then the trailing incremental re-fetch, with the
// checkpoint advanced only after everything succeeded.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/convista/convsync/internal/extract"
	"github.com/convista/convsync/internal/schema"
	"github.com/convista/convsync/internal/window"
	"github.com/convista/convsync/pkg/types"
)

// State is the observable phase of a run.
type State string

const (
	StateIdle                State = "idle"
	StateFetchingDicts       State = "fetching_dictionaries"
	StateLoadingDicts        State = "loading_dictionaries"
	StateFetchingSessions    State = "fetching_sessions"
	StateLoadingSessions     State = "loading_sessions"
	StateFetchingIncremental State = "fetching_incremental"
	StateLoadingIncremental  State = "loading_incremental"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Extractor is the fetch side of the pipeline.
type Extractor interface {
	Dictionaries(ctx context.Context) (map[string]types.RowSet, error)
	Sessions(ctx context.Context, run window.Run, extraFilter string) (types.RowSet, error)
	Enrich(ctx context.Context, sessions types.RowSet, en extract.Enrichment) error
}

// Transformer normalizes fetched records into loadable datasets.
type Transformer interface {
	Dictionaries(raw map[string]types.RowSet) (types.Dataset, error)
	Sessions(sessions types.RowSet) (types.Dataset, error)
}

// Loader is the destination side of the pipeline.
type Loader interface {
	Load(ctx context.Context, ds types.Dataset) error
}

// Checkpoints persists the last-success high-water mark.
type Checkpoints interface {
	Read() time.Time
	Write(t time.Time) error
}

// Syncer runs the pipeline phases in order.
type Syncer struct {
	ex  Extractor
	tr  Transformer
	ld  Loader
	cp  Checkpoints
	log zerolog.Logger

	// incrementalDays is the trailing re-fetch depth; zero disables the
	// incremental passes entirely.
	incrementalDays int
	enrichments     []extract.Enrichment

	now   func() time.Time
	state State
}

func New(ex Extractor, tr Transformer, ld Loader, cp Checkpoints,
	incrementalDays int, enrichments []extract.Enrichment, log zerolog.Logger) *Syncer {
	return &Syncer{
		ex: ex, tr: tr, ld: ld, cp: cp, log: log,
		incrementalDays: incrementalDays,
		enrichments:     enrichments,
		now:             time.Now,
		state:           StateIdle,
	}
}

// State returns the current run phase.
func (s *Syncer) State() State {
	return s.state
}

func (s *Syncer) setState(st State) {
	s.state = st
	s.log.Info().Str("state", string(st)).Msg("sync phase")
}

// Run executes one complete sync. The checkpoint is written only when every
// phase succeeded; a failed run leaves it untouched so the next run covers
// the same ground again.
func (s *Syncer) Run(ctx context.Context, run window.Run, extraFilter string) error {
	checkpoint := s.cp.Read()
	s.log.Info().
		Str("start", run.Start.Format(window.DateFormat)).
		Str("stop", run.Stop.Format(window.DateFormat)).
		Bool("historical", run.Historical).
		Time("checkpoint", checkpoint).
		Msg("sync starting")

	dicts, err := s.syncDictionaries(ctx)
	if err != nil {
		s.setState(StateFailed)
		return err
	}

	if err := s.syncSessions(ctx, StateFetchingSessions, StateLoadingSessions, run, extraFilter); err != nil {
		s.setState(StateFailed)
		return err
	}

	if !run.Historical && s.incrementalDays > 0 {
		if err := s.syncIncremental(ctx, run, dicts, checkpoint); err != nil {
			s.setState(StateFailed)
			return err
		}
	}

	if err := s.cp.Write(s.now().UTC()); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("advancing checkpoint: %w", err)
	}
	s.setState(StateDone)
	return nil
}

func (s *Syncer) syncDictionaries(ctx context.Context) (types.Dataset, error) {
	s.setState(StateFetchingDicts)
	raw, err := s.ex.Dictionaries(ctx)
	if err != nil {
		return nil, err
	}

	ds, err := s.tr.Dictionaries(raw)
	if err != nil {
		return nil, err
	}

	s.setState(StateLoadingDicts)
	if err := s.load(ctx, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// syncSessions runs one fetch-enrich-transform-load pass over a window.
// An empty window is a successful no-op.
func (s *Syncer) syncSessions(ctx context.Context, fetching, loading State, run window.Run, filter string) error {
	s.setState(fetching)
	sessions, err := s.ex.Sessions(ctx, run, filter)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		s.log.Info().Msg("no sessions in window")
		return nil
	}

	for _, en := range s.enrichments {
		if err := s.ex.Enrich(ctx, sessions, en); err != nil {
			return err
		}
	}

	ds, err := s.tr.Sessions(sessions)
	if err != nil {
		return err
	}

	s.setState(loading)
	return s.load(ctx, ds)
}

// syncIncremental re-fetches the trailing window twice: once for sessions
// scored by hand since they were first loaded, once for sessions matched by
// categories that changed since the last successful run.
func (s *Syncer) syncIncremental(ctx context.Context, run window.Run, dicts types.Dataset, checkpoint time.Time) error {
	inc := window.Incremental(run.Stop, s.incrementalDays)

	if err := s.syncSessions(ctx, StateFetchingIncremental, StateLoadingIncremental,
		inc, "is_scored,manual"); err != nil {
		return err
	}

	ids := changedCategoryIDs(dicts["categories"], checkpoint)
	if len(ids) == 0 {
		s.log.Info().Msg("no categories changed since checkpoint, skipping category re-fetch")
		return nil
	}
	filter := "categories," + strings.Join(ids, ",") + "|or"
	return s.syncSessions(ctx, StateFetchingIncremental, StateLoadingIncremental, inc, filter)
}

// changedCategoryIDs returns the ids of categories updated after the
// checkpoint. Category edits retroactively re-tag matched sessions, so those
// sessions must be fetched again.
func changedCategoryIDs(categories types.RowSet, checkpoint time.Time) []string {
	var ids []string
	for _, c := range categories {
		updated, ok := c["updated_at"].(time.Time)
		if !ok || !updated.After(checkpoint) {
			continue
		}
		if id, ok := c.ID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// load reports schema drift before handing the dataset to the destination.
func (s *Syncer) load(ctx context.Context, ds types.Dataset) error {
	for _, warning := range schema.Reconcile(ds) {
		s.log.Warn().Msg(warning)
	}
	return s.ld.Load(ctx, ds)
}
