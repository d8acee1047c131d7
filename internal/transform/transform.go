// Package transform is the normalizer: it reshapes nested API records into
// flat per-entity row-sets ready for the warehouse, canonicalizes
// timestamps, and strips columns declared out of warehouse scope.
package transform

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/convista/convsync/internal/schema"
	"github.com/convista/convsync/pkg/types"
)

// defaultUser is appended to the users dictionary when the API omits the
// built-in system account (id 0) that historical rows reference.
var defaultUser = types.Record{
	"id":             float64(0),
	"full_name":      "System",
	"email":          "system@localhost",
	"is_active":      false,
	"is_superuser":   false,
	"invite_expires": "1900-01-01T00:00:00.000",
}

// Transformer normalizes one run-family of fetched records.
type Transformer struct {
	log zerolog.Logger
	// debugDir receives diagnostic artifacts, e.g. the raw batch when the
	// scores sub-resource never arrived.
	debugDir string
}

func New(log zerolog.Logger, debugDir string) *Transformer {
	return &Transformer{log: log, debugDir: debugDir}
}

// Dictionaries flattens the base dictionary records (agents, categories,
// groups, labels, scorecards, tags, users) into one row-set per warehouse
// table, exploding every nested collection into its join table.
func (t *Transformer) Dictionaries(raw map[string]types.RowSet) (types.Dataset, error) {
	ds := types.Dataset{}
	for name, rows := range raw {
		ds[name] = rows
	}

	t.log.Info().Msg("flattening nested dictionary collections")

	// agents[].groups -> agent_group_associations
	assoc, err := explode(ds["agents"], "groups", explodeOpts{
		parentKey: "agent_id", renameID: "group_id",
	})
	if err != nil {
		return nil, fmt.Errorf("exploding agent groups: %w", err)
	}
	ds["agent_group_associations"] = assoc
	dropFields(ds["agents"], "groups")

	// categories[].labels -> category_labels
	catLabels, err := explode(ds["categories"], "labels", explodeOpts{
		parentKey: "category_id", prefix: "label_",
		keep: []string{"category_id", "label_id"},
	})
	if err != nil {
		return nil, fmt.Errorf("exploding category labels: %w", err)
	}
	if len(catLabels) == 0 {
		t.log.Warn().Msg("no category labels upstream, skipping")
	}
	ds["category_labels"] = catLabels
	dropFields(ds["categories"], "labels")

	// scorecards[].categories -> scorecard_categories -> scorecard_points.
	// The two-level explosion propagates the outer scorecard_id alongside
	// the category_id introduced by the inner step.
	scCategories, err := explode(ds["scorecards"], "categories", explodeOpts{parentKey: "scorecard_id"})
	if err != nil {
		return nil, fmt.Errorf("exploding scorecard categories: %w", err)
	}
	scPoints, err := explode(scCategories, "points", explodeOpts{
		parentKey: "category_id", carry: []string{"scorecard_id"},
	})
	if err != nil {
		return nil, fmt.Errorf("exploding scorecard points: %w", err)
	}
	ds["scorecard_categories"] = scCategories
	ds["scorecard_points"] = scPoints
	dropFields(ds["scorecards"], "categories")
	dropFields(ds["scorecard_categories"], "points")

	// tags[].labels -> tag_labels
	tagLabels, err := explode(ds["tags"], "labels", explodeOpts{
		parentKey: "tag_id", prefix: "label_",
		keep: []string{"tag_id", "label_id"},
	})
	if err != nil {
		return nil, fmt.Errorf("exploding tag labels: %w", err)
	}
	if len(tagLabels) == 0 {
		t.log.Warn().Msg("no tag labels upstream, skipping")
	}
	ds["tag_labels"] = tagLabels
	dropFields(ds["tags"], "labels")

	ds["users"] = ensureDefaultUser(ds["users"])

	if err := t.finish(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// Sessions flattens a fetched session batch into the session row-set and
// one row-set per exploded child entity (tags, categories, reviewers,
// scores, comments, summaries, CRM statuses).
func (t *Transformer) Sessions(sessions types.RowSet) (types.Dataset, error) {
	ds := types.Dataset{"sessions": sessions}

	t.log.Info().Int("sessions", len(sessions)).Msg("flattening session collections")

	// sessions[].tags[].match is two levels deep: the tag row carries the
	// session back-reference, the match row carries both.
	tagRows, err := explode(sessions, "tags", explodeOpts{parentKey: "session_id"})
	if err != nil {
		return nil, fmt.Errorf("exploding session tags: %w", err)
	}
	matches, err := explode(tagRows, "match", explodeOpts{
		parentKey: "tag_id", carry: []string{"session_id"},
	})
	if err != nil {
		return nil, fmt.Errorf("exploding tag matches: %w", err)
	}
	ds["sessions_tags"] = matches

	cats, err := explode(sessions, "categories", explodeOpts{
		parentKey: "session_id", renameID: "category_id",
	})
	if err != nil {
		return nil, fmt.Errorf("exploding session categories: %w", err)
	}
	ds["sessions_categories"] = cats

	reviewers, err := explode(sessions, "reviewers", explodeOpts{
		parentKey: "session_id", renameID: "reviewer_id",
	})
	if err != nil {
		return nil, fmt.Errorf("exploding session reviewers: %w", err)
	}
	ds["sessions_reviewers"] = reviewers

	// sessions[].scores[].point_scores: the API batches all point scores
	// under one scores element per review to keep payloads small. If the
	// scores sub-resource never arrived for this batch, divert the raw
	// batch to a debug artifact and continue without the explosion rather
	// than failing the run.
	if len(sessions) > 0 && !anyRowHas(sessions, "scores") {
		t.log.Error().Msg("'scores' missing from every session; diverting batch to debug artifact")
		t.dumpDebug("sessions_broken_scores.json", sessions)
	} else {
		scoreRows, err := explode(sessions, "scores", explodeOpts{parentKey: "session_id"})
		if err != nil {
			return nil, fmt.Errorf("exploding session scores: %w", err)
		}
		pointScores, err := explode(scoreRows, "point_scores", explodeOpts{
			carry: []string{"session_id", "scorecard_id", "reviewer_id"},
		})
		if err != nil {
			return nil, fmt.Errorf("exploding point scores: %w", err)
		}
		ds["sessions_scores"] = pointScores
	}

	comments, err := explode(sessions, "comments", explodeOpts{parentKey: "session_id"})
	if err != nil {
		return nil, fmt.Errorf("exploding session comments: %w", err)
	}
	ds["sessions_comments"] = comments

	summaries, err := explode(sessions, "summary", explodeOpts{parentKey: "session_id"})
	if err != nil {
		return nil, fmt.Errorf("exploding session summaries: %w", err)
	}
	ds["sessions_summaries"] = summaries

	crm, err := explode(sessions, "crm_statuses", explodeOpts{parentKey: "session_id"})
	if err != nil {
		return nil, fmt.Errorf("exploding session crm statuses: %w", err)
	}
	ds["sessions_crm_statuses"] = crm

	dropFields(sessions,
		"tags", "categories", "reviewers", "crm_statuses", "scores", "comments", "summary")

	if err := t.finish(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// finish applies the declared per-entity rules shared by both families:
// timestamp canonicalization, out-of-scope column drops, and null
// canonicalization.
func (t *Transformer) finish(ds types.Dataset) error {
	for name, rows := range ds {
		e, ok := schema.ByName(name)
		if !ok {
			// Unknown entities are the reconciler's concern, not ours.
			continue
		}
		if err := normalizeTimestamps(name, rows, e.Timestamps); err != nil {
			return err
		}
		if len(e.Drop) > 0 {
			dropFields(rows, e.Drop...)
		}
		canonicalizeNulls(rows)

		if len(rows) > 0 {
			t.log.Debug().Str("entity", name).Int("rows", len(rows)).
				Interface("first", rows[0]).Msg("normalized row-set")
		} else {
			t.log.Warn().Str("entity", name).Msg("no records for entity")
		}
	}
	return nil
}

// canonicalizeNulls replaces null-like sentinel values with a canonical nil
// so the sink binds them as SQL NULL.
func canonicalizeNulls(rows types.RowSet) {
	for _, row := range rows {
		for k, v := range row {
			if f, ok := v.(float64); ok && math.IsNaN(f) {
				row[k] = nil
			}
		}
	}
}

// ensureDefaultUser appends the built-in system user when the fetched users
// dictionary lacks id 0.
func ensureDefaultUser(users types.RowSet) types.RowSet {
	for _, u := range users {
		if id, ok := u["id"].(float64); ok && id == 0 {
			return users
		}
	}
	return append(users, defaultUser.Clone())
}

// dumpDebug writes a diagnostic JSON artifact; failures are logged, never
// fatal.
func (t *Transformer) dumpDebug(name string, v any) {
	path := filepath.Join(t.debugDir, name)
	b, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		err = os.WriteFile(path, b, 0o644)
	}
	if err != nil {
		t.log.Error().Err(err).Str("path", path).Msg("writing debug artifact")
		return
	}
	t.log.Info().Str("path", path).Msg("debug artifact written")
}
