// Package schema declares the warehouse target schema: every entity table,
// its columns, its uniqueness key, and the data-driven transform rules
// (timestamp columns, out-of-scope column drops) the normalizer applies.
// Keeping the rules here, next to the column declarations, means upstream
// drift shows up as reconciler warnings instead of silent data loss.
package schema

import "time"

// ColumnType is the abstract column type mapped to a concrete SQL type per
// dialect by the warehouse.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Float
	Bool
	DateTime
	JSON
)

// Column is one declared warehouse column.
type Column struct {
	Name string
	Type ColumnType
}

// TimestampRule declares how the normalizer canonicalizes one timestamp
// column. All parsed values are truncated to whole seconds.
type TimestampRule struct {
	Column string
	// Default replaces out-of-range values (the upstream uses year 1 as a
	// sentinel) instead of failing the run. Zero means out-of-range is an
	// error.
	Default time.Time
	// Recover enables the fallback heuristic on parse failure: extract the
	// leading YYYY-MM-DDTHH:MM:SS and re-parse before giving up.
	Recover bool
	// Optional columns are parsed only when present in the row-set; some
	// child endpoints omit them entirely.
	Optional bool
}

// Entity is one warehouse table.
type Entity struct {
	Name    string
	Columns []Column
	// AutoID entities use a synthetic autoincrement "id" primary key; rows
	// never supply it and the sink never writes it.
	AutoID bool
	// PrimaryKey lists the primary key columns.
	PrimaryKey []string
	// Unique lists the explicit unique-constraint columns. Empty means the
	// primary key is the uniqueness key.
	Unique []string
	// Timestamps are the normalizer's canonicalization rules.
	Timestamps []TimestampRule
	// Drop lists upstream fields explicitly out of warehouse scope; the
	// normalizer strips them so anything else unknown is real drift.
	Drop []string
	// Dictionary marks slow-changing reference data (vs event entities).
	Dictionary bool
}

// KeyColumns returns the entity's uniqueness key: the declared unique
// constraint, else the primary key.
func (e Entity) KeyColumns() []string {
	if len(e.Unique) > 0 {
		return e.Unique
	}
	return e.PrimaryKey
}

// HasColumn reports whether the entity declares the named column.
func (e Entity) HasColumn(name string) bool {
	for _, c := range e.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ByName returns the declared entity with the given table name.
func ByName(name string) (Entity, bool) {
	for _, e := range Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// agDefault is the replacement for the upstream's year-1 sentinel on agent
// group association start dates.
var agDefault = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Entities declares every warehouse table in foreign-key-safe load order:
// dictionary entities first, then sessions and their exploded children.
var Entities = []Entity{
	{
		Name:       "agents",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"name", Text}, {"phone_number", Text},
			{"is_active", Bool}, {"deactivated_at", DateTime},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Timestamps: []TimestampRule{{Column: "deactivated_at"}},
		Drop:       []string{"user", "reactions", "phone_number_aliases"},
	},
	{
		Name:       "scorecards",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"name", Text}, {"type", Text}, {"na_behavior", Text},
			{"count_critical_scores", Bool}, {"is_automated", Bool},
			{"is_protected", Bool}, {"is_default", Bool}, {"is_archived", Bool},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Drop:       []string{"team_ids"},
	},
	{
		Name:       "groups",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"name", Text}, {"scorecard_id", Integer}, {"is_default", Bool},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Drop:       []string{"additional_scorecards"},
	},
	{
		Name:       "agent_group_associations",
		Dictionary: true,
		AutoID:     true,
		Columns: []Column{
			{"id", Integer}, {"group_id", Integer}, {"agent_id", Integer}, {"start_dt", DateTime},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"group_id", "agent_id", "start_dt"},
		Timestamps: []TimestampRule{{Column: "start_dt", Default: agDefault}},
	},
	{
		Name:       "users",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"email", Text}, {"is_active", Bool}, {"is_superuser", Bool},
			{"full_name", Text}, {"agent_id", Integer}, {"agent_group_id", Integer},
			{"language", Text}, {"uuid", Text}, {"invite_expires", DateTime},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Timestamps: []TimestampRule{{Column: "invite_expires"}},
		Drop:       []string{"role_ids", "permissions"},
	},
	{
		Name:       "categories",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"name", Text}, {"filter_data", Text}, {"position", Integer},
			{"created_at", DateTime}, {"updated_at", DateTime},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Timestamps: []TimestampRule{{Column: "created_at"}, {Column: "updated_at"}},
	},
	{
		Name:       "labels",
		Dictionary: true,
		Columns:    []Column{{"id", Integer}, {"text", Text}},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Drop:       []string{"color"},
	},
	{
		Name:       "category_labels",
		Dictionary: true,
		AutoID:     true,
		Columns:    []Column{{"id", Integer}, {"category_id", Integer}, {"label_id", Integer}},
		PrimaryKey: []string{"id"},
		Unique:     []string{"category_id", "label_id"},
	},
	{
		Name:       "scorecard_categories",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"name", Text}, {"scorecard_id", Integer}, {"sort_order", Integer},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id", "scorecard_id"},
	},
	{
		Name:       "scorecard_points",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"scorecard_id", Integer}, {"category_id", Integer},
			{"name", Text}, {"description", Text}, {"sort_order", Integer},
			{"critical", Bool}, {"max_score", Integer}, {"allow_partial_score", Bool},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id", "scorecard_id"},
		Drop:       []string{"score_values", "user_data"},
	},
	{
		Name:       "tags",
		Dictionary: true,
		Columns: []Column{
			{"id", Integer}, {"name", Text}, {"type", Text}, {"team_id", Integer},
			{"is_archived", Bool}, {"archived_by_id", Integer}, {"archived_at", DateTime},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Timestamps: []TimestampRule{{Column: "archived_at"}},
		Drop:       []string{"words", "phrases", "color"},
	},
	{
		Name:       "tag_labels",
		Dictionary: true,
		AutoID:     true,
		Columns:    []Column{{"id", Integer}, {"tag_id", Integer}, {"label_id", Integer}},
		PrimaryKey: []string{"id"},
		Unique:     []string{"tag_id", "label_id"},
	},
	{
		Name: "sessions",
		Columns: []Column{
			{"id", Text}, {"type", Text}, {"caller_id", Text}, {"source", Text},
			{"language_code", Text}, {"asr_size", Text}, {"filename", Text},
			{"destination_id", Text}, {"start_dt", DateTime}, {"direction", Text},
			{"agent_id", Integer}, {"group_id", Integer}, {"duration", Float},
			{"silence", Float}, {"silence_percent", Float}, {"agent_channel", Integer},
			{"comments_count", Integer}, {"default_scorecard_id", Integer},
			{"average_score", Float}, {"is_processed", Bool}, {"overlaps_data", JSON},
			{"duration_details", JSON}, {"score_details", JSON}, {"queue_name", Text},
			{"campaign_name", Text}, {"term_reason", Text}, {"waiting_time", Integer},
			{"fcr", Integer}, {"csi", Integer}, {"nps", Integer}, {"list_id", Integer},
			{"words_count_agent", Integer}, {"words_count_client", Integer},
			{"words_count_both", Integer}, {"caller_prev_session_id", Text},
			{"additional_info", JSON},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"id"},
		Timestamps: []TimestampRule{{Column: "start_dt", Recover: true}},
		Drop: []string{
			"end_dt", "created_at", "updated_at",
			"compliance_matches", "ptp_kept_prediction", "comment_author_ids",
			"group", "agent", "agent_name", "category_ids",
			"emotions", "activity", "sentiments", "events_call_id", "low_quality",
			"transcripts",
		},
	},
	{
		Name:   "sessions_categories",
		AutoID: true,
		Columns: []Column{
			{"id", Integer}, {"session_id", Text}, {"category_id", Integer}, {"is_verified", Bool},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"session_id", "category_id", "is_verified"},
	},
	{
		Name:   "sessions_crm_statuses",
		AutoID: true,
		Columns: []Column{
			{"id", Integer}, {"session_id", Text}, {"crm_status", Text},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"session_id", "crm_status"},
	},
	{
		Name:   "sessions_reviewers",
		AutoID: true,
		Columns: []Column{
			{"id", Integer}, {"session_id", Text}, {"reviewer_id", Integer},
			{"last_reviewed_at", DateTime},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"session_id", "reviewer_id"},
		Timestamps: []TimestampRule{{Column: "last_reviewed_at", Optional: true}},
		Drop:       []string{"name"},
	},
	{
		Name:   "sessions_scores",
		AutoID: true,
		Columns: []Column{
			{"id", Integer}, {"session_id", Text}, {"scorecard_id", Integer},
			{"reviewer_id", Integer}, {"scorecard_point_id", Integer},
			{"score", Integer}, {"comment", Text},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"session_id", "scorecard_id", "reviewer_id", "scorecard_point_id"},
		Drop:       []string{"id", "meta"},
	},
	{
		Name:   "sessions_tags",
		AutoID: true,
		Columns: []Column{
			{"id", Integer}, {"session_id", Text}, {"tag_id", Integer}, {"score", Float},
			{"matched_corpus_text", Text}, {"is_agent", Bool}, {"transcript_id", Integer},
			{"matched_query_text", Text}, {"meta", JSON},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"session_id", "tag_id", "transcript_id"},
	},
	{
		Name:   "sessions_comments",
		AutoID: true,
		Columns: []Column{
			{"id", Integer}, {"session_id", Text}, {"author_id", Integer},
			{"text", Text}, {"comments", Text},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"session_id"},
		Drop:       []string{"created_at", "updated_at"},
	},
	{
		Name:   "sessions_summaries",
		AutoID: true,
		Columns: []Column{
			{"id", Integer}, {"session_id", Text}, {"text", Text},
		},
		PrimaryKey: []string{"id"},
		Unique:     []string{"session_id"},
		Drop:       []string{"id", "created_at", "updated_at"},
	},
}
