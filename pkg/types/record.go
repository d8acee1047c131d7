package types

import (
	"fmt"
	"maps"
)

// Record is one API-returned entity instance (session, agent, ...) as a
// field mapping. Values are whatever the JSON decoder produced: strings,
// float64 numbers, bools, nested maps and slices, or nil.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	c := make(Record, len(r))
	maps.Copy(c, r)
	return c
}

// ID returns the record's identifier rendered as a string. Identifiers are
// either integers or globally-unique string tokens; both are accepted.
func (r Record) ID() (string, bool) {
	v, ok := r["id"]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return fmt.Sprintf("%.0f", id), true
	case int:
		return fmt.Sprintf("%d", id), true
	case int64:
		return fmt.Sprintf("%d", id), true
	default:
		return "", false
	}
}

// Truthy reports whether the named field holds a non-empty value. Used by
// the enrichment step to skip sub-resource fetches for records the parent
// already marks as empty.
func (r Record) Truthy(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// RowSet is a flat, homogeneous collection of rows for one target entity
// table.
type RowSet []Record

// Dataset maps entity names to their row-sets. It is the unit of exchange
// between the normalizer and a sink: one Dataset per run-family
// (dictionaries or sessions).
type Dataset map[string]RowSet
