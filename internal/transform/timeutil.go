package transform

import (
	"fmt"
	"regexp"
	"time"

	"github.com/convista/convsync/internal/schema"
	"github.com/convista/convsync/pkg/types"
)

// Accepted upstream timestamp layouts, most specific first. The API emits
// microsecond precision ("2024-06-26T10:15:44.620796") but older records
// carry bare seconds.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// leadingInstant extracts the leading YYYY-MM-DDTHH:MM:SS from a malformed
// timestamp, the recovery heuristic for values with trailing garbage.
var leadingInstant = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// parseInstant parses one timestamp value and truncates it to whole
// seconds. nil stays nil. Out-of-range values (the upstream's year-1
// sentinel) are replaced with rule.Default when one is declared, otherwise
// they are an error; unparseable values go through the recovery heuristic
// when the rule allows it.
func parseInstant(v any, rule schema.TimestampRule) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t, ok := v.(time.Time); ok {
		return clampInstant(t.Truncate(time.Second), rule)
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("column %s: not a timestamp: %v", rule.Column, v)
	}
	if s == "" {
		return nil, nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return clampInstant(t.Truncate(time.Second), rule)
		}
	}

	if rule.Recover {
		if m := leadingInstant.FindString(s); m != "" {
			if t, err := time.Parse("2006-01-02T15:04:05", m); err == nil {
				return clampInstant(t, rule)
			}
		}
	}
	return nil, fmt.Errorf("column %s: unparseable timestamp %q", rule.Column, s)
}

// clampInstant applies the out-of-range replacement. Year 1 is the observed
// upstream sentinel for "no meaningful date".
func clampInstant(t time.Time, rule schema.TimestampRule) (any, error) {
	if t.Year() > 1 {
		return t, nil
	}
	if !rule.Default.IsZero() {
		return rule.Default, nil
	}
	return nil, fmt.Errorf("column %s: timestamp %s outside representable range", rule.Column, t)
}

// normalizeTimestamps applies the entity's declared timestamp rules to every
// row. Optional rules are skipped when no row carries the column.
func normalizeTimestamps(entity string, rows types.RowSet, rules []schema.TimestampRule) error {
	for _, rule := range rules {
		if rule.Optional && !anyRowHas(rows, rule.Column) {
			continue
		}
		for _, row := range rows {
			v, ok := row[rule.Column]
			if !ok {
				continue
			}
			parsed, err := parseInstant(v, rule)
			if err != nil {
				return fmt.Errorf("entity %s: %w", entity, err)
			}
			row[rule.Column] = parsed
		}
	}
	return nil
}

func anyRowHas(rows types.RowSet, column string) bool {
	for _, row := range rows {
		if _, ok := row[column]; ok {
			return true
		}
	}
	return false
}
