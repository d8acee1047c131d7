package schema

import (
	"fmt"
	"sort"

	"github.com/convista/convsync/pkg/types"
)

// Reconcile compares a normalized dataset against the declared target
// schema and returns human-readable warnings for upstream drift: row-sets
// with no target table, and first-row fields with no target column.
// It never fails and never filters; dropping unmatched columns is the
// sink's responsibility.
func Reconcile(ds types.Dataset) []string {
	var warnings []string

	names := make([]string, 0, len(ds))
	for name := range ds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rows := ds[name]
		e, ok := ByName(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf(
				"new entity %q appeared upstream with no corresponding warehouse table", name))
			continue
		}
		if len(rows) == 0 {
			continue
		}

		var unmatched []string
		for field := range rows[0] {
			if !e.HasColumn(field) {
				unmatched = append(unmatched, field)
			}
		}
		if len(unmatched) > 0 {
			sort.Strings(unmatched)
			warnings = append(warnings, fmt.Sprintf(
				"entity %q carries fields with no warehouse column: %v", name, unmatched))
		}
	}
	return warnings
}
