package transform

import (
	"fmt"

	"github.com/convista/convsync/pkg/types"
)

// explodeOpts controls how a nested collection field becomes its own
// row-set.
type explodeOpts struct {
	// parentKey is the derived column name for the parent's identifier
	// ("agent_id", "session_id"). Injected only when the child does not
	// already carry it, so endpoints that denormalize the parent id are
	// left untouched.
	parentKey string
	// renameID renames the child's own "id" column, e.g. a category record
	// inside a session becomes category_id.
	renameID string
	// prefix is prepended to every child column name ("label_").
	prefix string
	// carry copies additional parent columns into each child row; used for
	// two-level explosions to propagate the outer derived key.
	carry []string
	// keep, when set, restricts the child row to exactly these columns.
	keep []string
}

// explode flattens one nested collection field into a child row-set, one
// row per element, each carrying the parent identifier. Parents without the
// field, or with a nil value, contribute no rows. The field is left on the
// parent; callers strip nested fields in one place after all explosions.
func explode(parents types.RowSet, field string, opts explodeOpts) (types.RowSet, error) {
	var out types.RowSet
	for _, parent := range parents {
		v, ok := parent[field]
		if !ok || v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("field %s: expected a list, got %T", field, v)
		}
		for _, elem := range list {
			child, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %s: expected an object element, got %T", field, elem)
			}

			row := make(types.Record, len(child)+1+len(opts.carry))
			for k, val := range child {
				if k == "id" && opts.renameID != "" {
					k = opts.renameID
				}
				row[opts.prefix+k] = val
			}
			if opts.parentKey != "" {
				if _, exists := row[opts.parentKey]; !exists {
					row[opts.parentKey] = parent["id"]
				}
			}
			for _, c := range opts.carry {
				if _, exists := row[c]; !exists {
					row[c] = parent[c]
				}
			}
			if len(opts.keep) > 0 {
				kept := make(types.Record, len(opts.keep))
				for _, k := range opts.keep {
					kept[k] = row[k]
				}
				row = kept
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// dropFields removes the named fields from every row. Used both to strip
// exploded nested collections from their parents and to apply the declared
// out-of-scope column exclusions.
func dropFields(rows types.RowSet, fields ...string) {
	for _, row := range rows {
		for _, f := range fields {
			delete(row, f)
		}
	}
}
