// Package warehouse is the relational sink: it owns the connection to the
// target database, creates missing entity tables, and loads normalized
// row-sets with per-row upserts inside one transaction per dataset.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/convista/convsync/internal/schema"
	"github.com/convista/convsync/pkg/types"
)

// Strategy selects how existing rows are updated.
type Strategy string

const (
	// StrategyAuto resolves to the best strategy the dialect supports.
	StrategyAuto Strategy = "auto"
	// StrategyAtomic upserts with INSERT ... ON CONFLICT DO UPDATE.
	StrategyAtomic Strategy = "atomic"
	// StrategyMerge checks for an existing row by key and updates only the
	// columns present in the incoming record, preserving the rest.
	StrategyMerge Strategy = "merge"
)

// DB is an open warehouse connection bound to one dialect and strategy.
type DB struct {
	db       *sql.DB
	dialect  dialect
	strategy Strategy
	log      zerolog.Logger
	logEvery int
}

// Open connects to the warehouse named by databaseURL. Supported schemes are
// postgres:// (and postgresql://), sqlite://, and a bare filesystem path,
// which is treated as a SQLite file.
func Open(databaseURL string, strategy Strategy, logEvery int, log zerolog.Logger) (*DB, error) {
	driver, dsn, d, err := resolveDriver(databaseURL)
	if err != nil {
		return nil, err
	}

	resolved := strategy
	if resolved == "" || resolved == StrategyAuto {
		resolved = StrategyAtomic
	}
	if resolved != StrategyAtomic && resolved != StrategyMerge {
		return nil, fmt.Errorf("unknown upsert strategy %q", strategy)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s warehouse: %w", d.name, err)
	}

	log.Info().
		Str("dialect", d.name).
		Str("url", anonymizeURL(databaseURL)).
		Str("strategy", string(resolved)).
		Msg("warehouse connected")

	return &DB{db: db, dialect: d, strategy: resolved, log: log, logEvery: logEvery}, nil
}

// Close releases the underlying connection pool.
func (w *DB) Close() error {
	return w.db.Close()
}

// resolveDriver maps a database URL onto a registered driver and dialect.
func resolveDriver(databaseURL string) (driver, dsn string, d dialect, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		return "pgx", databaseURL, postgresDialect, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite", strings.TrimPrefix(databaseURL, "sqlite://"), sqliteDialect, nil
	case !strings.Contains(databaseURL, "://"):
		// A bare path is a SQLite file.
		return "sqlite", databaseURL, sqliteDialect, nil
	}
	scheme := databaseURL[:strings.Index(databaseURL, "://")]
	return "", "", dialect{}, fmt.Errorf("database scheme %q: %w", scheme, types.ErrUnknownDestination)
}

// anonymizeURL strips the password from a database URL for logging.
func anonymizeURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.User == nil {
		return databaseURL
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxx")
	}
	return u.String()
}

// EnsureTables creates every declared entity table that does not already
// exist. Existing tables are left untouched; schema drift against them is
// the reconciler's concern.
func (w *DB) EnsureTables(ctx context.Context) error {
	for _, e := range schema.Entities {
		var exists int
		err := w.db.QueryRowContext(ctx, w.dialect.tableExists, e.Name).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking table %s: %w", e.Name, err)
		}
		ddl := createTableDDL(e, w.dialect)
		if _, err := w.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", e.Name, err)
		}
		w.log.Info().Str("table", e.Name).Msg("created warehouse table")
	}
	return nil
}

// createTableDDL renders the CREATE TABLE statement for one entity. Foreign
// keys are deliberately not declared so load order never blocks a run.
func createTableDDL(e schema.Entity, d dialect) string {
	var cols []string
	for _, c := range e.Columns {
		if e.AutoID && c.Name == "id" {
			cols = append(cols, "id "+d.autoID)
			continue
		}
		cols = append(cols, c.Name+" "+d.typeName(c.Type))
	}
	if !e.AutoID && len(e.PrimaryKey) > 0 {
		cols = append(cols, "PRIMARY KEY ("+strings.Join(e.PrimaryKey, ", ")+")")
	}
	if len(e.Unique) > 0 && !sameColumns(e.Unique, e.PrimaryKey) {
		cols = append(cols, "UNIQUE ("+strings.Join(e.Unique, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", e.Name, strings.Join(cols, ",\n\t"))
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Load writes every row-set in the dataset inside a single transaction, in
// declared entity order so parents land before children. Any row failure
// rolls the whole dataset back.
func (w *DB) Load(ctx context.Context, ds types.Dataset) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range schema.Entities {
		rows, ok := ds[e.Name]
		if !ok {
			continue
		}
		if err := w.loadEntity(ctx, tx, e, rows); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// loadEntity upserts one row-set. Fields without a declared column are
// dropped with a single warning per entity; the synthetic id of AutoID
// entities is never written.
func (w *DB) loadEntity(ctx context.Context, tx *sql.Tx, e schema.Entity, rows types.RowSet) error {
	dropped := map[string]bool{}
	keys := e.KeyColumns()

	for i, row := range rows {
		cols, vals, err := w.bindRow(e, row, dropped)
		if err != nil {
			return fmt.Errorf("entity %s row %d: %w", e.Name, i, err)
		}

		var missing []string
		for _, k := range keys {
			if !containsColumn(cols, k) {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return &types.MissingKeyError{Entity: e.Name, Columns: missing, Row: row}
		}

		if w.strategy == StrategyAtomic {
			err = w.upsertAtomic(ctx, tx, e, keys, cols, vals)
		} else {
			err = w.upsertMerge(ctx, tx, e, keys, cols, vals)
		}
		if err != nil {
			w.log.Error().
				Str("entity", e.Name).
				Interface("key", keyValues(keys, cols, vals)).
				Interface("row", row).
				Msg("row upsert failed")
			return fmt.Errorf("entity %s: %w", e.Name, err)
		}

		if w.logEvery > 0 && (i+1)%w.logEvery == 0 {
			w.log.Info().Str("entity", e.Name).
				Int("done", i+1).Int("total", len(rows)).Msg("loading")
		}
	}

	if len(dropped) > 0 {
		names := make([]string, 0, len(dropped))
		for n := range dropped {
			names = append(names, n)
		}
		sort.Strings(names)
		w.log.Warn().Str("entity", e.Name).Strs("fields", names).
			Msg("dropped fields with no warehouse column")
	}

	w.log.Info().Str("entity", e.Name).Int("rows", len(rows)).Msg("entity loaded")
	return nil
}

// bindRow filters a record to declared columns and converts the values to
// driver-bindable form. Column order is sorted for stable statements.
func (w *DB) bindRow(e schema.Entity, row types.Record, dropped map[string]bool) ([]string, []any, error) {
	cols := make([]string, 0, len(row))
	for field := range row {
		if e.AutoID && field == "id" {
			continue
		}
		if !e.HasColumn(field) {
			dropped[field] = true
			continue
		}
		cols = append(cols, field)
	}
	sort.Strings(cols)

	vals := make([]any, len(cols))
	for i, c := range cols {
		v, err := bindValue(row[c])
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", c, err)
		}
		vals[i] = v
	}
	return cols, vals, nil
}

// bindValue converts a normalized value into something both drivers accept.
// Timestamps become second-precision UTC strings, nested structures become
// JSON text.
func bindValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v, nil
	case time.Time:
		return t.UTC().Format("2006-01-02T15:04:05Z"), nil
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshaling nested value: %w", err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unbindable value type %T", v)
	}
}

// upsertAtomic runs INSERT ... ON CONFLICT DO UPDATE over the row's present
// columns. When every present column is part of the key there is nothing to
// update and conflicts are ignored.
func (w *DB) upsertAtomic(ctx context.Context, tx *sql.Tx, e schema.Entity, keys, cols []string, vals []any) error {
	var sets []string
	for _, c := range cols {
		if !containsColumn(keys, c) {
			sets = append(sets, c+" = excluded."+c)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		e.Name, strings.Join(cols, ", "), w.dialect.placeholders(len(cols), 0),
		strings.Join(keys, ", "))
	if len(sets) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET " + strings.Join(sets, ", "))
	}

	if _, err := tx.ExecContext(ctx, b.String(), vals...); err != nil {
		return fmt.Errorf("upserting: %w", err)
	}
	return nil
}

// upsertMerge is the check-then-act strategy for dialects without a native
// upsert, kept selectable everywhere because its partial-update semantics
// preserve columns absent from the incoming record.
func (w *DB) upsertMerge(ctx context.Context, tx *sql.Tx, e schema.Entity, keys, cols []string, vals []any) error {
	where, keyArgs := w.keyPredicate(keys, cols, vals, 0)

	var exists int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s", e.Name, where), keyArgs...).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			e.Name, strings.Join(cols, ", "), w.dialect.placeholders(len(cols), 0))
		if _, err := tx.ExecContext(ctx, q, vals...); err != nil {
			return fmt.Errorf("inserting: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("checking existing row: %w", err)
	}

	var sets []string
	var setArgs []any
	for i, c := range cols {
		if containsColumn(keys, c) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", c, w.dialect.placeholder(len(sets)+1)))
		setArgs = append(setArgs, vals[i])
	}
	if len(sets) == 0 {
		return nil
	}

	where, keyArgs = w.keyPredicate(keys, cols, vals, len(sets))
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", e.Name, strings.Join(sets, ", "), where)
	if _, err := tx.ExecContext(ctx, q, append(setArgs, keyArgs...)...); err != nil {
		return fmt.Errorf("updating: %w", err)
	}
	return nil
}

// keyPredicate builds the WHERE clause matching the row's key columns,
// numbering placeholders after the given offset.
func (w *DB) keyPredicate(keys, cols []string, vals []any, offset int) (string, []any) {
	preds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		for i, c := range cols {
			if c == k {
				if vals[i] == nil {
					preds = append(preds, k+" IS NULL")
				} else {
					preds = append(preds, fmt.Sprintf("%s = %s", k, w.dialect.placeholder(offset+len(args)+1)))
					args = append(args, vals[i])
				}
				break
			}
		}
	}
	return strings.Join(preds, " AND "), args
}

func keyValues(keys, cols []string, vals []any) map[string]any {
	kv := make(map[string]any, len(keys))
	for _, k := range keys {
		for i, c := range cols {
			if c == k {
				kv[k] = vals[i]
			}
		}
	}
	return kv
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
