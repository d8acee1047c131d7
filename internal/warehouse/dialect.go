package warehouse

import (
	"fmt"
	"strings"

	"github.com/convista/convsync/internal/schema"
)

// dialect captures the per-driver SQL differences: placeholder style,
// autoincrement declaration, abstract-to-concrete type mapping, and the
// table existence probe.
type dialect struct {
	name        string
	tableExists string
	autoID      string
	typeName    func(schema.ColumnType) string
	placeholder func(n int) string
}

// placeholders renders count placeholders numbered after offset.
func (d dialect) placeholders(count, offset int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = d.placeholder(offset + i + 1)
	}
	return strings.Join(ps, ", ")
}

var sqliteDialect = dialect{
	name:        "sqlite",
	tableExists: "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?",
	autoID:      "INTEGER PRIMARY KEY AUTOINCREMENT",
	typeName: func(t schema.ColumnType) string {
		switch t {
		case schema.Integer, schema.Bool:
			return "INTEGER"
		case schema.Float:
			return "REAL"
		default:
			return "TEXT"
		}
	},
	placeholder: func(int) string { return "?" },
}

var postgresDialect = dialect{
	name:        "postgres",
	tableExists: "SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1",
	autoID:      "BIGSERIAL PRIMARY KEY",
	typeName: func(t schema.ColumnType) string {
		switch t {
		case schema.Integer:
			return "BIGINT"
		case schema.Float:
			return "DOUBLE PRECISION"
		case schema.Bool:
			return "BOOLEAN"
		case schema.DateTime:
			return "TIMESTAMP"
		case schema.JSON:
			return "JSONB"
		default:
			return "TEXT"
		}
	},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}
