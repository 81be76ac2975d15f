// Package sqlutil holds the database/sql plumbing shared by the engine
// connectors. Dialect decisions (quoting, placeholders, catalogs) stay
// in each engine package; this is only row scanning and query assembly.
package sqlutil

import (
	"database/sql"
	"strings"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

// QuoteFunc escapes an identifier per engine dialect.
type QuoteFunc func(identifier string) string

// SelectQuery assembles a SELECT over the given columns. An empty
// where clause produces a full projection.
func SelectQuery(table string, columns []string, where string, quote QuoteFunc) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(col))
	}
	b.WriteString(" FROM ")
	b.WriteString(quote(table))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return b.String()
}

// ScanBatch drains rows into a RecordBatch keyed by the given column
// order. Driver byte slices are converted to strings; everything else
// passes through as the driver produced it.
func ScanBatch(table string, columns []string, rows *sql.Rows) (*core.RecordBatch, error) {
	batch := &core.RecordBatch{
		Table:   table,
		Columns: columns,
	}

	values := make([]interface{}, len(columns))
	targets := make([]interface{}, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan row").
				WithDetail("table", table)
		}
		row := make(core.Row, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		batch.Rows = append(batch.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "error iterating rows").
			WithDetail("table", table)
	}
	return batch, nil
}

// RowID finds the identity value in a row with case-insensitive column
// matching.
func RowID(row core.Row, column string) (interface{}, bool) {
	if v, ok := row[column]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}

func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
