package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Backend abstracts one tabular data source behind a single read-only query
// operation. The exposed table name and query dialect are fixed once the
// backend is constructed.
type Backend interface {
	// Kind identifies the concrete variant: "db", "file" or "duckdb".
	Kind() string
	// TableName is the default table for sources loaded from a file; empty
	// for URL-backed databases.
	TableName() string
	// Ready reports whether the backend can serve queries.
	Ready() bool
	// RunSelect executes a pre-validated read-only query.
	RunSelect(ctx context.Context, query string) (*Table, error)
}

// Table is a tabular query result.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns all values of the named column, or nil if it is absent.
func (t *Table) Column(name string) []any {
	if t == nil {
		return nil
	}
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	vals := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx < len(row) {
			vals = append(vals, row[idx])
		} else {
			vals = append(vals, nil)
		}
	}
	return vals
}

// Records returns up to maxRows rows as column-keyed maps for JSON responses.
func (t *Table) Records(maxRows int) []map[string]any {
	if t.Empty() {
		return []map[string]any{}
	}
	n := len(t.Rows)
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	records := make([]map[string]any, 0, n)
	for _, row := range t.Rows[:n] {
		rec := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = nil
			}
		}
		records = append(records, rec)
	}
	return records
}

// Markdown renders up to maxRows rows as a markdown table for chat previews.
func (t *Table) Markdown(maxRows int) string {
	if t.Empty() {
		return "(no rows)"
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(t.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(t.Columns)) + "\n")

	n := len(t.Rows)
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	for _, row := range t.Rows[:n] {
		cells := make([]string, len(t.Columns))
		for i := range t.Columns {
			if i < len(row) && row[i] != nil {
				cells[i] = fmt.Sprintf("%v", row[i])
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// rewriteNoFrom substitutes the default table when the planner forgot the
// FROM clause entirely. Case-insensitive substring check, as in the file and
// analytical backends only; URL-backed databases run queries verbatim.
func rewriteNoFrom(query, table string) string {
	if table == "" {
		return query
	}
	if !strings.Contains(strings.ToLower(query), " from ") {
		return fmt.Sprintf("SELECT * FROM %s", table)
	}
	return query
}

// scanRows reads all rows into a Table, converting []byte text columns to
// string so results serialize cleanly.
func scanRows(rows *sql.Rows) (*Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %v", err)
	}

	table := &Table{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		row := make([]any, len(cols))
		for i := range values {
			if b, ok := values[i].([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = values[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %v", err)
	}
	return table, nil
}
