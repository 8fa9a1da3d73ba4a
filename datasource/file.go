package datasource

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"
)

// FileBackend materializes a CSV or Excel file into an in-memory SQLite
// table at construction time and serves read-only queries against it.
type FileBackend struct {
	db    *sql.DB
	table string
	log   func(string)
}

// NewCSVBackend loads a CSV file into an in-memory table.
func NewCSVBackend(path, table string, logFunc func(string)) (*FileBackend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %v", err)
	}
	return newFileBackend(table, rows, logFunc)
}

// NewExcelBackend loads one sheet of an .xlsx file into an in-memory table.
// An empty sheet name selects the first sheet.
func NewExcelBackend(path, sheet, table string, logFunc func(string)) (*FileBackend, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %v", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("excel file has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %v", sheet, err)
	}
	return newFileBackend(table, rows, logFunc)
}

func newFileBackend(table string, rows [][]string, logFunc func(string)) (*FileBackend, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to process")
	}
	table = sanitizeName(table)

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %v", err)
	}
	// every pooled connection would get its own :memory: database
	db.SetMaxOpenConns(1)

	if err := loadRows(db, table, rows); err != nil {
		db.Close()
		return nil, err
	}

	b := &FileBackend{db: db, table: table, log: logFunc}
	if logFunc != nil {
		logFunc(fmt.Sprintf("[DATASOURCE] Loaded %d rows into in-memory table '%s'", len(rows), table))
	}
	return b, nil
}

func (b *FileBackend) Kind() string      { return "file" }
func (b *FileBackend) TableName() string { return b.table }
func (b *FileBackend) Ready() bool       { return b.db != nil }

// RunSelect executes the query, substituting the loaded table when the
// query has no FROM clause.
func (b *FileBackend) RunSelect(ctx context.Context, query string) (*Table, error) {
	query = rewriteNoFrom(query, b.table)

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %v", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close releases the in-memory database.
func (b *FileBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// loadRows infers a schema from the raw sheet rows, creates the table and
// bulk-inserts the data inside one transaction.
func loadRows(db *sql.DB, table string, rows [][]string) error {
	numCols := 0
	for _, row := range rows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}
	if numCols == 0 {
		return fmt.Errorf("no valid columns found")
	}

	hasHeader := isHeaderRow(rows[0])

	headers := make([]string, numCols)
	for i := 0; i < numCols; i++ {
		if hasHeader && i < len(rows[0]) && strings.TrimSpace(rows[0][i]) != "" {
			headers[i] = sanitizeName(rows[0][i])
		} else {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
	}

	dataStart := 0
	if hasHeader {
		dataStart = 1
	}

	// Every non-empty value is inspected: the analytical engine is strictly
	// typed, so one late text value in a numeric column must widen the type
	// instead of failing the bulk insert.
	colTypes := make([]string, numCols)
	for i := 0; i < numCols; i++ {
		currentType := "INTEGER"
		for r := dataStart; r < len(rows); r++ {
			if i >= len(rows[r]) || rows[r][i] == "" {
				continue
			}
			switch inferColumnType(rows[r][i]) {
			case "TEXT":
				currentType = "TEXT"
			case "REAL":
				if currentType == "INTEGER" {
					currentType = "REAL"
				}
			}
			if currentType == "TEXT" {
				break
			}
		}
		colTypes[i] = currentType
	}

	defs := make([]string, numCols)
	for i := range headers {
		defs[i] = fmt.Sprintf("%q %s", headers[i], colTypes[i])
	}
	createSQL := fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", "))
	if _, err := db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", numCols), ",")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, placeholders))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, row := range rows[dataStart:] {
		args := make([]any, numCols)
		for i := 0; i < numCols; i++ {
			if i < len(row) && row[i] != "" {
				args[i] = row[i]
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row: %v", err)
		}
	}
	return tx.Commit()
}

// inferColumnType classifies a cell value as INTEGER, REAL or TEXT.
func inferColumnType(val string) string {
	if val == "" {
		return "TEXT"
	}
	if _, err := strconv.ParseInt(val, 10, 64); err == nil {
		return "INTEGER"
	}
	if _, err := strconv.ParseFloat(val, 64); err == nil {
		return "REAL"
	}
	return "TEXT"
}

// isHeaderRow checks if the row is likely a header row: any numeric cell
// means data.
func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	for _, cell := range row {
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			return false
		}
	}
	return true
}

// sanitizeName makes a string safe to use as a SQL identifier while
// preserving non-ASCII letters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	var result strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_':
			result.WriteRune(r)
		case r > 127:
			result.WriteRune(r)
		default:
			result.WriteRune('_')
		}
	}

	out := result.String()
	if out == "" {
		return "data"
	}
	return out
}
