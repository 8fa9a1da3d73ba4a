package datasource

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	_ "github.com/marcboeker/go-duckdb"
)

// DuckDBBackend registers one or more files as named views inside an
// in-process DuckDB instance. CSV/TSV and Parquet are read natively; other
// formats are loaded through the sheet importer and materialized as tables.
type DuckDBBackend struct {
	db    *sql.DB
	table string
	views []string
}

// NewDuckDBBackend opens an in-memory DuckDB and registers each alias=path
// pair. When exactly one file is registered under a different alias, the
// default table name is added as a view over it.
func NewDuckDBBackend(files map[string]string, table string, logFunc func(string)) (*DuckDBBackend, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to register")
	}
	table = sanitizeName(table)

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %v", err)
	}
	db.SetMaxOpenConns(1)

	b := &DuckDBBackend{db: db, table: table}

	// deterministic registration order
	aliases := make([]string, 0, len(files))
	for alias := range files {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		path := files[alias]
		name := sanitizeName(alias)
		if err := b.register(name, path); err != nil {
			db.Close()
			return nil, err
		}
		b.views = append(b.views, name)
		if logFunc != nil {
			logFunc(fmt.Sprintf("[DATASOURCE] Registered duckdb view '%s' for %s", name, path))
		}
	}

	if len(aliases) == 1 && sanitizeName(aliases[0]) != table {
		only := sanitizeName(aliases[0])
		if _, err := db.Exec(fmt.Sprintf("CREATE VIEW %q AS SELECT * FROM %q", table, only)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to alias default table: %v", err)
		}
	}

	return b, nil
}

func (b *DuckDBBackend) register(alias, path string) error {
	escaped := strings.ReplaceAll(path, "'", "''")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		_, err := b.db.Exec(fmt.Sprintf(
			"CREATE VIEW %q AS SELECT * FROM read_csv_auto('%s')", alias, escaped))
		if err != nil {
			return fmt.Errorf("failed to register csv view %q: %v", alias, err)
		}
	case ".parquet", ".pq":
		_, err := b.db.Exec(fmt.Sprintf(
			"CREATE VIEW %q AS SELECT * FROM read_parquet('%s')", alias, escaped))
		if err != nil {
			return fmt.Errorf("failed to register parquet view %q: %v", alias, err)
		}
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return fmt.Errorf("failed to open excel file: %v", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return fmt.Errorf("excel file has no sheets")
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return fmt.Errorf("failed to read sheet: %v", err)
		}
		if err := loadRows(b.db, alias, rows); err != nil {
			return err
		}
	default:
		// last resort: parse as CSV and materialize
		fh, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open file: %v", err)
		}
		defer fh.Close()
		rows, err := csv.NewReader(fh).ReadAll()
		if err != nil {
			return fmt.Errorf("unsupported file format %q: %v", filepath.Ext(path), err)
		}
		if err := loadRows(b.db, alias, rows); err != nil {
			return err
		}
	}
	return nil
}

func (b *DuckDBBackend) Kind() string      { return "duckdb" }
func (b *DuckDBBackend) TableName() string { return b.table }
func (b *DuckDBBackend) Ready() bool       { return b.db != nil }

// Views returns the registered view names in registration order.
func (b *DuckDBBackend) Views() []string { return b.views }

// RunSelect executes the query, substituting the default table when the
// query has no FROM clause.
func (b *DuckDBBackend) RunSelect(ctx context.Context, query string) (*Table, error) {
	query = rewriteNoFrom(query, b.table)

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %v", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close releases the in-process database.
func (b *DuckDBBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
