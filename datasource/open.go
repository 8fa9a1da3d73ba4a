package datasource

import (
	"fmt"
)

// Options selects and parameterizes a backend. Zero values mean "not given";
// when Source is empty the backend is inferred from whichever input is set.
type Options struct {
	Source    string            // db | csv | excel | duckdb (optional)
	DBURL     string            // relational URL or sqlite path
	CSV       string            // path to a CSV file
	Excel     string            // path to an xlsx file
	Sheet     string            // sheet name, first sheet when empty
	DuckFiles map[string]string // alias -> file path
	Table     string            // default table name, "data" when empty
}

// Open builds the backend the options describe. CSV input goes to the
// analytical engine when available and falls back to the sqlite loader.
func Open(opts Options, logFunc func(string)) (Backend, error) {
	table := opts.Table
	if table == "" {
		table = "data"
	}

	source := opts.Source
	if source == "" {
		switch {
		case len(opts.DuckFiles) > 0:
			source = "duckdb"
		case opts.CSV != "":
			source = "csv"
		case opts.Excel != "":
			source = "excel"
		case opts.DBURL != "":
			source = "db"
		default:
			return nil, fmt.Errorf("no data source given")
		}
	}

	switch source {
	case "db":
		if opts.DBURL == "" {
			return nil, fmt.Errorf("source db requires a database URL")
		}
		return NewDatabaseBackend(opts.DBURL)
	case "csv":
		if opts.CSV == "" {
			return nil, fmt.Errorf("source csv requires a file path")
		}
		b, err := NewDuckDBBackend(map[string]string{table: opts.CSV}, table, logFunc)
		if err == nil {
			return b, nil
		}
		if logFunc != nil {
			logFunc(fmt.Sprintf("[DATASOURCE] DuckDB unavailable for %s, using sqlite loader: %v", opts.CSV, err))
		}
		return NewCSVBackend(opts.CSV, table, logFunc)
	case "excel":
		if opts.Excel == "" {
			return nil, fmt.Errorf("source excel requires a file path")
		}
		return NewExcelBackend(opts.Excel, opts.Sheet, table, logFunc)
	case "duckdb":
		if len(opts.DuckFiles) == 0 {
			return nil, fmt.Errorf("source duckdb requires at least one alias=path file")
		}
		return NewDuckDBBackend(opts.DuckFiles, table, logFunc)
	}
	return nil, fmt.Errorf("unknown data source %q", source)
}
