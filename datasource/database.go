package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"
)

// DatabaseBackend runs read-only queries against a database identified by a
// connection URL. A plain path (or sqlite:// URL) opens a local SQLite file;
// mysql:// and snowflake:// select the matching driver. A connection is
// opened per call and closed when the query finishes.
type DatabaseBackend struct {
	rawURL string
	driver string
	dsn    string
}

// NewDatabaseBackend parses the connection URL and fixes driver and DSN.
func NewDatabaseBackend(rawURL string) (*DatabaseBackend, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("empty database url")
	}

	b := &DatabaseBackend{rawURL: rawURL}
	switch {
	case strings.HasPrefix(rawURL, "mysql://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql url: %v", err)
		}
		pass, _ := u.User.Password()
		host := u.Host
		if u.Port() == "" {
			host += ":3306"
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		b.driver = "mysql"
		b.dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s?allowNativePasswords=true",
			u.User.Username(), pass, host, dbName)
	case strings.HasPrefix(rawURL, "snowflake://"):
		b.driver = "snowflake"
		b.dsn = strings.TrimPrefix(rawURL, "snowflake://")
	case strings.HasPrefix(rawURL, "sqlite://"):
		b.driver = "sqlite"
		b.dsn = strings.TrimPrefix(rawURL, "sqlite://")
	default:
		// bare path: local SQLite file
		b.driver = "sqlite"
		b.dsn = rawURL
	}
	return b, nil
}

func (b *DatabaseBackend) Kind() string      { return "db" }
func (b *DatabaseBackend) TableName() string { return "" }

// URL returns the connection URL the backend was built from.
func (b *DatabaseBackend) URL() string { return b.rawURL }

// Ready reports whether the driver/DSN pair was resolved.
func (b *DatabaseBackend) Ready() bool { return b.driver != "" && b.dsn != "" }

// RunSelect executes the query. The query must already have passed the
// safety filter; no rewriting happens here.
func (b *DatabaseBackend) RunSelect(ctx context.Context, query string) (*Table, error) {
	db, err := sql.Open(b.driver, b.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %v", err)
	}
	defer rows.Close()

	return scanRows(rows)
}
