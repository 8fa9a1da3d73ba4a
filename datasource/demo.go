package datasource

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type demoRow struct {
	date     string
	customer string
	product  string
	qty      int
	price    float64
}

var demoRows = []demoRow{
	{"2024-01-15", "Acme Corp", "Widget A", 10, 12.5},
	{"2024-02-01", "Beta LLC", "Widget B", 5, 20.0},
	{"2024-02-12", "Acme Corp", "Widget A", 7, 12.5},
	{"2024-03-05", "Delta Inc", "Widget C", 3, 50.0},
	{"2024-03-18", "Acme Corp", "Widget C", 1, 50.0},
	{"2024-04-02", "Beta LLC", "Widget A", 15, 12.5},
	{"2024-04-11", "Echo Co", "Widget B", 8, 20.0},
}

// InitDemoDB creates (or recreates) the demo sales table in a local SQLite
// file so the agent has something to query out of the box.
func InitDemoDB(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	stmts := []string{
		"DROP TABLE IF EXISTS sales",
		`CREATE TABLE sales (
			id INTEGER PRIMARY KEY,
			order_date TEXT,
			customer TEXT,
			product TEXT,
			qty INTEGER,
			unit_price REAL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize demo schema: %v", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	stmt, err := tx.Prepare(
		"INSERT INTO sales (order_date, customer, product, qty, unit_price) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, r := range demoRows {
		if _, err := stmt.Exec(r.date, r.customer, r.product, r.qty, r.price); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert demo row: %v", err)
		}
	}
	return tx.Commit()
}
