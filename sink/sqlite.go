package sink

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/wfleet/ship"
)

// SQLiteSink writes records into a fresh SQLite database with a single
// ships table keyed by record identity.
type SQLiteSink struct{}

func NewSQLiteSink() *SQLiteSink {
	return &SQLiteSink{}
}

func (s *SQLiteSink) Write(records []ship.Record, destination string) error {
	if err := Prepare(destination); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destination), "."+filepath.Base(destination)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := writeDatabase(tmpName, records); err != nil {
		return err
	}

	return commit(tmpName, destination)
}

// writeDatabase creates the ships table in path and inserts records.
func writeDatabase(path string, records []ship.Record) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	columns := make([]string, len(ship.Header))
	for i, h := range ship.Header {
		columns[i] = h + " TEXT NOT NULL DEFAULT ''"
	}
	schema := fmt.Sprintf(`
	CREATE TABLE ships (
		%s,
		PRIMARY KEY (imo_number, reg_number, proprietary_number2, source_system)
	);
	`, strings.Join(columns, ",\n\t\t"))

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create ships table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ship.Header)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT OR REPLACE INTO ships (%s) VALUES (%s)",
		strings.Join(ship.Header, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		fields := r.Fields()
		args := make([]any, len(fields))
		for i, v := range fields {
			args[i] = v
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}
