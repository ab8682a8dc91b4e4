package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDatabase opens a SQLite database at the given path and applies pragmas.
// _txlock=immediate makes BEGIN take a RESERVED lock up front, which
// serializes write transactions; the audit hash chain relies on that to keep
// read-then-append updates consistent.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, err
	}

	if err := ApplyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ApplyPragmas sets the connection pragmas used across all databases.
func ApplyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// InitDirectoryDB opens or creates the identity directory database and
// initializes the schema.
func InitDirectoryDB(path string) (*sql.DB, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(GetDirectorySchema()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
