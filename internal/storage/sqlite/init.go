package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database and creates the cache and lock tables if
// they don't exist. Expiries are stored as unix nanoseconds so they can be
// compared inside a single statement.
func InitDB(dbFile string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache_entries (
		cache_key TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS user_locks (
		user_id INTEGER PRIMARY KEY,
		held_until INTEGER NOT NULL
	)`)
	if err != nil {
		return nil, err
	}

	return db, nil
}
