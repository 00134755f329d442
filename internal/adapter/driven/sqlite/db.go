package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// pragmas shared by file-backed and in-memory databases.
const pragmas = "_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-16000)"

// DB holds the draft store's connections. Writes go through a single
// connection so concurrent saves queue instead of failing with "database is
// locked"; reads use a small pool.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// NewDB opens the database file at dbPath in WAL mode.
func NewDB(dbPath string) (*DB, error) {
	return Open(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&%s", dbPath, pragmas))
}

// Open opens writer and reader connections on dsn and pings both.
func Open(dsn string) (*DB, error) {
	writer, err := openPool(dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	reader, err := openPool(dsn, 4)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

func openPool(dsn string, maxOpen int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxOpen)

	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Close closes both pools and returns the first error.
func (db *DB) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
