package nonce

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veilcash/pullauth/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteLedger implements Ledger on SQLite. The primary-key constraint
// makes the insert the atomic check-and-set.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger wraps db and creates the nonces table if missing.
func NewSQLiteLedger(db *sql.DB) (*SQLiteLedger, error) {
	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

// OpenSQLiteLedger opens (or creates) the database at path.
func OpenSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("nonce ledger: open sqlite: %w", err)
	}
	return NewSQLiteLedger(db)
}

func (l *SQLiteLedger) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS nonces (
		key TEXT PRIMARY KEY,
		note_id TEXT NOT NULL,
		nonce INTEGER NOT NULL,
		consumed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := l.db.ExecContext(context.Background(), query)
	return err
}

// Consume implements Ledger.
func (l *SQLiteLedger) Consume(ctx context.Context, noteID contracts.NoteID, nonce uint64) error {
	res, err := l.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO nonces (key, note_id, nonce) VALUES (?, ?, ?)",
		Key(noteID, nonce), noteID.Hex(), int64(nonce))
	if err != nil {
		return fmt.Errorf("nonce ledger: insert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("nonce ledger: rows affected: %w", err)
	}
	if affected == 0 {
		return alreadyUsed(noteID, nonce)
	}
	return nil
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
