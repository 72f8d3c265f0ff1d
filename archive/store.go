// Package archive drains the dead-letter stream into a local SQLite file so
// exhausted messages survive stream retention and can be inspected or
// replayed by an operator. The archive is forensic storage: nothing in the
// hot path reads it.
package archive

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SubhajL/munbon2-backend-sub001/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS dead_letters (
	envelope_id TEXT PRIMARY KEY,
	family      TEXT NOT NULL,
	reason      TEXT NOT NULL,
	deliveries  INTEGER NOT NULL,
	received_at INTEGER,
	archived_at INTEGER NOT NULL,
	body        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_family_archived
	ON dead_letters (family, archived_at);
`

// DeadLetter is one archived message.
type DeadLetter struct {
	EnvelopeID string
	Family     string
	Reason     string
	Deliveries int
	ReceivedAt int64 // unix milliseconds, 0 when the envelope was corrupt
	ArchivedAt int64 // unix milliseconds
	Body       []byte
}

// Store is the SQLite-backed dead-letter archive.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the archive database at path. The
// special path ":memory:" yields an ephemeral archive for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "OpenStore", "open sqlite database")
	}
	// The archiver is the only writer; a single connection sidesteps
	// SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "Store", "OpenStore", "apply schema")
	}
	return &Store{db: db}, nil
}

// Save inserts a dead letter, keyed by envelope id. Redeliveries collapse
// onto the first archived copy; the boolean reports whether a row was
// actually written.
func (s *Store) Save(ctx context.Context, dl DeadLetter) (bool, error) {
	if dl.ArchivedAt == 0 {
		dl.ArchivedAt = time.Now().UnixMilli()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dead_letters
			(envelope_id, family, reason, deliveries, received_at, archived_at, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dl.EnvelopeID, dl.Family, dl.Reason, dl.Deliveries, dl.ReceivedAt, dl.ArchivedAt, dl.Body)
	if err != nil {
		return false, errors.WrapTransient(err, "Store", "Save", "insert dead letter")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapTransient(err, "Store", "Save", "read rows affected")
	}
	return n > 0, nil
}

// Get loads one archived message by envelope id.
func (s *Store) Get(ctx context.Context, envelopeID string) (*DeadLetter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT envelope_id, family, reason, deliveries, received_at, archived_at, body
		 FROM dead_letters WHERE envelope_id = ?`, envelopeID)
	var dl DeadLetter
	err := row.Scan(&dl.EnvelopeID, &dl.Family, &dl.Reason, &dl.Deliveries,
		&dl.ReceivedAt, &dl.ArchivedAt, &dl.Body)
	if err == sql.ErrNoRows {
		return nil, errors.WrapInvalid(errors.ErrNotFound, "Store", "Get", "load dead letter")
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "Get", "load dead letter")
	}
	return &dl, nil
}

// List returns up to limit archived messages for a family, newest first. An
// empty family matches everything.
func (s *Store) List(ctx context.Context, family string, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT envelope_id, family, reason, deliveries, received_at, archived_at, body
		 FROM dead_letters`
	args := []any{}
	if family != "" {
		query += ` WHERE family = ?`
		args = append(args, family)
	}
	query += ` ORDER BY archived_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "List", "query dead letters")
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.EnvelopeID, &dl.Family, &dl.Reason, &dl.Deliveries,
			&dl.ReceivedAt, &dl.ArchivedAt, &dl.Body); err != nil {
			return nil, errors.WrapTransient(err, "Store", "List", "scan dead letter")
		}
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "Store", "List", "iterate dead letters")
	}
	return out, nil
}

// Count returns the number of archived messages.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n); err != nil {
		return 0, errors.WrapTransient(err, "Store", "Count", "count dead letters")
	}
	return n, nil
}

// Prune deletes messages archived before the cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dead_letters WHERE archived_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, errors.WrapTransient(err, "Store", "Prune", "delete old dead letters")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapTransient(err, "Store", "Prune", "read rows affected")
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
