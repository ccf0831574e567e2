// Package sqlite persists ban records so a restart does not amnesty
// everyone who earned a ban.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parlorchat/parlor-server/internal/ban"
)

const schema = `
CREATE TABLE IF NOT EXISTS bans (
	ip     TEXT PRIMARY KEY,
	expiry INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);
`

// Persister implements ban.Persister on a sqlite file.
type Persister struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
// Use ":memory:" for tests.
func New(dbPath string) (*Persister, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Persister{db: db}, nil
}

// Close closes the database connection.
func (p *Persister) Close() error {
	return p.db.Close()
}

// Save inserts or replaces the record for rec.IP.
func (p *Persister) Save(rec ban.Record) error {
	query := `
		INSERT INTO bans (ip, expiry, reason) VALUES (?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET expiry = excluded.expiry, reason = excluded.reason
	`
	if _, err := p.db.Exec(query, rec.IP, rec.Expiry.Unix(), rec.Reason); err != nil {
		return fmt.Errorf("save ban: %w", err)
	}
	return nil
}

// Delete removes the record for ip. Deleting a missing row is not an error.
func (p *Persister) Delete(ip string) error {
	if _, err := p.db.Exec(`DELETE FROM bans WHERE ip = ?`, ip); err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return nil
}

// LoadAll returns every stored record, expired or not; the store filters.
func (p *Persister) LoadAll() ([]ban.Record, error) {
	rows, err := p.db.Query(`SELECT ip, expiry, reason FROM bans`)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var recs []ban.Record
	for rows.Next() {
		var rec ban.Record
		var expiry int64
		if err := rows.Scan(&rec.IP, &expiry, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		rec.Expiry = time.Unix(expiry, 0)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
