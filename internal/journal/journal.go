// Package journal records every deal submitted through the gateway and
// its outcome in a local sqlite database. Recording is best-effort by
// contract: a journal failure must never fail the trade.
package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DealRecord is one journal row.
type DealRecord struct {
	ID          int64     `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Volume      float64   `json:"volume"`
	Price       float64   `json:"price"`
	Position    uint64    `json:"position,omitempty"` // ticket being closed, 0 for opens
	OrderID     uint64    `json:"order_id,omitempty"`
	Retcode     uint32    `json:"retcode"`
	Comment     string    `json:"comment,omitempty"`
	Status      string    `json:"status"` // executed | rejected | error
}

// Journal owns the sqlite handle.
type Journal struct {
	db *sql.DB
}

// Open opens the journal at path, creating directories and schema as
// needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir journal dir")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// sqlite behaves best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS deals (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	submitted_at TIMESTAMP NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	volume       REAL NOT NULL,
	price        REAL NOT NULL,
	position     INTEGER NOT NULL DEFAULT 0,
	order_id     INTEGER NOT NULL DEFAULT 0,
	retcode      INTEGER NOT NULL DEFAULT 0,
	comment      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deals_submitted_at ON deals(submitted_at);
`
	_, err := j.db.Exec(schema)
	return errors.Wrap(err, "migrate journal")
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordDeal appends one row.
func (j *Journal) RecordDeal(ctx context.Context, rec DealRecord) error {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO deals (submitted_at, symbol, side, volume, price, position, order_id, retcode, comment, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubmittedAt, rec.Symbol, rec.Side, rec.Volume, rec.Price,
		rec.Position, rec.OrderID, rec.Retcode, rec.Comment, rec.Status)
	return errors.Wrap(err, "insert deal")
}

// Recent returns up to limit rows, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]DealRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, submitted_at, symbol, side, volume, price, position, order_id, retcode, comment, status
FROM deals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query deals")
	}
	defer rows.Close()

	out := make([]DealRecord, 0, limit)
	for rows.Next() {
		var rec DealRecord
		if err := rows.Scan(&rec.ID, &rec.SubmittedAt, &rec.Symbol, &rec.Side, &rec.Volume,
			&rec.Price, &rec.Position, &rec.OrderID, &rec.Retcode, &rec.Comment, &rec.Status); err != nil {
			return nil, errors.Wrap(err, "scan deal")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
