// Package journal persists the command history of a canvas session to
// SQLite so a crashed session can be reconstructed and audited.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/domcanvas/dbopen"
	"github.com/hazyhaar/domcanvas/idgen"
)

// keepSnapshots bounds how many tree snapshots are retained.
const keepSnapshots = 20

// Entry is one journaled command.
type Entry struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // "commit", "undo", "redo"
	Name      string `json:"name"`
	LayerID   string `json:"layer_id"`
	Payload   string `json:"payload"`
	CreatedAt int64  `json:"created_at"`
}

// TreeSnapshot is one persisted copy of the serialized layer tree.
type TreeSnapshot struct {
	ID         string `json:"id"`
	Tree       string `json:"tree"`
	LayerCount int    `json:"layer_count"`
	CreatedAt  int64  `json:"created_at"`
}

// Journal is the database handle.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// Open opens (or creates) the journal database at path and applies the
// schema.
func Open(path string, logger *slog.Logger, opts ...dbopen.Option) (*Journal, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return New(db, logger), nil
}

// New wraps an already opened database. The schema must be applied.
func New(db *sql.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		db:     db,
		newID:  idgen.Prefixed("cmd_", idgen.UUIDv7()),
		logger: logger,
	}
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one command.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	_, err := dbopen.Exec(ctx, j.db, `
		INSERT INTO commands (id, kind, name, layer_id, payload, created_at)
		VALUES (?,?,?,?,?,?)`,
		e.ID, e.Kind, e.Name, e.LayerID, e.Payload, e.CreatedAt,
	)
	return err
}

// Recent returns the newest commands, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	query := `SELECT id, kind, name, layer_id, payload, created_at
	          FROM commands ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Kind, &e.Name, &e.LayerID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Snapshot stores a serialized tree and prunes snapshots beyond the
// retention bound inside the same transaction.
func (j *Journal) Snapshot(ctx context.Context, tree []byte, layerCount int) error {
	id := j.newID()
	now := time.Now().UnixMilli()

	return dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (id, tree, layer_count, created_at)
			VALUES (?,?,?,?)`,
			id, string(tree), layerCount, now,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM snapshots WHERE id NOT IN (
				SELECT id FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?
			)`, keepSnapshots)
		return err
	})
}

// LatestSnapshot returns the most recent tree snapshot, or nil when none
// has been taken yet.
func (j *Journal) LatestSnapshot(ctx context.Context) (*TreeSnapshot, error) {
	s := &TreeSnapshot{}
	err := j.db.QueryRowContext(ctx, `
		SELECT id, tree, layer_count, created_at
		FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(
		&s.ID, &s.Tree, &s.LayerCount, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CountCommands returns the total number of journaled commands.
func (j *Journal) CountCommands(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commands`).Scan(&n)
	return n, err
}
