package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// SQLite implements Store on a single-file database. State objects are kept
// as JSON bodies keyed by id; each workflow step is one upsert, which SQLite
// applies atomically.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the database file and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLite(db)
}

func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS controllers (id TEXT PRIMARY KEY, body JSON NOT NULL);
	CREATE TABLE IF NOT EXISTS builders    (id TEXT PRIMARY KEY, body JSON NOT NULL);
	CREATE TABLE IF NOT EXISTS delegations (id TEXT PRIMARY KEY, body JSON NOT NULL);
	CREATE TABLE IF NOT EXISTS requests    (id TEXT PRIMARY KEY, body JSON NOT NULL);
	`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLite) upsert(ctx context.Context, table, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", id, err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, body) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET body = excluded.body", table)
	_, err = s.db.ExecContext(ctx, query, id, raw)
	return err
}

func (s *SQLite) fetch(ctx context.Context, table, id string, v any) error {
	query := fmt.Sprintf("SELECT body FROM %s WHERE id = ?", table)
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (s *SQLite) remove(ctx context.Context, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) PutController(ctx context.Context, c *custody.Controller) error {
	return s.upsert(ctx, "controllers", c.ID, c)
}

func (s *SQLite) GetController(ctx context.Context, id string) (*custody.Controller, error) {
	var c custody.Controller
	if err := s.fetch(ctx, "controllers", id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLite) PutBuilder(ctx context.Context, id string, b *spend.RuleSetBuilder) error {
	return s.upsert(ctx, "builders", id, b)
}

func (s *SQLite) GetBuilder(ctx context.Context, id string) (*spend.RuleSetBuilder, error) {
	var b spend.RuleSetBuilder
	if err := s.fetch(ctx, "builders", id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLite) DeleteBuilder(ctx context.Context, id string) error {
	return s.remove(ctx, "builders", id)
}

func (s *SQLite) PutDelegation(ctx context.Context, d *custody.Delegation) error {
	return s.upsert(ctx, "delegations", d.ID, d)
}

func (s *SQLite) GetDelegation(ctx context.Context, id string) (*custody.Delegation, error) {
	var d custody.Delegation
	if err := s.fetch(ctx, "delegations", id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLite) PutRequest(ctx context.Context, id string, r *spend.Request) error {
	return s.upsert(ctx, "requests", id, r)
}

func (s *SQLite) GetRequest(ctx context.Context, id string) (*spend.Request, error) {
	var r spend.Request
	if err := s.fetch(ctx, "requests", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLite) DeleteRequest(ctx context.Context, id string) error {
	return s.remove(ctx, "requests", id)
}
