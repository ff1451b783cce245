package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// Postgres implements Store using PostgreSQL, for deployments where the
// engine runs on more than one node. Same JSON-body layout as the SQLite
// backend.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to the given DSN.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

// Migrate creates the schema. Run once at startup.
func (s *Postgres) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS controllers (id TEXT PRIMARY KEY, body JSONB NOT NULL);
	CREATE TABLE IF NOT EXISTS builders    (id TEXT PRIMARY KEY, body JSONB NOT NULL);
	CREATE TABLE IF NOT EXISTS delegations (id TEXT PRIMARY KEY, body JSONB NOT NULL);
	CREATE TABLE IF NOT EXISTS requests    (id TEXT PRIMARY KEY, body JSONB NOT NULL);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *Postgres) upsert(ctx context.Context, table, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", id, err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, body) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body", table)
	_, err = s.db.ExecContext(ctx, query, id, raw)
	return err
}

func (s *Postgres) fetch(ctx context.Context, table, id string, v any) error {
	query := fmt.Sprintf("SELECT body FROM %s WHERE id = $1", table)
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

func (s *Postgres) remove(ctx context.Context, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", table)
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

func (s *Postgres) PutController(ctx context.Context, c *custody.Controller) error {
	return s.upsert(ctx, "controllers", c.ID, c)
}

func (s *Postgres) GetController(ctx context.Context, id string) (*custody.Controller, error) {
	var c custody.Controller
	if err := s.fetch(ctx, "controllers", id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Postgres) PutBuilder(ctx context.Context, id string, b *spend.RuleSetBuilder) error {
	return s.upsert(ctx, "builders", id, b)
}

func (s *Postgres) GetBuilder(ctx context.Context, id string) (*spend.RuleSetBuilder, error) {
	var b spend.RuleSetBuilder
	if err := s.fetch(ctx, "builders", id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Postgres) DeleteBuilder(ctx context.Context, id string) error {
	return s.remove(ctx, "builders", id)
}

func (s *Postgres) PutDelegation(ctx context.Context, d *custody.Delegation) error {
	return s.upsert(ctx, "delegations", d.ID, d)
}

func (s *Postgres) GetDelegation(ctx context.Context, id string) (*custody.Delegation, error) {
	var d custody.Delegation
	if err := s.fetch(ctx, "delegations", id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Postgres) PutRequest(ctx context.Context, id string, r *spend.Request) error {
	return s.upsert(ctx, "requests", id, r)
}

func (s *Postgres) GetRequest(ctx context.Context, id string) (*spend.Request, error) {
	var r spend.Request
	if err := s.fetch(ctx, "requests", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Postgres) DeleteRequest(ctx context.Context, id string) error {
	return s.remove(ctx, "requests", id)
}
