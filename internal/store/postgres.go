package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mark3748/sla-notifier/internal/sla"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the subset of pgxpool.Pool the stores use.
type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Migrate applies the embedded goose migrations to the database at dsn.
func Migrate(ctx context.Context, dsn string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql open for goose: %w", err)
	}
	defer sqldb.Close()
	if err := goose.UpContext(ctx, sqldb, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// pgTable stores one JSON document per ticket in a jsonb column. Rows whose
// write failed stay in pending and shadow the database until a later put or
// delete succeeds.
type pgTable[T any] struct {
	db    DB
	table string
	key   func(T) string

	mu      sync.Mutex
	pending map[string]T
}

func newPGTable[T any](db DB, table string, key func(T) string) *pgTable[T] {
	return &pgTable[T]{db: db, table: table, key: key, pending: map[string]T{}}
}

func (p *pgTable[T]) get(ctx context.Context, id string) (T, bool, error) {
	p.mu.Lock()
	v, ok := p.pending[id]
	p.mu.Unlock()
	if ok {
		return v, true, nil
	}
	var raw []byte
	err := p.db.QueryRow(ctx, "select record from "+p.table+" where ticket_id=$1", id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s %s: %w", p.table, id, err)
	}
	return v, true, nil
}

func (p *pgTable[T]) put(ctx context.Context, id string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `insert into `+p.table+` (ticket_id, record, updated_at) values ($1, $2, now())
on conflict (ticket_id) do update set record=excluded.record, updated_at=now()`, id, raw)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.pending[id] = v
		return err
	}
	delete(p.pending, id)
	return nil
}

func (p *pgTable[T]) delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, "delete from "+p.table+" where ticket_id=$1", id); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
	return nil
}

func (p *pgTable[T]) list(ctx context.Context) ([]T, error) {
	rows, err := p.db.Query(ctx, "select record from "+p.table+" order by ticket_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", p.table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p.overlay(out), nil
}

// overlay replaces or adds pending rows, keeping ticket id order.
func (p *pgTable[T]) overlay(rows []T) []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return rows
	}
	merged := make(map[string]T, len(rows)+len(p.pending))
	for _, v := range rows {
		merged[p.key(v)] = v
	}
	for id, v := range p.pending {
		merged[id] = v
	}
	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, merged[id])
	}
	return out
}

// PGRecords is the Postgres-backed sla.RecordStore.
type PGRecords struct{ t *pgTable[sla.Record] }

func NewPGRecords(db DB) *PGRecords {
	return &PGRecords{t: newPGTable(db, "sla_tracking", func(r sla.Record) string { return r.TicketID })}
}

func (s *PGRecords) Get(ctx context.Context, id string) (sla.Record, bool, error) {
	return s.t.get(ctx, id)
}

func (s *PGRecords) Put(ctx context.Context, r sla.Record) error { return s.t.put(ctx, r.TicketID, r) }

func (s *PGRecords) Delete(ctx context.Context, id string) error { return s.t.delete(ctx, id) }

func (s *PGRecords) List(ctx context.Context) ([]sla.Record, error) { return s.t.list(ctx) }

// PGAssignments is the Postgres-backed sla.AssignmentStore.
type PGAssignments struct{ t *pgTable[sla.AssignmentRecord] }

func NewPGAssignments(db DB) *PGAssignments {
	return &PGAssignments{t: newPGTable(db, "assignment_tracking", func(r sla.AssignmentRecord) string { return r.TicketID })}
}

func (s *PGAssignments) Get(ctx context.Context, id string) (sla.AssignmentRecord, bool, error) {
	return s.t.get(ctx, id)
}

func (s *PGAssignments) Put(ctx context.Context, r sla.AssignmentRecord) error {
	return s.t.put(ctx, r.TicketID, r)
}

func (s *PGAssignments) List(ctx context.Context) ([]sla.AssignmentRecord, error) {
	return s.t.list(ctx)
}
