package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, e Entry) error {
	changes, err := rawChanges(e.Changes)
	if err != nil {
		return fmt.Errorf("audit: marshal changes: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, changes, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ActorID, string(e.Action), string(e.EntityType), e.EntityID,
		changes, e.Success, nilIfEmpty(e.ErrorMessage), e.At,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	ActorID    *uuid.UUID
	Action     Action
	EntityType EntityType
	EntityID   string
	Success    *bool
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

func (r *Repository) Query(ctx context.Context, f Filter) ([]Entry, bool, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 200 {
		f.PageSize = 50
	}

	query := `SELECT id, actor_id, action, entity_type, entity_id, changes, success, COALESCE(error_message, ''), created_at FROM audit_log WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, v any) {
		query += fmt.Sprintf(" AND %s $%d", clause, idx)
		args = append(args, v)
		idx++
	}
	if f.ActorID != nil {
		add("actor_id =", *f.ActorID)
	}
	if f.Action != "" {
		add("action =", string(f.Action))
	}
	if f.EntityType != "" {
		add("entity_type =", string(f.EntityType))
	}
	if f.EntityID != "" {
		add("entity_id =", f.EntityID)
	}
	if f.Success != nil {
		add("success =", *f.Success)
	}
	if !f.From.IsZero() {
		add("created_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <=", f.To)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, f.PageSize+1, (f.Page-1)*f.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, false, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("audit: iterate entries: %w", err)
	}

	hasNext := len(entries) > f.PageSize
	if hasNext {
		entries = entries[:f.PageSize]
	}
	return entries, hasNext, nil
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var (
		e       Entry
		action  string
		entity  string
		changes []byte
	)
	if err := rows.Scan(&e.ID, &e.ActorID, &action, &entity, &e.EntityID, &changes, &e.Success, &e.ErrorMessage, &e.At); err != nil {
		return Entry{}, fmt.Errorf("audit: scan entry: %w", err)
	}
	e.Action = Action(action)
	e.EntityType = EntityType(entity)
	if len(changes) > 0 {
		e.Changes = json.RawMessage(changes)
	}
	return e, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
