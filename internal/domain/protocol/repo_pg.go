package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncoclinic/infusion/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.ConnOr(ctx, r.pool)
}

const protoCols = `id, name, indication, total_minutes, cycle_length_days, total_cycles,
	allowed_weekdays, active, templates, notes, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Protocol, error) {
	var p Protocol
	var templates []byte
	err := row.Scan(&p.ID, &p.Name, &p.Indication, &p.TotalMinutes, &p.CycleLengthDays, &p.TotalCycles,
		&p.AllowedWeekdays, &p.Active, &templates, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &p.Templates); err != nil {
			return nil, fmt.Errorf("decode templates of protocol %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Protocol) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	templates, err := json.Marshal(p.Templates)
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO protocols (id, name, indication, total_minutes, cycle_length_days, total_cycles,
			allowed_weekdays, active, templates, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.Name, p.Indication, p.TotalMinutes, p.CycleLengthDays, p.TotalCycles,
		p.AllowedWeekdays, p.Active, templates, p.Notes, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Protocol, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+protoCols+` FROM protocols WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Protocol) error {
	p.UpdatedAt = time.Now().UTC()
	templates, err := json.Marshal(p.Templates)
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE protocols SET name=$2, indication=$3, total_minutes=$4, cycle_length_days=$5,
			total_cycles=$6, allowed_weekdays=$7, active=$8, templates=$9, notes=$10, updated_at=$11
		WHERE id = $1`,
		p.ID, p.Name, p.Indication, p.TotalMinutes, p.CycleLengthDays,
		p.TotalCycles, p.AllowedWeekdays, p.Active, templates, p.Notes, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM protocols WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Protocol, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM protocols WHERE ($1 = false OR active)`, activeOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+protoCols+` FROM protocols
		WHERE ($1 = false OR active) ORDER BY name LIMIT $2 OFFSET $3`, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Protocol
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
