package appointment

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

const apptCols = `id, patient_id, type, to_char(date, 'YYYY-MM-DD'), start_time, end_time, status,
	status_reason, checked_in, overbooked, details, history, rescheduled_from_id, rescheduled_to_id,
	notes, created_by, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var details, history []byte
	err := row.Scan(&a.ID, &a.PatientID, &a.Type, &a.Date, &a.StartTime, &a.EndTime, &a.Status,
		&a.StatusReason, &a.CheckedIn, &a.Overbooked, &details, &history, &a.RescheduledFromID, &a.RescheduledToID,
		&a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(details, &a.Details); err != nil {
		return nil, fmt.Errorf("decode details of appointment %s: %w", a.ID, err)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.History); err != nil {
			return nil, fmt.Errorf("decode history of appointment %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func (r *repoPG) scanAll(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func encode(a *Appointment) (details, history []byte, err error) {
	if details, err = json.Marshal(a.Details); err != nil {
		return nil, nil, fmt.Errorf("encode details: %w", err)
	}
	if history, err = json.Marshal(a.History); err != nil {
		return nil, nil, fmt.Errorf("encode history: %w", err)
	}
	return details, history, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	details, history, err := encode(a)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, type, date, start_time, end_time, status,
			status_reason, checked_in, overbooked, details, history, rescheduled_from_id, rescheduled_to_id,
			notes, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		a.ID, a.PatientID, a.Type, a.Date, a.StartTime, a.EndTime, a.Status,
		a.StatusReason, a.CheckedIn, a.Overbooked, details, history, a.RescheduledFromID, a.RescheduledToID,
		a.Notes, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) GetMany(ctx context.Context, ids []uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE id = ANY($1) ORDER BY date, start_time`, ids)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	details, history, err := encode(a)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET date=$2, start_time=$3, end_time=$4, status=$5, status_reason=$6,
			checked_in=$7, overbooked=$8, details=$9, history=$10, rescheduled_from_id=$11,
			rescheduled_to_id=$12, notes=$13, updated_at=$14
		WHERE id = $1`,
		a.ID, a.Date, a.StartTime, a.EndTime, a.Status, a.StatusReason,
		a.CheckedIn, a.Overbooked, details, history, a.RescheduledFromID,
		a.RescheduledToID, a.Notes, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByDateRange(ctx context.Context, from, to string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE date BETWEEN $1::date AND $2::date ORDER BY date, start_time`, from, to)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1 ORDER BY date DESC, start_time LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanAll(rows)
	return items, total, err
}
