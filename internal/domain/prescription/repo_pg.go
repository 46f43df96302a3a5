package prescription

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

const rxCols = `id, patient_id, protocol_id, template_id, protocol_name, diagnosis, cycle,
	cycle_length_days, patient, blocks, status, status_reason, substituted_by_id, substitutes_id,
	notes, prescribed_by, issued_at, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var patient, blocks []byte
	err := row.Scan(&p.ID, &p.PatientID, &p.ProtocolID, &p.TemplateID, &p.ProtocolName, &p.Diagnosis, &p.Cycle,
		&p.CycleLengthDays, &patient, &blocks, &p.Status, &p.StatusReason, &p.SubstitutedByID, &p.SubstitutesID,
		&p.Notes, &p.PrescribedBy, &p.IssuedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(patient, &p.Patient); err != nil {
		return nil, fmt.Errorf("decode patient snapshot of prescription %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(blocks, &p.Blocks); err != nil {
		return nil, fmt.Errorf("decode blocks of prescription %s: %w", p.ID, err)
	}
	return &p, nil
}

func encode(p *Prescription) (patient, blocks []byte, err error) {
	if patient, err = json.Marshal(p.Patient); err != nil {
		return nil, nil, fmt.Errorf("encode patient snapshot: %w", err)
	}
	if blocks, err = json.Marshal(p.Blocks); err != nil {
		return nil, nil, fmt.Errorf("encode blocks: %w", err)
	}
	return patient, blocks, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.IssuedAt.IsZero() {
		p.IssuedAt = now
	}
	patient, blocks, err := encode(p)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO prescriptions (id, patient_id, protocol_id, template_id, protocol_name, diagnosis, cycle,
			cycle_length_days, patient, blocks, status, status_reason, substituted_by_id, substitutes_id,
			notes, prescribed_by, issued_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		p.ID, p.PatientID, p.ProtocolID, p.TemplateID, p.ProtocolName, p.Diagnosis, p.Cycle,
		p.CycleLengthDays, patient, blocks, p.Status, p.StatusReason, p.SubstitutedByID, p.SubstitutesID,
		p.Notes, p.PrescribedBy, p.IssuedAt, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Prescription) error {
	p.UpdatedAt = time.Now().UTC()
	patient, blocks, err := encode(p)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET protocol_id=$2, template_id=$3, protocol_name=$4, diagnosis=$5, cycle=$6,
			cycle_length_days=$7, patient=$8, blocks=$9, status=$10, status_reason=$11,
			substituted_by_id=$12, substitutes_id=$13, notes=$14, updated_at=$15
		WHERE id = $1`,
		p.ID, p.ProtocolID, p.TemplateID, p.ProtocolName, p.Diagnosis, p.Cycle,
		p.CycleLengthDays, patient, blocks, p.Status, p.StatusReason,
		p.SubstitutedByID, p.SubstitutesID, p.Notes, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM prescriptions
		WHERE patient_id = $1 ORDER BY issued_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Prescription, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions
		WHERE patient_id = $1 AND status <> 'cancelled'
		ORDER BY issued_at DESC, created_at DESC LIMIT 1`, patientID))
}
