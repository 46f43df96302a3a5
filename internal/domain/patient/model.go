package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/oncoclinic/infusion/internal/domain/dosing"
)

// Patient maps to the patients table. Biometrics are the latest measured
// values; prescriptions keep their own snapshot.
type Patient struct {
	ID           uuid.UUID  `json:"id"`
	RecordNumber string     `json:"record_number"`
	Name         string     `json:"name"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Sex          *string    `json:"sex,omitempty"`
	WeightKg     *float64   `json:"weight_kg,omitempty"`
	HeightCm     *float64   `json:"height_cm,omitempty"`
	Creatinine   *float64   `json:"creatinine,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AgeAt returns the completed years at now, or 0 without a birth date.
func (p *Patient) AgeAt(now time.Time) int {
	if p.BirthDate == nil {
		return 0
	}
	b := p.BirthDate.In(now.Location())
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// Biometrics builds the dosing input at now. Missing values stay zero.
func (p *Patient) Biometrics(now time.Time) dosing.Patient {
	out := dosing.Patient{AgeYears: p.AgeAt(now)}
	if p.Sex != nil {
		out.Sex = *p.Sex
	}
	if p.WeightKg != nil {
		out.WeightKg = *p.WeightKg
	}
	if p.HeightCm != nil {
		out.HeightCm = *p.HeightCm
	}
	if p.Creatinine != nil {
		out.Creatinine = *p.Creatinine
	}
	return out
}
