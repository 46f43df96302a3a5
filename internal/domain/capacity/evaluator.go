// Package capacity computes the remaining daily slots for an appointment
// type against the clinic's configured limits. Evaluation is pure: callers
// supply the day's bookings and the configuration.
package capacity

import (
	"time"

	"github.com/oncoclinic/infusion/internal/domain/duration"
)

const (
	TypeInfusion     = "infusion"
	TypeConsultation = "consultation"
	TypeProcedure    = "procedure"
)

// Statuses that release the slot they were booked on.
const (
	StatusRescheduled = "rescheduled"
	StatusSuspended   = "suspended"
)

// BlockedLabel is shown when a protocol forbids the weekday.
const BlockedLabel = "Não Permitido"

// DateLayout is the calendar day format used across the agenda.
const DateLayout = "2006-01-02"

// Config holds the daily limits and opening schedule of the clinic.
type Config struct {
	Consultations int                     `json:"consultations"`
	Procedures    int                     `json:"procedures"`
	Infusion      map[duration.Bucket]int `json:"infusion"`
	OpensAt       string                  `json:"opens_at"`
	ClosesAt      string                  `json:"closes_at"`
	Weekdays      []time.Weekday          `json:"weekdays"`
}

// Limit returns the configured limit for a type and, for infusions, bucket.
// Anything unconfigured has a limit of 0.
func (c Config) Limit(apptType string, bucket duration.Bucket) int {
	switch apptType {
	case TypeConsultation:
		return c.Consultations
	case TypeProcedure:
		return c.Procedures
	case TypeInfusion:
		return c.Infusion[bucket]
	}
	return 0
}

// OpenOn reports whether the clinic operates on the weekday. An empty
// weekday list means every day.
func (c Config) OpenOn(wd time.Weekday) bool {
	if len(c.Weekdays) == 0 {
		return true
	}
	return containsWeekday(c.Weekdays, wd)
}

// WithinHours reports whether an appointment starting at start and lasting
// minutes fits between OpensAt and ClosesAt. Unset hours do not restrict.
func (c Config) WithinHours(start string, minutes int) bool {
	from, ok := duration.ParseClock(start)
	if !ok {
		return false
	}
	if opens, ok := duration.ParseClock(c.OpensAt); ok && from < opens {
		return false
	}
	if closes, ok := duration.ParseClock(c.ClosesAt); ok && from+minutes > closes {
		return false
	}
	return true
}

// Booking is an existing appointment as seen by the evaluator.
type Booking struct {
	Type   string
	Status string

	// Infusion only. The linked protocol time wins over the scheduled range.
	ProtocolMinutes int
	Scheduled       duration.TimeRange
}

// Consumes reports whether the booking occupies a slot.
func (b Booking) Consumes() bool {
	return b.Status != StatusRescheduled && b.Status != StatusSuspended
}

// Bucket classifies an infusion booking by its protocol time, falling back
// to the scheduled range. Unknown durations fall into the medium bucket.
func (b Booking) Bucket() duration.Bucket {
	return duration.Resolve(duration.ProtocolMinutes(b.ProtocolMinutes), b.Scheduled).OrDefault(duration.Medium)
}

// Request describes the candidate appointment.
type Request struct {
	Date time.Time
	Type string

	// Infusion only.
	Prescribed      bool
	ProtocolMinutes int
	AllowedWeekdays []time.Weekday
}

// Bucket is the candidate's infusion bucket, medium when unknown.
func (r Request) Bucket() duration.Bucket {
	return duration.Resolve(duration.ProtocolMinutes(r.ProtocolMinutes)).OrDefault(duration.Medium)
}

// Result is the availability of one day for one request.
type Result struct {
	Limit       int             `json:"limit"`
	Booked      int             `json:"booked"`
	Remaining   int             `json:"remaining"`
	IsFull      bool            `json:"is_full"`
	IsBlocked   bool            `json:"is_blocked"`
	Hidden      bool            `json:"hidden"`
	Bucket      duration.Bucket `json:"bucket,omitempty"`
	BucketLabel string          `json:"bucket_label"`
}

// Evaluate computes remaining capacity for req given the bookings of that
// day. A protocol weekday restriction blocks the day regardless of counts.
func Evaluate(cfg Config, req Request, booked []Booking) Result {
	if req.Type != TypeInfusion {
		limit := cfg.Limit(req.Type, duration.Undefined)
		used := 0
		for _, b := range booked {
			if b.Type == req.Type && b.Consumes() {
				used++
			}
		}
		return counted(limit, used, req.Type, "")
	}

	if !req.Prescribed {
		return Result{Hidden: true}
	}

	if len(req.AllowedWeekdays) > 0 && !containsWeekday(req.AllowedWeekdays, req.Date.Weekday()) {
		return Result{IsFull: true, IsBlocked: true, BucketLabel: BlockedLabel}
	}

	bucket := req.Bucket()
	used := 0
	for _, b := range booked {
		if b.Type == TypeInfusion && b.Consumes() && b.Bucket() == bucket {
			used++
		}
	}
	return counted(cfg.Limit(TypeInfusion, bucket), used, bucket.Label(), bucket)
}

func counted(limit, used int, label string, bucket duration.Bucket) Result {
	remaining := limit - used
	return Result{
		Limit:       limit,
		Booked:      used,
		Remaining:   remaining,
		IsFull:      remaining <= 0,
		Bucket:      bucket,
		BucketLabel: label,
	}
}

// IsDayBlocked reports whether bookings are refused for the whole day: past
// dates and weekdays the clinic is closed.
func IsDayBlocked(cfg Config, day, today time.Time) bool {
	if truncateDay(day).Before(truncateDay(today)) {
		return true
	}
	return !cfg.OpenOn(day.Weekday())
}

// Day is one cell of a month calendar.
type Day struct {
	Date       string `json:"date"`
	DayBlocked bool   `json:"day_blocked"`
	Result
}

// Month evaluates every day of the month. bookings is keyed by DateLayout.
func Month(cfg Config, year int, month time.Month, today time.Time, req Request, bookings map[string][]Booking) []Day {
	first := time.Date(year, month, 1, 0, 0, 0, 0, today.Location())
	var days []Day
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		key := d.Format(DateLayout)
		r := req
		r.Date = d
		days = append(days, Day{
			Date:       key,
			DayBlocked: IsDayBlocked(cfg, d, today),
			Result:     Evaluate(cfg, r, bookings[key]),
		})
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func containsWeekday(list []time.Weekday, wd time.Weekday) bool {
	for _, w := range list {
		if w == wd {
			return true
		}
	}
	return false
}
