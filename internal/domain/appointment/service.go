package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oncoclinic/infusion/internal/domain/capacity"
	"github.com/oncoclinic/infusion/internal/domain/duration"
	"github.com/oncoclinic/infusion/internal/domain/prescription"
	"github.com/oncoclinic/infusion/internal/platform/auth"
	"github.com/oncoclinic/infusion/internal/platform/db"
	"github.com/oncoclinic/infusion/internal/platform/metrics"
	"github.com/oncoclinic/infusion/internal/platform/validation"
	"github.com/oncoclinic/infusion/internal/platform/websocket"
)

// InfusionSource resolves chair time and weekday restrictions of a
// prescription.
type InfusionSource interface {
	InfusionProfile(ctx context.Context, prescriptionID uuid.UUID) (*prescription.InfusionProfile, error)
}

type Service struct {
	appointments Repository
	infusions    InfusionSource
	capacity     capacity.Config
	loc          *time.Location
	schema       *validation.Validator
	tx           db.TxRunner
	events       websocket.EventPublisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

type Options struct {
	Capacity capacity.Config
	Location *time.Location
	Schema   *validation.Validator
	Tx       db.TxRunner
	Events   websocket.EventPublisher
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

func NewService(appointments Repository, infusions InfusionSource, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		appointments: appointments,
		infusions:    infusions,
		capacity:     opts.Capacity,
		loc:          loc,
		schema:       opts.Schema,
		tx:           opts.Tx,
		events:       opts.Events,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// CapacityError carries the evaluation that refused a booking.
type CapacityError struct {
	Err    error
	Result capacity.Result
}

func (e *CapacityError) Error() string { return e.Err.Error() }
func (e *CapacityError) Unwrap() error { return e.Err }

func (s *Service) today() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) parseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(capacity.DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, validation.Errors{{Path: "date", Message: "must match the format " + capacity.DateLayout}}
	}
	return d, nil
}

func (s *Service) entry(ctx context.Context, kind string) HistoryEntry {
	return HistoryEntry{
		At:       s.now().UTC(),
		UserID:   auth.UserIDFromContext(ctx),
		UserName: auth.UserNameFromContext(ctx),
		Kind:     kind,
	}
}

func (s *Service) publish(ctx context.Context, typ string, a *Appointment) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, websocket.NewEvent(typ, a.Date, a.ID.String(), a)); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to publish agenda event")
	}
}

func checkType(apptType string) error {
	switch apptType {
	case capacity.TypeInfusion, capacity.TypeConsultation, capacity.TypeProcedure:
		return nil
	}
	return validation.Errors{{Path: "type", Message: "must be one of: infusion, consultation, procedure"}}
}

// request builds the capacity request for an appointment type, resolving
// the prescription of an infusion.
func (s *Service) request(ctx context.Context, day time.Time, apptType string, prescriptionID *uuid.UUID) (capacity.Request, error) {
	req := capacity.Request{Date: day, Type: apptType}
	if apptType != capacity.TypeInfusion || prescriptionID == nil {
		return req, nil
	}
	prof, err := s.infusions.InfusionProfile(ctx, *prescriptionID)
	if err != nil {
		return req, err
	}
	req.Prescribed = true
	req.ProtocolMinutes = prof.Minutes
	req.AllowedWeekdays = prof.AllowedWeekdays
	return req, nil
}

// bookings converts appointments for capacity evaluation. Infusions are
// bucketed by the current protocol time of their prescription, so a revised
// protocol regroups existing bookings; a prescription that no longer
// resolves falls back to what was stored at booking.
func (s *Service) bookings(ctx context.Context, appts []*Appointment) ([]capacity.Booking, error) {
	minutes := make(map[uuid.UUID]int)
	out := make([]capacity.Booking, 0, len(appts))
	for _, a := range appts {
		if a.Type != capacity.TypeInfusion || a.Details.Infusion == nil || a.Details.Infusion.PrescriptionID == uuid.Nil {
			out = append(out, a.AsBooking(0))
			continue
		}
		id := a.Details.Infusion.PrescriptionID
		m, ok := minutes[id]
		if !ok {
			prof, err := s.infusions.InfusionProfile(ctx, id)
			switch {
			case errors.Is(err, prescription.ErrNotFound):
				// keep the stored time
			case err != nil:
				return nil, fmt.Errorf("resolve infusion time of %s: %w", id, err)
			default:
				m = prof.Minutes
			}
			minutes[id] = m
		}
		out = append(out, a.AsBooking(m))
	}
	return out, nil
}

func (s *Service) checkHours(start string, minutes int) error {
	if s.capacity.WithinHours(start, minutes) {
		return nil
	}
	return validation.Errors{{
		Path:    "start_time",
		Message: fmt.Sprintf("must fit within opening hours %s-%s", s.capacity.OpensAt, s.capacity.ClosesAt),
	}}
}

// BookRequest is an appointment to create. ConfirmOverbook accepts booking
// past the day's limit.
type BookRequest struct {
	Appointment
	ConfirmOverbook bool `json:"confirm_overbook"`
}

// Book creates an appointment after evaluating the day's capacity. Closed,
// past and weekday-restricted days are refused outright; a full day is
// refused unless the overbook is confirmed.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, capacity.Result, error) {
	a := req.Appointment
	if s.schema != nil {
		if errs := s.schema.Fields(&a); len(errs) > 0 {
			return nil, capacity.Result{}, errs
		}
	}
	day, err := s.parseDate(a.Date)
	if err != nil {
		return nil, capacity.Result{}, err
	}

	var prescriptionID *uuid.UUID
	if a.Type == capacity.TypeInfusion {
		if a.Details.Infusion == nil || a.Details.Infusion.PrescriptionID == uuid.Nil {
			return nil, capacity.Result{}, ErrPrescriptionNeeded
		}
		prescriptionID = &a.Details.Infusion.PrescriptionID
	}

	if capacity.IsDayBlocked(s.capacity, day, s.today()) {
		s.metrics.Booking(a.Type, "blocked")
		return nil, capacity.Result{}, &CapacityError{Err: ErrDayBlocked, Result: capacity.Result{IsBlocked: true}}
	}

	creq, err := s.request(ctx, day, a.Type, prescriptionID)
	if err != nil {
		return nil, capacity.Result{}, err
	}
	minutes := DefaultMinutes(a.Type, a.Details)
	if a.Type == capacity.TypeInfusion {
		minutes = creq.ProtocolMinutes
		if minutes <= 0 {
			minutes = DefaultInfusionMinutes
		}
	}
	if err := s.checkHours(a.StartTime, minutes); err != nil {
		return nil, capacity.Result{}, err
	}

	existing, err := s.appointments.ListByDateRange(ctx, a.Date, a.Date)
	if err != nil {
		return nil, capacity.Result{}, err
	}
	booked, err := s.bookings(ctx, existing)
	if err != nil {
		return nil, capacity.Result{}, err
	}
	res := capacity.Evaluate(s.capacity, creq, booked)

	switch {
	case res.IsBlocked:
		s.metrics.Booking(a.Type, "blocked")
		return nil, res, &CapacityError{Err: ErrDayBlocked, Result: res}
	case res.IsFull && !req.ConfirmOverbook:
		s.metrics.Booking(a.Type, "full")
		return nil, res, &CapacityError{Err: ErrCapacityFull, Result: res}
	case res.IsFull:
		a.Overbooked = true
		s.logger.Warn().
			Str("date", a.Date).
			Str("type", a.Type).
			Int("limit", res.Limit).
			Int("booked", res.Booked).
			Msg("appointment overbooked")
	}

	a.EndTime = duration.AddMinutes(a.StartTime, minutes)
	a.Status = StatusScheduled
	a.StatusReason = nil
	a.CheckedIn = false
	a.RescheduledFromID, a.RescheduledToID = nil, nil
	a.CreatedBy = auth.UserIDFromContext(ctx)
	if inf := a.Details.Infusion; inf != nil {
		inf.ProtocolMinutes = creq.ProtocolMinutes
		if inf.PharmacyStatus == "" {
			inf.PharmacyStatus = PharmacyScheduled
		}
	}
	a.History = nil
	a.record(s.entry(ctx, ChangeCreated))

	if err := s.appointments.Create(ctx, &a); err != nil {
		return nil, res, err
	}
	outcome := "booked"
	if a.Overbooked {
		outcome = "overbooked"
	}
	s.metrics.Booking(a.Type, outcome)
	s.publish(ctx, websocket.EventAppointmentBooked, &a)
	return &a, res, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListByDate(ctx context.Context, date string) ([]*Appointment, error) {
	if _, err := s.parseDate(date); err != nil {
		return nil, err
	}
	return s.appointments.ListByDateRange(ctx, date, date)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

// checkStatus applies the gating rules for moving a to status.
func checkStatus(a *Appointment, status, reason string) error {
	if !ValidStatus(status) {
		return ErrInvalidStatus
	}
	if status == StatusRescheduled {
		return ErrRescheduleRequired
	}
	if NeedsReason(status) && reason == "" {
		return ErrReasonRequired
	}
	if contains(StatusOptions(a.Type, a.CheckedIn), status) {
		return nil
	}
	if !a.CheckedIn && contains(StatusOptions(a.Type, true), status) {
		return ErrCheckinRequired
	}
	return ErrStatusNotAllowed
}

// ChangeStatus sets the status of one appointment.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, status, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(a, status, reason); err != nil {
		return nil, err
	}
	if a.Status == status {
		return a, nil
	}

	e := s.entry(ctx, ChangeStatus)
	e.Field, e.OldValue, e.NewValue, e.Reason = "status", a.Status, status, reason
	a.record(e)
	a.Status = status
	if reason != "" {
		a.StatusReason = &reason
	} else {
		a.StatusReason = nil
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.metrics.StatusChange(status)
	s.publish(ctx, websocket.EventAppointmentStatus, a)
	return a, nil
}

// SetCheckin marks the patient as present or absent. Presence cannot be
// withdrawn once the status implies it.
func (s *Service) SetCheckin(ctx context.Context, id uuid.UUID, checkedIn bool) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.CheckedIn == checkedIn {
		return a, nil
	}
	if !checkedIn && RequiresPresence(a.Status) {
		return nil, ErrCheckinLocked
	}
	e := s.entry(ctx, ChangeCheckin)
	e.Field, e.OldValue, e.NewValue = "checked_in", fmt.Sprint(a.CheckedIn), fmt.Sprint(checkedIn)
	a.record(e)
	a.CheckedIn = checkedIn
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventAppointmentStatus, a)
	return a, nil
}

// BatchStatusRequest applies one status to many appointments.
// ForceCheckin checks in absent patients when the status needs presence.
type BatchStatusRequest struct {
	IDs          []uuid.UUID `json:"ids" validate:"min=1"`
	Status       string      `json:"status" validate:"required"`
	ForceCheckin bool        `json:"force_checkin"`
}

// BatchStatus applies the status to every listed appointment in one
// transaction. Rows that would not change are skipped and the updated ones
// are returned.
func (s *Service) BatchStatus(ctx context.Context, req BatchStatusRequest) ([]*Appointment, error) {
	if !contains(BatchStatuses, req.Status) {
		if req.Status == StatusRescheduled {
			return nil, ErrRescheduleRequired
		}
		return nil, ErrInvalidStatus
	}

	var updated []*Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		appts, err := s.appointments.GetMany(ctx, req.IDs)
		if err != nil {
			return err
		}
		if len(appts) != len(req.IDs) {
			return ErrNotFound
		}
		if RequiresPresence(req.Status) && !req.ForceCheckin {
			for _, a := range appts {
				if !a.CheckedIn {
					return ErrCheckinRequired
				}
			}
		}
		for _, a := range appts {
			checkin := RequiresPresence(req.Status) && !a.CheckedIn
			if a.Status == req.Status && !checkin {
				continue
			}
			if checkin {
				e := s.entry(ctx, ChangeCheckin)
				e.Field, e.OldValue, e.NewValue = "checked_in", "false", "true"
				a.record(e)
				a.CheckedIn = true
			}
			if a.Status != req.Status {
				e := s.entry(ctx, ChangeStatus)
				e.Field, e.OldValue, e.NewValue = "status", a.Status, req.Status
				a.record(e)
				a.Status = req.Status
				a.StatusReason = nil
			}
			if err := s.appointments.Update(ctx, a); err != nil {
				return err
			}
			updated = append(updated, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, a := range updated {
		s.metrics.StatusChange(a.Status)
		s.publish(ctx, websocket.EventAppointmentStatus, a)
	}
	return updated, nil
}

// RescheduleRequest moves an appointment to a new date. Without KeepTime a
// new start time is required.
type RescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	KeepTime  bool   `json:"keep_time"`
	Reason    string `json:"reason"`
}

func (r *RescheduleRequest) check() error {
	r.Reason = strings.TrimSpace(r.Reason)
	var errs validation.Errors
	if r.Date == "" {
		errs = append(errs, validation.FieldError{Path: "date", Message: "is required"})
	}
	if r.Reason == "" {
		errs = append(errs, validation.FieldError{Path: "reason", Message: "is required"})
	}
	if !r.KeepTime {
		if _, ok := duration.ParseClock(r.StartTime); !ok {
			errs = append(errs, validation.FieldError{Path: "start_time", Message: "is required unless keep_time is set"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Reschedule creates the replacement appointment and marks the original
// rescheduled, in one transaction. It returns the replacement.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if err := req.check(); err != nil {
		return nil, err
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if capacity.IsDayBlocked(s.capacity, day, s.today()) {
		return nil, ErrDayBlocked
	}

	var orig, next *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var rerr error
		orig, next, rerr = s.reschedule(ctx, id, req)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	s.metrics.StatusChange(StatusRescheduled)
	s.publish(ctx, websocket.EventAppointmentRescheduled, orig)
	s.publish(ctx, websocket.EventAppointmentBooked, next)
	return next, nil
}

func (s *Service) reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, *Appointment, error) {
	orig, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if orig.Status == StatusRescheduled {
		return nil, nil, ErrAlreadyRescheduled
	}

	next := &Appointment{
		PatientID:         orig.PatientID,
		Type:              orig.Type,
		Date:              req.Date,
		StartTime:         orig.StartTime,
		Status:            StatusScheduled,
		Details:           orig.Details,
		Notes:             orig.Notes,
		RescheduledFromID: &orig.ID,
		CreatedBy:         auth.UserIDFromContext(ctx),
	}
	if !req.KeepTime {
		next.StartTime = req.StartTime
	}
	minutes := orig.DurationMinutes()
	if err := s.checkHours(next.StartTime, minutes); err != nil {
		return nil, nil, err
	}
	next.EndTime = duration.AddMinutes(next.StartTime, minutes)
	if inf := orig.Details.Infusion; inf != nil {
		cp := *inf
		cp.PreparedItems = nil
		cp.ExpectedReadyAt = ""
		next.Details.Infusion = &cp
	}
	created := s.entry(ctx, ChangeCreated)
	created.Reason = req.Reason
	created.OldValue = orig.Date + " " + orig.StartTime
	next.record(created)
	if err := s.appointments.Create(ctx, next); err != nil {
		return nil, nil, fmt.Errorf("create rescheduled appointment: %w", err)
	}

	e := s.entry(ctx, ChangeRescheduled)
	e.Field, e.OldValue, e.NewValue, e.Reason = "status", orig.Status, StatusRescheduled, req.Reason
	orig.record(e)
	orig.Status = StatusRescheduled
	orig.StatusReason = &req.Reason
	orig.RescheduledToID = &next.ID
	if err := s.appointments.Update(ctx, orig); err != nil {
		return nil, nil, fmt.Errorf("mark original rescheduled: %w", err)
	}
	return orig, next, nil
}

// BatchReschedule moves every listed appointment with the same request, all
// or nothing.
func (s *Service) BatchReschedule(ctx context.Context, ids []uuid.UUID, req RescheduleRequest) ([]*Appointment, error) {
	if len(ids) == 0 {
		return nil, validation.Errors{{Path: "ids", Message: "must have at least 1 item(s)"}}
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if capacity.IsDayBlocked(s.capacity, day, s.today()) {
		return nil, ErrDayBlocked
	}

	type pair struct{ orig, next *Appointment }
	var moved []pair
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			orig, next, err := s.reschedule(ctx, id, req)
			if err != nil {
				return fmt.Errorf("reschedule %s: %w", id, err)
			}
			moved = append(moved, pair{orig, next})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*Appointment, 0, len(moved))
	for _, m := range moved {
		s.metrics.StatusChange(StatusRescheduled)
		s.publish(ctx, websocket.EventAppointmentRescheduled, m.orig)
		s.publish(ctx, websocket.EventAppointmentBooked, m.next)
		out = append(out, m.next)
	}
	return out, nil
}

func infusionOf(a *Appointment) (*InfusionDetails, error) {
	if a.Type != capacity.TypeInfusion || a.Details.Infusion == nil {
		return nil, ErrNotInfusion
	}
	if PharmacyLocked(a.Status) {
		return nil, ErrPharmacyLocked
	}
	return a.Details.Infusion, nil
}

// updatePharmacy loads an infusion, applies fn to its details and saves it.
func (s *Service) updatePharmacy(ctx context.Context, id uuid.UUID, fn func(a *Appointment, inf *InfusionDetails) error) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	inf, err := infusionOf(a)
	if err != nil {
		return nil, err
	}
	if err := fn(a, inf); err != nil {
		return nil, err
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventPharmacyStatus, a)
	return a, nil
}

func (s *Service) SetPharmacyStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	if !ValidPharmacyStatus(status) {
		return nil, ErrInvalidPharmacy
	}
	return s.updatePharmacy(ctx, id, func(a *Appointment, inf *InfusionDetails) error {
		s.setPharmacy(ctx, a, inf, status)
		return nil
	})
}

func (s *Service) setPharmacy(ctx context.Context, a *Appointment, inf *InfusionDetails, status string) {
	e := s.entry(ctx, ChangePharmacy)
	e.Field, e.OldValue, e.NewValue = "pharmacy_status", inf.PharmacyStatus, status
	a.record(e)
	inf.PharmacyStatus = status
}

// SetPharmacyExpectedTime sets when the preparation should be ready. An
// empty time clears it.
func (s *Service) SetPharmacyExpectedTime(ctx context.Context, id uuid.UUID, clock string) (*Appointment, error) {
	if clock != "" {
		if _, ok := duration.ParseClock(clock); !ok {
			return nil, validation.Errors{{Path: "expected_ready_at", Message: "must match the format 15:04"}}
		}
	}
	return s.updatePharmacy(ctx, id, func(_ *Appointment, inf *InfusionDetails) error {
		inf.ExpectedReadyAt = clock
		return nil
	})
}

// SetPreparedItems replaces the checklist of prepared medications.
func (s *Service) SetPreparedItems(ctx context.Context, id uuid.UUID, items []string) (*Appointment, error) {
	clean := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		clean = append(clean, it)
	}
	return s.updatePharmacy(ctx, id, func(_ *Appointment, inf *InfusionDetails) error {
		inf.PreparedItems = clean
		return nil
	})
}

// BatchPharmacyResult lists what a batch pharmacy update touched.
type BatchPharmacyResult struct {
	Updated []*Appointment `json:"updated"`
	Skipped []uuid.UUID    `json:"skipped"`
}

// BatchPharmacyStatus sets the pharmacy status of many infusions. Locked
// rows and non-infusions are skipped, not failed.
func (s *Service) BatchPharmacyStatus(ctx context.Context, ids []uuid.UUID, status string) (*BatchPharmacyResult, error) {
	if !ValidPharmacyStatus(status) {
		return nil, ErrInvalidPharmacy
	}
	res := &BatchPharmacyResult{Updated: []*Appointment{}, Skipped: []uuid.UUID{}}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		appts, err := s.appointments.GetMany(ctx, ids)
		if err != nil {
			return err
		}
		for _, a := range appts {
			inf, err := infusionOf(a)
			if err != nil {
				res.Skipped = append(res.Skipped, a.ID)
				continue
			}
			if inf.PharmacyStatus == status {
				continue
			}
			s.setPharmacy(ctx, a, inf, status)
			if err := s.appointments.Update(ctx, a); err != nil {
				return err
			}
			res.Updated = append(res.Updated, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, a := range res.Updated {
		s.publish(ctx, websocket.EventPharmacyStatus, a)
	}
	return res, nil
}

// Availability is the capacity of one day for one kind of booking.
type Availability struct {
	Date       string `json:"date"`
	DayBlocked bool   `json:"day_blocked"`
	capacity.Result
}

func (s *Service) Availability(ctx context.Context, date, apptType string, prescriptionID *uuid.UUID) (*Availability, error) {
	if err := checkType(apptType); err != nil {
		return nil, err
	}
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	creq, err := s.request(ctx, day, apptType, prescriptionID)
	if err != nil {
		return nil, err
	}
	existing, err := s.appointments.ListByDateRange(ctx, date, date)
	if err != nil {
		return nil, err
	}
	booked, err := s.bookings(ctx, existing)
	if err != nil {
		return nil, err
	}
	return &Availability{
		Date:       date,
		DayBlocked: capacity.IsDayBlocked(s.capacity, day, s.today()),
		Result:     capacity.Evaluate(s.capacity, creq, booked),
	}, nil
}

// Calendar evaluates every day of a month given as YYYY-MM.
func (s *Service) Calendar(ctx context.Context, month, apptType string, prescriptionID *uuid.UUID) ([]capacity.Day, error) {
	if err := checkType(apptType); err != nil {
		return nil, err
	}
	first, err := time.ParseInLocation("2006-01", month, s.loc)
	if err != nil {
		return nil, validation.Errors{{Path: "month", Message: "must match the format 2006-01"}}
	}
	last := first.AddDate(0, 1, -1)
	creq, err := s.request(ctx, first, apptType, prescriptionID)
	if err != nil {
		return nil, err
	}
	existing, err := s.appointments.ListByDateRange(ctx, first.Format(capacity.DateLayout), last.Format(capacity.DateLayout))
	if err != nil {
		return nil, err
	}
	booked, err := s.bookings(ctx, existing)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string][]capacity.Booking)
	for i, a := range existing {
		byDay[a.Date] = append(byDay[a.Date], booked[i])
	}
	return capacity.Month(s.capacity, first.Year(), first.Month(), s.today(), creq, byDay), nil
}

// CapacityConfig exposes the effective limits.
func (s *Service) CapacityConfig() capacity.Config {
	return s.capacity
}

// IsCapacityError reports whether err came from a capacity refusal and
// returns its evaluation.
func IsCapacityError(err error) (*CapacityError, bool) {
	var ce *CapacityError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
