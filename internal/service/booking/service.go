// Package booking allocates queue tokens and books appointments.
//
// A token is max(tokens ever issued in the doctor/date/slot group)+1, so a
// cancelled number is never handed out again. The storage layer enforces
// uniqueness of the token within the group; a booking that loses the race is
// retried from scratch a bounded number of times.
package booking

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

const (
	defaultMaxTokenAttempts = 5
	maxSlotLength           = 64

	kindScheduled = "scheduled"
	kindWalkIn    = "walk_in"
)

// Resolver finds or creates the patient behind a booking.
type Resolver interface {
	ResolvePatient(ctx context.Context, tx repository.Tx, phone string, details *model.PersonDetails) (*model.Identity, error)
	Backfill(ctx context.Context, tx repository.Tx, identity *model.Identity, details model.PersonDetails) error
}

type Config struct {
	MaxTokenAttempts int
	// Location decides which calendar day is "today".
	Location *time.Location
}

type Service struct {
	store    repository.Store
	resolver Resolver
	notifier notification.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
}

func NewService(store repository.Store, resolver Resolver, notifier notification.Service, log *logger.Logger, m *metrics.Metrics, cfg Config) *Service {
	if cfg.MaxTokenAttempts <= 0 {
		cfg.MaxTokenAttempts = defaultMaxTokenAttempts
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Input describes a booking. PatientID is set for a signed in patient; Guest
// identifies everyone else by phone. Attendee is the person being examined
// when it differs from the booker.
type Input struct {
	DoctorID  uuid.UUID
	Date      string
	Slot      string
	PatientID *uuid.UUID
	Guest     *model.GuestDetails
	Attendee  *model.PersonDetails

	walkIn bool
}

type bookedEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Date          string    `json:"date"`
	Slot          string    `json:"slot"`
	TokenNumber   int       `json:"token_number"`
	WalkIn        bool      `json:"walk_in"`
}

func (s *Service) today() time.Time {
	return model.TruncateDay(s.now(), s.cfg.Location)
}

// slot validates a date and slot label pair and returns the day at midnight UTC.
func (s *Service) slot(date, slot string) (time.Time, string, error) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return time.Time{}, "", errors.InvalidSlot("slot is required", nil)
	}
	if len(slot) > maxSlotLength {
		return time.Time{}, "", errors.InvalidSlot("slot label is too long", nil)
	}
	day, err := model.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, "", errors.InvalidSlot("date must be formatted as "+model.DateLayout, err)
	}
	if day.Before(s.today()) {
		return time.Time{}, "", errors.InvalidSlot("date is in the past", nil)
	}
	return day, slot, nil
}

func (s *Service) doctor(ctx context.Context, repos repository.Repositories, id uuid.UUID) (*model.Identity, error) {
	doctor, err := repos.Identities().GetByID(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.InvalidSlot("unknown doctor", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load doctor: %w", err)
	}
	if doctor.Role != model.RoleDoctor {
		return nil, errors.InvalidSlot("identity is not a doctor", nil)
	}
	return doctor, nil
}

// PreviewToken returns the token the next booking for the slot would get. It
// reserves nothing, so two previews may show the same number.
func (s *Service) PreviewToken(ctx context.Context, doctorID uuid.UUID, date, slot string) (*model.TokenPreview, error) {
	day, slot, err := s.slot(date, slot)
	if err != nil {
		return nil, err
	}
	if _, err := s.doctor(ctx, s.store, doctorID); err != nil {
		return nil, service.StoreError(err, "doctor")
	}
	highest, err := s.store.Appointments().MaxToken(ctx, doctorID, day, slot)
	if err != nil {
		return nil, service.StoreError(err, "appointment")
	}
	return &model.TokenPreview{
		DoctorID:    doctorID,
		Date:        day.Format(model.DateLayout),
		Slot:        slot,
		TokenNumber: highest + 1,
	}, nil
}

// WalkIn books a same day visit under the Walk-in slot.
func (s *Service) WalkIn(ctx context.Context, doctorID uuid.UUID, guest model.GuestDetails) (*model.BookingResult, error) {
	return s.Book(ctx, Input{
		DoctorID: doctorID,
		Date:     s.today().Format(model.DateLayout),
		Slot:     model.WalkInSlot,
		Guest:    &guest,
		walkIn:   true,
	})
}

// Book resolves the patient, allocates the next token and creates the
// appointment in one transaction, retrying when another booking took the
// token first.
func (s *Service) Book(ctx context.Context, in Input) (*model.BookingResult, error) {
	start := time.Now()
	kind := kindScheduled
	if in.walkIn {
		kind = kindWalkIn
	}
	log := logger.FromContext(ctx, s.logger)

	day, slot, err := s.slot(in.Date, in.Slot)
	if err != nil {
		s.metrics.BookingsTotal.WithLabelValues(kind, "invalid").Inc()
		return nil, err
	}
	if err := validateParties(in); err != nil {
		s.metrics.BookingsTotal.WithLabelValues(kind, "invalid").Inc()
		return nil, err
	}

	var b *booked
	for attempt := 1; ; attempt++ {
		err = s.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			b, err = s.bookOnce(ctx, tx, in, day, slot)
			return err
		})
		if err == nil || !repository.IsDuplicate(err, repository.ConstraintAppointmentToken) {
			break
		}
		s.metrics.TokenConflicts.Inc()
		if attempt >= s.cfg.MaxTokenAttempts || ctx.Err() != nil {
			break
		}
		log.Debug("token taken by a concurrent booking, retrying",
			"doctor_id", in.DoctorID, "date", in.Date, "slot", slot, "attempt", attempt)
	}
	s.metrics.BookingLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if repository.IsDuplicate(err, repository.ConstraintAppointmentToken) {
			s.metrics.BookingsTotal.WithLabelValues(kind, "conflict").Inc()
			log.Warn("token allocation gave up", "doctor_id", in.DoctorID, "date", in.Date, "slot", slot)
			return nil, errors.Conflict("the slot is busy, please refresh and try again", err)
		}
		s.metrics.BookingsTotal.WithLabelValues(kind, "error").Inc()
		return nil, service.StoreError(err, "appointment")
	}
	s.metrics.BookingsTotal.WithLabelValues(kind, "ok").Inc()

	appt := b.appointment
	log.Info("appointment booked",
		"appointment_id", appt.ID, "doctor_id", appt.DoctorID, "token", *appt.TokenNumber, "slot", slot)

	if b.patient.Phone != nil {
		s.notifier.Notify(ctx, *b.patient.Phone, fmt.Sprintf(
			"Your appointment with %s on %s (%s) is booked. Your token number is %d.",
			b.doctor.Name, day.Format(model.DateLayout), slot, *appt.TokenNumber))
	}

	return &model.BookingResult{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		TokenNumber:   *appt.TokenNumber,
		Date:          day.Format(model.DateLayout),
		Slot:          slot,
	}, nil
}

type booked struct {
	appointment *model.Appointment
	doctor      *model.Identity
	patient     *model.Identity
}

func (s *Service) bookOnce(ctx context.Context, tx repository.Tx, in Input, day time.Time, slot string) (*booked, error) {
	doctor, err := s.doctor(ctx, tx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	patient, err := s.patient(ctx, tx, in)
	if err != nil {
		return nil, err
	}

	highest, err := tx.Appointments().MaxToken(ctx, doctor.ID, day, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to read current token: %w", err)
	}
	token := highest + 1

	appt := &model.Appointment{
		DoctorID:    doctor.ID,
		PatientID:   patient.ID,
		Date:        day,
		Slot:        &slot,
		TokenNumber: &token,
		Status:      model.AppointmentStatusPending,
	}
	snapshotAttendee(appt, patient, in)

	if err := tx.Appointments().Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	err = service.WriteEvent(ctx, tx, model.EventAppointmentBooked, bookedEvent{
		AppointmentID: appt.ID,
		DoctorID:      doctor.ID,
		PatientID:     patient.ID,
		Date:          day.Format(model.DateLayout),
		Slot:          slot,
		TokenNumber:   token,
		WalkIn:        in.walkIn,
	})
	if err != nil {
		return nil, err
	}
	return &booked{appointment: appt, doctor: doctor, patient: patient}, nil
}

func (s *Service) patient(ctx context.Context, tx repository.Tx, in Input) (*model.Identity, error) {
	if in.PatientID == nil {
		return s.resolver.ResolvePatient(ctx, tx, in.Guest.Phone, &in.Guest.PersonDetails)
	}

	patient, err := tx.Identities().GetByIDForUpdate(ctx, *in.PatientID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}
	if patient.Role != model.RolePatient {
		return nil, errors.Forbidden("only patients can book for themselves")
	}
	if in.Guest != nil {
		if err := s.resolver.Backfill(ctx, tx, patient, in.Guest.PersonDetails); err != nil {
			return nil, err
		}
	}
	return patient, nil
}

func validateParties(in Input) error {
	if in.PatientID == nil && in.Guest == nil {
		return errors.BadRequest("guest details are required when not signed in", nil)
	}
	if in.Guest != nil {
		if err := validator.Struct(in.Guest); err != nil {
			return errors.BadRequest(validator.Describe(err), err)
		}
	}
	if in.Attendee != nil {
		if err := validator.Struct(in.Attendee); err != nil {
			return errors.BadRequest(validator.Describe(err), err)
		}
	}
	return nil
}

// snapshotAttendee records who is being examined: explicit attendee details,
// else the guest details, else the patient's own profile.
func snapshotAttendee(appt *model.Appointment, patient *model.Identity, in Input) {
	var d *model.PersonDetails
	switch {
	case in.Attendee != nil:
		d = in.Attendee
	case in.Guest != nil:
		d = &in.Guest.PersonDetails
	}
	if d != nil {
		name, sex, age := strings.TrimSpace(d.Name), strings.ToUpper(d.Sex), *d.Age
		appt.PatientName, appt.PatientSex, appt.PatientAge = &name, &sex, &age
		return
	}
	name := patient.Name
	appt.PatientName = &name
	appt.PatientAge = patient.Age
	appt.PatientSex = patient.Sex
}
