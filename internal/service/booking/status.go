package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
)

// Confirm moves a PENDING appointment to CONFIRMED. Confirming twice is a
// no-op.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appt *model.Appointment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.Appointments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch a.Status {
		case model.AppointmentStatusConfirmed:
			appt = a
			return nil
		case model.AppointmentStatusPending:
		default:
			return errors.Conflict(fmt.Sprintf("cannot confirm a %s appointment", strings.ToLower(string(a.Status))), nil)
		}
		if err := tx.Appointments().UpdateStatus(ctx, id, model.AppointmentStatusConfirmed); err != nil {
			return fmt.Errorf("failed to confirm appointment: %w", err)
		}
		a.Status = model.AppointmentStatusConfirmed
		appt = a
		return nil
	})
	if err != nil {
		return nil, service.StoreError(err, "appointment")
	}
	return appt, nil
}

// Cancel releases the appointment's token. Patients may only cancel their own
// appointments. COMPLETED and CANCELLED are terminal.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
	var appt *model.Appointment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.Appointments().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role == model.RolePatient && a.PatientID != actor.ID {
			return errors.Forbidden("appointment belongs to another patient")
		}
		if a.Status == model.AppointmentStatusCompleted || a.Status == model.AppointmentStatusCancelled {
			return errors.Conflict(fmt.Sprintf("cannot cancel a %s appointment", strings.ToLower(string(a.Status))), nil)
		}
		if err := tx.Appointments().UpdateStatus(ctx, id, model.AppointmentStatusCancelled); err != nil {
			return fmt.Errorf("failed to cancel appointment: %w", err)
		}
		a.Status = model.AppointmentStatusCancelled
		appt = a
		return nil
	})
	if err != nil {
		return nil, service.StoreError(err, "appointment")
	}

	logger.FromContext(ctx, s.logger).Info("appointment cancelled",
		"appointment_id", id, "actor_id", actor.ID, "actor_role", actor.Role)
	return appt, nil
}

// List returns appointments matching filters ordered by date, slot and token.
func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	appointments, err := s.store.Appointments().List(ctx, filters)
	if err != nil {
		return nil, service.StoreError(err, "appointment")
	}
	return appointments, nil
}
