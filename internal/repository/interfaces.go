package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	pkgrepo "github.com/jwalitptl/clinic-api/pkg/repository"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrTransient marks lock timeouts, deadlocks, serialization failures and
	// statement timeouts. The whole unit of work may be retried.
	ErrTransient = errors.New("transient storage failure")
)

// Constraint names shared by the schema and the in-memory store.
const (
	ConstraintAppointmentToken = "ux_appointments_token"
	ConstraintPatientPhone     = "ux_identities_patient_phone"
	ConstraintDisplayCode      = "identities_display_code_key"
	ConstraintRootIdentity     = "ux_identities_root"
	ConstraintConsultation     = "consultations_appointment_id_key"
)

// DuplicateError reports a unique constraint violation.
type DuplicateError struct {
	Constraint string
	Err        error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate key violates %s", e.Constraint)
}

func (e *DuplicateError) Unwrap() error {
	return e.Err
}

// IsDuplicate reports whether err is a violation of constraint. An empty
// constraint matches any unique violation.
func IsDuplicate(err error, constraint string) bool {
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		return false
	}
	return constraint == "" || dup.Constraint == constraint
}

type (
	IdentityRepository interface {
		Create(ctx context.Context, identity *model.Identity) error
		// CreatePatientIfAbsent inserts a PATIENT unless one already holds the
		// phone. It reports whether a row was written.
		CreatePatientIfAbsent(ctx context.Context, identity *model.Identity) (bool, error)
		GetByID(ctx context.Context, id uuid.UUID) (*model.Identity, error)
		GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Identity, error)
		GetPatientByPhone(ctx context.Context, phone string) (*model.Identity, error)
		GetPatientByPhoneForUpdate(ctx context.Context, phone string) (*model.Identity, error)
		GetByDisplayCode(ctx context.Context, code string) (*model.Identity, error)
		UpdateProfile(ctx context.Context, id uuid.UUID, details model.PersonDetails) error
		Delete(ctx context.Context, id uuid.UUID) (int64, error)
		HasRoot(ctx context.Context) (bool, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// MaxToken returns the highest token ever issued in the group,
		// cancelled appointments included, or 0 when there are none.
		MaxToken(ctx context.Context, doctorID uuid.UUID, date time.Time, slot string) (int, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// ListIDsByParticipant locks and returns every appointment where the
		// identity is doctor or patient.
		ListIDsByParticipant(ctx context.Context, identityID uuid.UUID) ([]uuid.UUID, error)
		DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	}

	ConsultationRepository interface {
		Create(ctx context.Context, consultation *model.Consultation) error
		GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*model.Consultation, error)
		CreatePrescription(ctx context.Context, prescription *model.Prescription) error
		CreatePrescriptionItem(ctx context.Context, item *model.PrescriptionItem) error
		CreateLabRequest(ctx context.Context, request *model.LabRequest) error

		GetPrescriptionForUpdate(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		MarkDispensed(ctx context.Context, id, dispensedBy uuid.UUID, at time.Time) error
		GetLabRequestForUpdate(ctx context.Context, id uuid.UUID) (*model.LabRequest, error)
		CompleteLabRequest(ctx context.Context, id, technicianID uuid.UUID, result []byte, at time.Time) error

		ListIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) ([]uuid.UUID, error)
		ListPrescriptionIDs(ctx context.Context, consultationIDs []uuid.UUID) ([]uuid.UUID, error)
		DeletePrescriptionItems(ctx context.Context, prescriptionIDs []uuid.UUID) (int64, error)
		DeletePrescriptions(ctx context.Context, ids []uuid.UUID) (int64, error)
		DeleteLabRequests(ctx context.Context, consultationIDs []uuid.UUID) (int64, error)
		DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
		ClearDispensedBy(ctx context.Context, identityID uuid.UUID) (int64, error)
		ClearTechnician(ctx context.Context, identityID uuid.UUID) (int64, error)
	}

	CatalogRepository interface {
		// Upsert creates the entry with usage 1 or atomically increments it.
		Upsert(ctx context.Context, kind model.CatalogKind, name string) (*model.CatalogEntry, error)
		GetByName(ctx context.Context, kind model.CatalogKind, name string) (*model.CatalogEntry, error)
		Search(ctx context.Context, kind model.CatalogKind, prefix string, limit int) ([]*model.CatalogEntry, error)
	}

	VerificationCodeRepository interface {
		// Upsert replaces any live code for the phone.
		Upsert(ctx context.Context, code *model.VerificationCode) error
		GetForUpdate(ctx context.Context, phone string) (*model.VerificationCode, error)
		Delete(ctx context.Context, phone string) (int64, error)
		DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	}

	OutboxRepository interface {
		pkgrepo.OutboxStore
		Create(ctx context.Context, event *model.OutboxEvent) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Repositories groups every repository bound to one connection or transaction.
type Repositories interface {
	Identities() IdentityRepository
	Appointments() AppointmentRepository
	Consultations() ConsultationRepository
	Catalog() CatalogRepository
	VerificationCodes() VerificationCodeRepository
	Outbox() OutboxRepository
}

// Tx is a unit of work. Everything done through it commits or rolls back together.
type Tx interface {
	Repositories
}

// Store hands out repositories outside a transaction and runs units of work.
type Store interface {
	Repositories
	// WithTx runs fn in a transaction. It commits when fn returns nil and
	// rolls back on error or panic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
