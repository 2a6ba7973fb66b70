// Package consultation records the outcome of a visit and the pharmacy and
// lab work that follows it.
package consultation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

var errAlreadyFinalized = errors.Conflict("a consultation is already recorded for this appointment", nil)

// Upserter records uses of catalog names inside a transaction.
type Upserter interface {
	UpsertAll(ctx context.Context, tx repository.Tx, kind model.CatalogKind, names []string) ([]*model.CatalogEntry, error)
	RecordUses(kind model.CatalogKind, n int)
}

type Service struct {
	store   repository.Store
	catalog Upserter
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store repository.Store, catalog Upserter, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		logger:  log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type finalizedEvent struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Items          int       `json:"items"`
	LabRequests    int       `json:"lab_requests"`
	NextVisitDate  string    `json:"next_visit_date,omitempty"`
}

// Finalize writes the consultation, its prescription and lab requests, bumps
// the catalog counters and completes the appointment, all in one transaction.
// Nothing is retried; on any failure nothing is written.
func (s *Service) Finalize(ctx context.Context, appointmentID uuid.UUID, actor model.Actor, req model.FinalizeConsultationRequest) (*model.ConsultationRecord, error) {
	if err := validator.Struct(req); err != nil {
		s.metrics.Consultations.WithLabelValues("invalid").Inc()
		return nil, errors.BadRequest(validator.Describe(err), err)
	}
	diagnosis := strings.TrimSpace(req.Diagnosis)
	if diagnosis == "" {
		s.metrics.Consultations.WithLabelValues("invalid").Inc()
		return nil, errors.BadRequest("diagnosis is required", nil)
	}
	var nextVisit *time.Time
	if req.NextVisitDate != nil && *req.NextVisitDate != "" {
		d, err := model.ParseDate(*req.NextVisitDate)
		if err != nil {
			return nil, errors.BadRequest("next_visit_date must be formatted as "+model.DateLayout, err)
		}
		nextVisit = &d
	}

	var record *model.ConsultationRecord
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		appt, err := tx.Appointments().GetByIDForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if actor.Role == model.RoleDoctor && appt.DoctorID != actor.ID {
			return errors.Forbidden("appointment belongs to another doctor")
		}
		switch appt.Status {
		case model.AppointmentStatusCompleted:
			return errAlreadyFinalized
		case model.AppointmentStatusCancelled:
			return errors.Conflict("cannot record a consultation for a cancelled appointment", nil)
		}

		record = &model.ConsultationRecord{Consultation: &model.Consultation{
			AppointmentID: appt.ID,
			Diagnosis:     diagnosis,
			Notes:         strings.TrimSpace(req.Notes),
			NextVisitDate: nextVisit,
		}}
		if err := tx.Consultations().Create(ctx, record.Consultation); err != nil {
			if repository.IsDuplicate(err, repository.ConstraintConsultation) {
				return errAlreadyFinalized
			}
			return fmt.Errorf("failed to create consultation: %w", err)
		}
		consultationID := record.Consultation.ID

		// Medicines before lab tests, each in name order, keeps the catalog
		// row locks of concurrent finalizations in one global order.
		medicineNames := make([]string, len(req.Items))
		for i, item := range req.Items {
			medicineNames[i] = item.Name
		}
		medicines, err := s.catalog.UpsertAll(ctx, tx, model.CatalogMedicine, medicineNames)
		if err != nil {
			return err
		}
		testNames := make([]string, len(req.LabTests))
		for i, test := range req.LabTests {
			testNames[i] = test.Name
		}
		labTests, err := s.catalog.UpsertAll(ctx, tx, model.CatalogLabTest, testNames)
		if err != nil {
			return err
		}

		if len(req.Items) > 0 {
			if err := s.prescribe(ctx, tx, record, req.Items, medicines); err != nil {
				return err
			}
		}
		for _, entry := range labTests {
			lr := &model.LabRequest{
				ConsultationID: consultationID,
				LabTestID:      entry.ID,
				TestName:       entry.Name,
				Status:         model.LabRequestStatusPending,
			}
			if err := tx.Consultations().CreateLabRequest(ctx, lr); err != nil {
				return fmt.Errorf("failed to create lab request: %w", err)
			}
			record.LabRequests = append(record.LabRequests, *lr)
		}

		if err := tx.Appointments().UpdateStatus(ctx, appt.ID, model.AppointmentStatusCompleted); err != nil {
			return fmt.Errorf("failed to complete appointment: %w", err)
		}

		event := finalizedEvent{
			ConsultationID: consultationID,
			AppointmentID:  appt.ID,
			DoctorID:       appt.DoctorID,
			PatientID:      appt.PatientID,
			Items:          len(record.Items),
			LabRequests:    len(record.LabRequests),
		}
		if nextVisit != nil {
			event.NextVisitDate = nextVisit.Format(model.DateLayout)
		}
		return service.WriteEvent(ctx, tx, model.EventConsultationFinalized, event)
	})
	if err != nil {
		result := "error"
		if errors.HasCode(err, errors.ErrConflict) {
			result = "conflict"
		}
		s.metrics.Consultations.WithLabelValues(result).Inc()
		return nil, service.StoreError(err, "appointment")
	}

	s.metrics.Consultations.WithLabelValues("ok").Inc()
	s.catalog.RecordUses(model.CatalogMedicine, len(record.Items))
	s.catalog.RecordUses(model.CatalogLabTest, len(record.LabRequests))
	logger.FromContext(ctx, s.logger).Info("consultation finalized",
		"appointment_id", appointmentID,
		"consultation_id", record.Consultation.ID,
		"items", len(record.Items),
		"lab_requests", len(record.LabRequests),
	)
	return record, nil
}

func (s *Service) prescribe(ctx context.Context, tx repository.Tx, record *model.ConsultationRecord, items []model.PrescriptionItemRequest, medicines []*model.CatalogEntry) error {
	record.Prescription = &model.Prescription{ConsultationID: record.Consultation.ID}
	if err := tx.Consultations().CreatePrescription(ctx, record.Prescription); err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	for i, item := range items {
		medicine := medicines[i]
		pi := &model.PrescriptionItem{
			PrescriptionID: record.Prescription.ID,
			MedicineID:     medicine.ID,
			Dosage:         strings.TrimSpace(item.Dosage),
			Duration:       strings.TrimSpace(item.Duration),
		}
		if err := tx.Consultations().CreatePrescriptionItem(ctx, pi); err != nil {
			return fmt.Errorf("failed to create prescription item: %w", err)
		}
		record.Items = append(record.Items, *pi)
	}
	return nil
}

// Dispense marks a prescription as handed over by the pharmacist.
func (s *Service) Dispense(ctx context.Context, prescriptionID uuid.UUID, actor model.Actor) (*model.Prescription, error) {
	var out *model.Prescription
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		p, err := tx.Consultations().GetPrescriptionForUpdate(ctx, prescriptionID)
		if err != nil {
			return err
		}
		if p.Dispensed {
			return errors.Conflict("prescription is already dispensed", nil)
		}
		at := s.now()
		if err := tx.Consultations().MarkDispensed(ctx, p.ID, actor.ID, at); err != nil {
			return fmt.Errorf("failed to mark prescription dispensed: %w", err)
		}
		by := actor.ID
		p.Dispensed, p.DispensedByID, p.DispensedAt = true, &by, &at
		out = p
		return nil
	})
	if err != nil {
		return nil, service.StoreError(err, "prescription")
	}
	return out, nil
}

// CompleteLabRequest attaches a result to a PENDING lab request.
func (s *Service) CompleteLabRequest(ctx context.Context, id uuid.UUID, actor model.Actor, result json.RawMessage) (*model.LabRequest, error) {
	if len(result) == 0 || !json.Valid(result) {
		return nil, errors.BadRequest("result must be valid JSON", nil)
	}

	var out *model.LabRequest
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		lr, err := tx.Consultations().GetLabRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if lr.Status == model.LabRequestStatusCompleted {
			return errors.Conflict("lab request is already completed", nil)
		}
		at := s.now()
		if err := tx.Consultations().CompleteLabRequest(ctx, lr.ID, actor.ID, result, at); err != nil {
			return fmt.Errorf("failed to complete lab request: %w", err)
		}
		tech := actor.ID
		raw := append(json.RawMessage(nil), result...)
		lr.Status, lr.Result, lr.TechnicianID, lr.CompletedAt = model.LabRequestStatusCompleted, &raw, &tech, &at
		out = lr
		return nil
	})
	if err != nil {
		return nil, service.StoreError(err, "lab request")
	}
	return out, nil
}
