package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

type consultationRepository struct {
	BaseRepository
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()

	var nextVisit interface{}
	if c.NextVisitDate != nil {
		nextVisit = c.NextVisitDate.Format(model.DateLayout)
	}

	query := `
		INSERT INTO consultations (id, appointment_id, diagnosis, notes, next_visit_date, created_at)
		VALUES ($1, $2, $3, $4, $5::date, $6)
	`
	_, err := r.exec(ctx, query, c.ID, c.AppointmentID, c.Diagnosis, c.Notes, nextVisit, c.CreatedAt)
	return err
}

func (r *consultationRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*model.Consultation, error) {
	var c model.Consultation
	query := `
		SELECT id, appointment_id, diagnosis, notes, next_visit_date, created_at
		FROM consultations
		WHERE appointment_id = $1
	`
	if err := r.get(ctx, &c, query, appointmentID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consultationRepository) CreatePrescription(ctx context.Context, p *model.Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO prescriptions (id, consultation_id, dispensed, dispensed_by_id, dispensed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.exec(ctx, query, p.ID, p.ConsultationID, p.Dispensed, p.DispensedByID, p.DispensedAt, p.CreatedAt)
	return err
}

func (r *consultationRepository) CreatePrescriptionItem(ctx context.Context, item *model.PrescriptionItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	query := `
		INSERT INTO prescription_items (id, prescription_id, medicine_id, dosage, duration)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.exec(ctx, query, item.ID, item.PrescriptionID, item.MedicineID, item.Dosage, item.Duration)
	return err
}

func (r *consultationRepository) CreateLabRequest(ctx context.Context, lr *model.LabRequest) error {
	if lr.ID == uuid.Nil {
		lr.ID = uuid.New()
	}
	lr.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO lab_requests (id, consultation_id, lab_test_id, test_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.exec(ctx, query, lr.ID, lr.ConsultationID, lr.LabTestID, lr.TestName, lr.Status, lr.CreatedAt)
	return err
}

func (r *consultationRepository) GetPrescriptionForUpdate(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	query := `
		SELECT id, consultation_id, dispensed, dispensed_by_id, dispensed_at, created_at
		FROM prescriptions
		WHERE id = $1
		FOR UPDATE
	`
	if err := r.get(ctx, &p, query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *consultationRepository) MarkDispensed(ctx context.Context, id, dispensedBy uuid.UUID, at time.Time) error {
	query := `
		UPDATE prescriptions
		SET dispensed = TRUE, dispensed_by_id = $1, dispensed_at = $2
		WHERE id = $3
	`
	return r.execOne(ctx, query, dispensedBy, at, id)
}

func (r *consultationRepository) GetLabRequestForUpdate(ctx context.Context, id uuid.UUID) (*model.LabRequest, error) {
	var lr model.LabRequest
	query := `
		SELECT id, consultation_id, lab_test_id, test_name, status, result,
			technician_id, completed_at, created_at
		FROM lab_requests
		WHERE id = $1
		FOR UPDATE
	`
	if err := r.get(ctx, &lr, query, id); err != nil {
		return nil, err
	}
	return &lr, nil
}

func (r *consultationRepository) CompleteLabRequest(ctx context.Context, id, technicianID uuid.UUID, result []byte, at time.Time) error {
	query := `
		UPDATE lab_requests
		SET status = $1, result = $2::jsonb, technician_id = $3, completed_at = $4
		WHERE id = $5
	`
	return r.execOne(ctx, query, model.LabRequestStatusCompleted, string(result), technicianID, at, id)
}

func (r *consultationRepository) ListIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if len(appointmentIDs) == 0 {
		return ids, nil
	}
	query := `SELECT id FROM consultations WHERE appointment_id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`
	if err := r.selectAll(ctx, &ids, query, uuidArray(appointmentIDs)); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *consultationRepository) ListPrescriptionIDs(ctx context.Context, consultationIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if len(consultationIDs) == 0 {
		return ids, nil
	}
	query := `SELECT id FROM prescriptions WHERE consultation_id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`
	if err := r.selectAll(ctx, &ids, query, uuidArray(consultationIDs)); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *consultationRepository) DeletePrescriptionItems(ctx context.Context, prescriptionIDs []uuid.UUID) (int64, error) {
	if len(prescriptionIDs) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `DELETE FROM prescription_items WHERE prescription_id = ANY($1::uuid[])`, uuidArray(prescriptionIDs))
}

func (r *consultationRepository) DeletePrescriptions(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `DELETE FROM prescriptions WHERE id = ANY($1::uuid[])`, uuidArray(ids))
}

func (r *consultationRepository) DeleteLabRequests(ctx context.Context, consultationIDs []uuid.UUID) (int64, error) {
	if len(consultationIDs) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `DELETE FROM lab_requests WHERE consultation_id = ANY($1::uuid[])`, uuidArray(consultationIDs))
}

func (r *consultationRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `DELETE FROM consultations WHERE id = ANY($1::uuid[])`, uuidArray(ids))
}

func (r *consultationRepository) ClearDispensedBy(ctx context.Context, identityID uuid.UUID) (int64, error) {
	return r.exec(ctx, `UPDATE prescriptions SET dispensed_by_id = NULL WHERE dispensed_by_id = $1`, identityID)
}

func (r *consultationRepository) ClearTechnician(ctx context.Context, identityID uuid.UUID) (int64, error) {
	return r.exec(ctx, `UPDATE lab_requests SET technician_id = NULL WHERE technician_id = $1`, identityID)
}
