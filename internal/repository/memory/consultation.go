package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type consultationRepository struct {
	*repos
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	return r.do(ctx, "consultations.Create", func(st *state, now time.Time) error {
		if _, ok := st.appointments[c.AppointmentID]; !ok {
			return ErrForeignKey
		}
		for _, existing := range st.consultations {
			if existing.AppointmentID == c.AppointmentID {
				return &repository.DuplicateError{Constraint: repository.ConstraintConsultation}
			}
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.CreatedAt = now
		st.consultations[c.ID] = *c
		return nil
	})
}

func (r *consultationRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*model.Consultation, error) {
	var out *model.Consultation
	err := r.do(ctx, "consultations.GetByAppointmentID", func(st *state, _ time.Time) error {
		for _, c := range st.consultations {
			if c.AppointmentID == appointmentID {
				c := c
				out = &c
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *consultationRepository) CreatePrescription(ctx context.Context, p *model.Prescription) error {
	return r.do(ctx, "consultations.CreatePrescription", func(st *state, now time.Time) error {
		if _, ok := st.consultations[p.ConsultationID]; !ok {
			return ErrForeignKey
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = now
		st.prescriptions[p.ID] = *p
		return nil
	})
}

func (r *consultationRepository) CreatePrescriptionItem(ctx context.Context, item *model.PrescriptionItem) error {
	return r.do(ctx, "consultations.CreatePrescriptionItem", func(st *state, _ time.Time) error {
		if _, ok := st.prescriptions[item.PrescriptionID]; !ok {
			return ErrForeignKey
		}
		if !catalogHasID(st, model.CatalogMedicine, item.MedicineID) {
			return ErrForeignKey
		}
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		st.items[item.ID] = *item
		return nil
	})
}

func (r *consultationRepository) CreateLabRequest(ctx context.Context, lr *model.LabRequest) error {
	return r.do(ctx, "consultations.CreateLabRequest", func(st *state, now time.Time) error {
		if _, ok := st.consultations[lr.ConsultationID]; !ok {
			return ErrForeignKey
		}
		if !catalogHasID(st, model.CatalogLabTest, lr.LabTestID) {
			return ErrForeignKey
		}
		if lr.ID == uuid.Nil {
			lr.ID = uuid.New()
		}
		lr.CreatedAt = now
		st.labRequests[lr.ID] = *lr
		return nil
	})
}

func (r *consultationRepository) GetPrescriptionForUpdate(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var out *model.Prescription
	err := r.do(ctx, "consultations.GetPrescriptionForUpdate", func(st *state, _ time.Time) error {
		p, ok := st.prescriptions[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *consultationRepository) MarkDispensed(ctx context.Context, id, dispensedBy uuid.UUID, at time.Time) error {
	return r.do(ctx, "consultations.MarkDispensed", func(st *state, _ time.Time) error {
		p, ok := st.prescriptions[id]
		if !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.identities[dispensedBy]; !ok {
			return ErrForeignKey
		}
		by := dispensedBy
		p.Dispensed = true
		p.DispensedByID = &by
		p.DispensedAt = &at
		st.prescriptions[id] = p
		return nil
	})
}

func (r *consultationRepository) GetLabRequestForUpdate(ctx context.Context, id uuid.UUID) (*model.LabRequest, error) {
	var out *model.LabRequest
	err := r.do(ctx, "consultations.GetLabRequestForUpdate", func(st *state, _ time.Time) error {
		lr, ok := st.labRequests[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &lr
		return nil
	})
	return out, err
}

func (r *consultationRepository) CompleteLabRequest(ctx context.Context, id, technicianID uuid.UUID, result []byte, at time.Time) error {
	return r.do(ctx, "consultations.CompleteLabRequest", func(st *state, _ time.Time) error {
		lr, ok := st.labRequests[id]
		if !ok {
			return repository.ErrNotFound
		}
		if _, ok := st.identities[technicianID]; !ok {
			return ErrForeignKey
		}
		tech := technicianID
		raw := json.RawMessage(append([]byte(nil), result...))
		lr.Status = model.LabRequestStatusCompleted
		lr.Result = &raw
		lr.TechnicianID = &tech
		lr.CompletedAt = &at
		st.labRequests[id] = lr
		return nil
	})
}

func (r *consultationRepository) ListIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.do(ctx, "consultations.ListIDsByAppointments", func(st *state, _ time.Time) error {
		set := idSet(appointmentIDs)
		for id, c := range st.consultations {
			if set[c.AppointmentID] {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r *consultationRepository) ListPrescriptionIDs(ctx context.Context, consultationIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.do(ctx, "consultations.ListPrescriptionIDs", func(st *state, _ time.Time) error {
		set := idSet(consultationIDs)
		for id, p := range st.prescriptions {
			if set[p.ConsultationID] {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r *consultationRepository) DeletePrescriptionItems(ctx context.Context, prescriptionIDs []uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "consultations.DeletePrescriptionItems", func(st *state, _ time.Time) error {
		set := idSet(prescriptionIDs)
		for id, item := range st.items {
			if set[item.PrescriptionID] {
				delete(st.items, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *consultationRepository) DeletePrescriptions(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "consultations.DeletePrescriptions", func(st *state, _ time.Time) error {
		set := idSet(ids)
		for _, item := range st.items {
			if set[item.PrescriptionID] {
				return ErrForeignKey
			}
		}
		for _, id := range ids {
			if _, ok := st.prescriptions[id]; ok {
				delete(st.prescriptions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *consultationRepository) DeleteLabRequests(ctx context.Context, consultationIDs []uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "consultations.DeleteLabRequests", func(st *state, _ time.Time) error {
		set := idSet(consultationIDs)
		for id, lr := range st.labRequests {
			if set[lr.ConsultationID] {
				delete(st.labRequests, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *consultationRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "consultations.DeleteByIDs", func(st *state, _ time.Time) error {
		set := idSet(ids)
		for _, p := range st.prescriptions {
			if set[p.ConsultationID] {
				return ErrForeignKey
			}
		}
		for _, lr := range st.labRequests {
			if set[lr.ConsultationID] {
				return ErrForeignKey
			}
		}
		for _, id := range ids {
			if _, ok := st.consultations[id]; ok {
				delete(st.consultations, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *consultationRepository) ClearDispensedBy(ctx context.Context, identityID uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "consultations.ClearDispensedBy", func(st *state, _ time.Time) error {
		for id, p := range st.prescriptions {
			if p.DispensedByID != nil && *p.DispensedByID == identityID {
				p.DispensedByID = nil
				st.prescriptions[id] = p
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *consultationRepository) ClearTechnician(ctx context.Context, identityID uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "consultations.ClearTechnician", func(st *state, _ time.Time) error {
		for id, lr := range st.labRequests {
			if lr.TechnicianID != nil && *lr.TechnicianID == identityID {
				lr.TechnicianID = nil
				st.labRequests[id] = lr
				n++
			}
		}
		return nil
	})
	return n, err
}
