package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type appointmentRepository struct {
	*repos
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameSlot(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// checkToken enforces ux_appointments_token.
func checkToken(st *state, in model.Appointment) error {
	if in.Status == model.AppointmentStatusCancelled || in.TokenNumber == nil || in.Slot == nil {
		return nil
	}
	for _, existing := range st.appointments {
		if existing.ID == in.ID || existing.Status == model.AppointmentStatusCancelled || existing.TokenNumber == nil {
			continue
		}
		if existing.DoctorID == in.DoctorID && sameDay(existing.Date, in.Date) &&
			sameSlot(existing.Slot, in.Slot) && *existing.TokenNumber == *in.TokenNumber {
			return &repository.DuplicateError{Constraint: repository.ConstraintAppointmentToken}
		}
	}
	return nil
}

func (r *appointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	return r.do(ctx, "appointments.Create", func(st *state, now time.Time) error {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if _, ok := st.identities[a.DoctorID]; !ok {
			return ErrForeignKey
		}
		if _, ok := st.identities[a.PatientID]; !ok {
			return ErrForeignKey
		}
		a.Date = model.TruncateDay(a.Date, nil)
		a.CreatedAt = now
		a.UpdatedAt = now
		if err := checkToken(st, *a); err != nil {
			return err
		}
		st.appointments[a.ID] = *a
		return nil
	})
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var out *model.Appointment
	err := r.do(ctx, "appointments.GetByID", func(st *state, _ time.Time) error {
		a, ok := st.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *appointmentRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r *appointmentRepository) MaxToken(ctx context.Context, doctorID uuid.UUID, date time.Time, slot string) (int, error) {
	highest := 0
	err := r.do(ctx, "appointments.MaxToken", func(st *state, _ time.Time) error {
		for _, a := range st.appointments {
			if a.DoctorID != doctorID || !sameDay(a.Date, date) || a.Slot == nil || *a.Slot != slot {
				continue
			}
			if a.TokenNumber != nil && *a.TokenNumber > highest {
				highest = *a.TokenNumber
			}
		}
		return nil
	})
	return highest, err
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	return r.do(ctx, "appointments.UpdateStatus", func(st *state, now time.Time) error {
		a, ok := st.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		a.Status = status
		a.UpdatedAt = now
		if err := checkToken(st, a); err != nil {
			return err
		}
		st.appointments[id] = a
		return nil
	})
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	out := []*model.Appointment{}
	err := r.do(ctx, "appointments.List", func(st *state, _ time.Time) error {
		for _, a := range st.appointments {
			if filters != nil {
				if filters.DoctorID != uuid.Nil && a.DoctorID != filters.DoctorID {
					continue
				}
				if filters.PatientID != uuid.Nil && a.PatientID != filters.PatientID {
					continue
				}
				if filters.Date != nil && !sameDay(a.Date, *filters.Date) {
					continue
				}
				if filters.Status != "" && a.Status != filters.Status {
					continue
				}
			}
			a := a
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if sa, sb := deref(a.Slot), deref(b.Slot); sa != sb {
			return sa < sb
		}
		if (a.TokenNumber == nil) != (b.TokenNumber == nil) {
			return a.TokenNumber != nil
		}
		if a.TokenNumber != nil && *a.TokenNumber != *b.TokenNumber {
			return *a.TokenNumber < *b.TokenNumber
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

func (r *appointmentRepository) ListIDsByParticipant(ctx context.Context, identityID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.do(ctx, "appointments.ListIDsByParticipant", func(st *state, _ time.Time) error {
		for id, a := range st.appointments {
			if a.DoctorID == identityID || a.PatientID == identityID {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sortIDs(ids)
	return ids, err
}

func (r *appointmentRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "appointments.DeleteByIDs", func(st *state, _ time.Time) error {
		set := idSet(ids)
		for _, c := range st.consultations {
			if set[c.AppointmentID] {
				return ErrForeignKey
			}
		}
		for _, id := range ids {
			if _, ok := st.appointments[id]; ok {
				delete(st.appointments, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func idSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
