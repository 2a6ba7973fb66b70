package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type identityRepository struct {
	*repos
}

func checkIdentityUnique(st *state, in model.Identity) error {
	for _, existing := range st.identities {
		if existing.ID == in.ID {
			return &repository.DuplicateError{Constraint: "identities_pkey"}
		}
		if in.DisplayCode != nil && existing.DisplayCode != nil && *existing.DisplayCode == *in.DisplayCode {
			return &repository.DuplicateError{Constraint: repository.ConstraintDisplayCode}
		}
		if in.Role == model.RolePatient && existing.Role == model.RolePatient &&
			in.Phone != nil && existing.Phone != nil && *existing.Phone == *in.Phone {
			return &repository.DuplicateError{Constraint: repository.ConstraintPatientPhone}
		}
		if in.IsRoot && existing.IsRoot {
			return &repository.DuplicateError{Constraint: repository.ConstraintRootIdentity}
		}
	}
	return nil
}

func (r *identityRepository) Create(ctx context.Context, identity *model.Identity) error {
	return r.do(ctx, "identities.Create", func(st *state, now time.Time) error {
		if identity.ID == uuid.Nil {
			identity.ID = uuid.New()
		}
		identity.CreatedAt = now
		identity.UpdatedAt = now
		if err := checkIdentityUnique(st, *identity); err != nil {
			return err
		}
		st.identities[identity.ID] = *identity
		return nil
	})
}

func (r *identityRepository) CreatePatientIfAbsent(ctx context.Context, identity *model.Identity) (bool, error) {
	created := false
	err := r.do(ctx, "identities.CreatePatientIfAbsent", func(st *state, now time.Time) error {
		identity.Role = model.RolePatient
		if identity.ID == uuid.Nil {
			identity.ID = uuid.New()
		}
		identity.CreatedAt = now
		identity.UpdatedAt = now
		if err := checkIdentityUnique(st, *identity); err != nil {
			if repository.IsDuplicate(err, repository.ConstraintPatientPhone) {
				return nil
			}
			return err
		}
		st.identities[identity.ID] = *identity
		created = true
		return nil
	})
	return created, err
}

func (r *identityRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	var out *model.Identity
	err := r.do(ctx, "identities.GetByID", func(st *state, _ time.Time) error {
		identity, ok := st.identities[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &identity
		return nil
	})
	return out, err
}

func (r *identityRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	return r.GetByID(ctx, id)
}

func (r *identityRepository) GetPatientByPhone(ctx context.Context, phone string) (*model.Identity, error) {
	var out *model.Identity
	err := r.do(ctx, "identities.GetPatientByPhone", func(st *state, _ time.Time) error {
		for _, identity := range st.identities {
			if identity.Role == model.RolePatient && identity.Phone != nil && *identity.Phone == phone {
				identity := identity
				out = &identity
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *identityRepository) GetPatientByPhoneForUpdate(ctx context.Context, phone string) (*model.Identity, error) {
	return r.GetPatientByPhone(ctx, phone)
}

func (r *identityRepository) GetByDisplayCode(ctx context.Context, code string) (*model.Identity, error) {
	var out *model.Identity
	err := r.do(ctx, "identities.GetByDisplayCode", func(st *state, _ time.Time) error {
		for _, identity := range st.identities {
			if identity.DisplayCode != nil && *identity.DisplayCode == code {
				identity := identity
				out = &identity
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *identityRepository) UpdateProfile(ctx context.Context, id uuid.UUID, details model.PersonDetails) error {
	return r.do(ctx, "identities.UpdateProfile", func(st *state, now time.Time) error {
		identity, ok := st.identities[id]
		if !ok {
			return repository.ErrNotFound
		}
		sex := details.Sex
		identity.Name = details.Name
		identity.Age = copyInt(details.Age)
		identity.Sex = &sex
		identity.UpdatedAt = now
		st.identities[id] = identity
		return nil
	})
}

func (r *identityRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := r.do(ctx, "identities.Delete", func(st *state, _ time.Time) error {
		if _, ok := st.identities[id]; !ok {
			return nil
		}
		for _, a := range st.appointments {
			if a.DoctorID == id || a.PatientID == id {
				return ErrForeignKey
			}
		}
		for _, p := range st.prescriptions {
			if p.DispensedByID != nil && *p.DispensedByID == id {
				return ErrForeignKey
			}
		}
		for _, lr := range st.labRequests {
			if lr.TechnicianID != nil && *lr.TechnicianID == id {
				return ErrForeignKey
			}
		}
		delete(st.identities, id)
		n = 1
		return nil
	})
	return n, err
}

func (r *identityRepository) HasRoot(ctx context.Context) (bool, error) {
	found := false
	err := r.do(ctx, "identities.HasRoot", func(st *state, _ time.Time) error {
		for _, identity := range st.identities {
			if identity.IsRoot {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
