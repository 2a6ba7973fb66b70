package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

const identityColumns = `id, display_code, name, role, phone, age, sex, passcode_hash,
	specialization, is_root, created_at, updated_at`

type identityRepository struct {
	BaseRepository
}

func (r *identityRepository) Create(ctx context.Context, identity *model.Identity) error {
	stampIdentity(identity)
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.exec(ctx, query, identityArgs(identity)...)
	return err
}

func (r *identityRepository) CreatePatientIfAbsent(ctx context.Context, identity *model.Identity) (bool, error) {
	identity.Role = model.RolePatient
	stampIdentity(identity)
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (phone) WHERE role = 'PATIENT' DO NOTHING
	`
	n, err := r.exec(ctx, query, identityArgs(identity)...)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *identityRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	var identity model.Identity
	err := r.get(ctx, &identity, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *identityRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	var identity model.Identity
	err := r.get(ctx, &identity, `SELECT `+identityColumns+` FROM identities WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *identityRepository) GetPatientByPhone(ctx context.Context, phone string) (*model.Identity, error) {
	var identity model.Identity
	query := `SELECT ` + identityColumns + ` FROM identities WHERE phone = $1 AND role = 'PATIENT'`
	if err := r.get(ctx, &identity, query, phone); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *identityRepository) GetPatientByPhoneForUpdate(ctx context.Context, phone string) (*model.Identity, error) {
	var identity model.Identity
	query := `SELECT ` + identityColumns + ` FROM identities WHERE phone = $1 AND role = 'PATIENT' FOR UPDATE`
	if err := r.get(ctx, &identity, query, phone); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *identityRepository) GetByDisplayCode(ctx context.Context, code string) (*model.Identity, error) {
	var identity model.Identity
	query := `SELECT ` + identityColumns + ` FROM identities WHERE display_code = $1`
	if err := r.get(ctx, &identity, query, code); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *identityRepository) UpdateProfile(ctx context.Context, id uuid.UUID, details model.PersonDetails) error {
	query := `
		UPDATE identities
		SET name = $1, age = $2, sex = $3, updated_at = NOW()
		WHERE id = $4
	`
	return r.execOne(ctx, query, details.Name, details.Age, details.Sex, id)
}

func (r *identityRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	return r.exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
}

func (r *identityRepository) HasRoot(ctx context.Context) (bool, error) {
	var exists bool
	err := r.get(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM identities WHERE is_root)`)
	return exists, err
}

func stampIdentity(identity *model.Identity) {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now
}

func identityArgs(i *model.Identity) []interface{} {
	return []interface{}{
		i.ID, i.DisplayCode, i.Name, i.Role, i.Phone, i.Age, i.Sex, i.PasscodeHash,
		i.Specialization, i.IsRoot, i.CreatedAt, i.UpdatedAt,
	}
}
