package identity

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

// ResolvePatient returns the single PATIENT identity holding phone, creating
// it from details when none exists. An incomplete identity is filled in from
// details the first time they are supplied; a complete one is never
// overwritten. It must run inside tx so the identity and whatever the caller
// writes next commit together.
func (s *Service) ResolvePatient(ctx context.Context, tx repository.Tx, phone string, details *model.PersonDetails) (*model.Identity, error) {
	if !validator.IsPhone(phone) {
		return nil, errors.BadRequest("phone must be exactly 10 digits", nil)
	}
	if details != nil {
		normalized, err := normalizeDetails(*details)
		if err != nil {
			return nil, err
		}
		details = &normalized
	}

	patient, err := tx.Identities().GetPatientByPhoneForUpdate(ctx, phone)
	if stderrors.Is(err, repository.ErrNotFound) {
		candidate := newPatient(phone, details)
		created, createErr := tx.Identities().CreatePatientIfAbsent(ctx, candidate)
		if createErr != nil {
			return nil, fmt.Errorf("failed to create patient: %w", createErr)
		}
		if created {
			return candidate, nil
		}
		// Another transaction created it first.
		patient, err = tx.Identities().GetPatientByPhoneForUpdate(ctx, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up patient: %w", err)
	}

	if details != nil {
		if err := s.Backfill(ctx, tx, patient, *details); err != nil {
			return nil, err
		}
	}
	return patient, nil
}

// Backfill completes an incomplete identity with details. Complete identities
// are left untouched.
func (s *Service) Backfill(ctx context.Context, tx repository.Tx, identity *model.Identity, details model.PersonDetails) error {
	if !identity.IsIncomplete() {
		return nil
	}
	details, err := normalizeDetails(details)
	if err != nil {
		return err
	}
	if err := tx.Identities().UpdateProfile(ctx, identity.ID, details); err != nil {
		return fmt.Errorf("failed to complete patient profile: %w", err)
	}
	sex := details.Sex
	age := *details.Age
	identity.Name = details.Name
	identity.Age = &age
	identity.Sex = &sex
	return nil
}

func normalizeDetails(details model.PersonDetails) (model.PersonDetails, error) {
	details.Name = strings.TrimSpace(details.Name)
	details.Sex = strings.ToUpper(strings.TrimSpace(details.Sex))
	if err := validator.Struct(details); err != nil {
		return details, errors.BadRequest(validator.Describe(err), err)
	}
	return details, nil
}

func newPatient(phone string, details *model.PersonDetails) *model.Identity {
	p := phone
	patient := &model.Identity{
		Name:  model.PlaceholderPatientName,
		Role:  model.RolePatient,
		Phone: &p,
	}
	if details != nil {
		sex := details.Sex
		age := *details.Age
		patient.Name = details.Name
		patient.Age = &age
		patient.Sex = &sex
	}
	return patient
}
