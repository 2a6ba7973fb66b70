// Package staff provisions staff identities and removes them together with
// every record that would otherwise dangle.
package staff

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

var errDisplayCodeTaken = errors.Conflict("display code already in use", nil)

type Service struct {
	store   repository.Store
	hasher  security.PasswordHasher
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(store repository.Store, hasher security.PasswordHasher, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, hasher: hasher, logger: log, metrics: m}
}

// Create provisions a staff identity with a hashed passcode.
func (s *Service) Create(ctx context.Context, req model.CreateStaffRequest) (*model.Identity, error) {
	identity, err := s.newStaff(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Identities().Create(ctx, identity); err != nil {
		if repository.IsDuplicate(err, repository.ConstraintDisplayCode) {
			return nil, errDisplayCodeTaken
		}
		return nil, service.StoreError(err, "identity")
	}
	logger.FromContext(ctx, s.logger).Info("staff created",
		"identity_id", identity.ID, "role", identity.Role)
	return identity, nil
}

// BootstrapAdmin creates the root administrator. There can only be one.
func (s *Service) BootstrapAdmin(ctx context.Context, name, displayCode, passcode string) (*model.Identity, error) {
	identity, err := s.newStaff(model.CreateStaffRequest{
		Name:        name,
		Role:        model.RoleAdmin,
		DisplayCode: displayCode,
		Passcode:    passcode,
	})
	if err != nil {
		return nil, err
	}
	identity.IsRoot = true

	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		exists, err := tx.Identities().HasRoot(ctx)
		if err != nil {
			return err
		}
		if exists {
			return errors.Conflict("root administrator already exists", nil)
		}
		return tx.Identities().Create(ctx, identity)
	})
	switch {
	case repository.IsDuplicate(err, repository.ConstraintRootIdentity):
		return nil, errors.Conflict("root administrator already exists", err)
	case repository.IsDuplicate(err, repository.ConstraintDisplayCode):
		return nil, errDisplayCodeTaken
	case err != nil:
		return nil, service.StoreError(err, "identity")
	}
	return identity, nil
}

func (s *Service) newStaff(req model.CreateStaffRequest) (*model.Identity, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.DisplayCode = strings.TrimSpace(req.DisplayCode)
	if err := validator.Struct(req); err != nil {
		return nil, errors.BadRequest(validator.Describe(err), err)
	}
	if !req.Role.IsStaff() {
		return nil, errors.BadRequest("role must be a staff role", nil)
	}

	hash, err := s.hasher.Hash(req.Passcode)
	if stderrors.Is(err, security.ErrPasscodeTooShort) {
		return nil, errors.BadRequest(fmt.Sprintf("passcode must be at least %d characters", security.MinPasscodeLen), err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}

	code := req.DisplayCode
	return &model.Identity{
		Name:           req.Name,
		Role:           req.Role,
		DisplayCode:    &code,
		Phone:          req.Phone,
		Specialization: req.Specialization,
		PasscodeHash:   &hash,
	}, nil
}

// Delete removes a staff identity. Everything hanging off the appointments it
// took part in goes with it; pharmacy and lab records it merely touched keep
// their rows with the reference cleared. The whole cascade is one transaction.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.CascadeReport, error) {
	if id == actor.ID {
		return nil, errors.Forbidden("staff cannot delete their own identity")
	}

	var report *model.CascadeReport
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		identity, err := tx.Identities().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !identity.Role.IsStaff() {
			return errors.BadRequest("identity is not a staff member", nil)
		}
		if identity.IsRoot {
			return errors.Forbidden("the root administrator cannot be deleted")
		}

		report, err = cascade(ctx, tx, id)
		if err != nil {
			return err
		}
		return service.WriteEvent(ctx, tx, model.EventStaffDeleted, report)
	})
	if err != nil {
		s.metrics.StaffDeletions.WithLabelValues("error").Inc()
		return nil, service.StoreError(err, "staff member")
	}

	s.metrics.StaffDeletions.WithLabelValues("ok").Inc()
	logger.FromContext(ctx, s.logger).Info("staff deleted",
		"identity_id", id,
		"actor_id", actor.ID,
		"appointments", report.Appointments,
		"consultations", report.Consultations,
		"dispensed_refs_cleared", report.DispensedRefsCleared,
		"technician_refs_cleared", report.TechnicianRefsCleared,
	)
	return report, nil
}
