// Package identity resolves patients by phone number, issues and verifies
// one time codes, and authenticates staff.
package identity

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

const (
	defaultOTPTTL         = 5 * time.Minute
	defaultMaxOTPAttempts = 5
	defaultResendInterval = 30 * time.Second
)

var errInvalidCredentials = errors.NewUnauthorized("invalid display code or passcode", nil)

type Config struct {
	OTPTTL         time.Duration
	ResendInterval time.Duration
	// MaxAttempts is the number of wrong codes accepted before the live code
	// is discarded.
	MaxAttempts int
}

type Service struct {
	store    repository.Store
	codes    security.CodeGenerator
	hasher   security.PasswordHasher
	tokens   auth.JWTService
	notifier notification.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
	cfg      Config

	// cooldown holds phones that were sent a code within ResendInterval.
	cooldown *cache.Cache
	// attempts counts wrong codes per phone for the life of a code.
	attempts *cache.Cache
	now      func() time.Time
}

func NewService(
	store repository.Store,
	codes security.CodeGenerator,
	hasher security.PasswordHasher,
	tokens auth.JWTService,
	notifier notification.Service,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = defaultOTPTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxOTPAttempts
	}
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = defaultResendInterval
	}
	return &Service{
		store:    store,
		codes:    codes,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		cfg:      cfg,
		cooldown: cache.New(cfg.ResendInterval, time.Minute),
		attempts: cache.New(cfg.OTPTTL, time.Minute),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StaffLogin checks a display code and passcode pair.
func (s *Service) StaffLogin(ctx context.Context, displayCode, passcode string) (*model.AuthResult, error) {
	identity, err := s.store.Identities().GetByDisplayCode(ctx, strings.TrimSpace(displayCode))
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, service.StoreError(err, "identity")
	}
	if !identity.Role.IsStaff() || identity.PasscodeHash == nil {
		return nil, errInvalidCredentials
	}
	if err := s.hasher.Compare(*identity.PasscodeHash, passcode); err != nil {
		logger.FromContext(ctx, s.logger).Warn("staff login rejected", "identity_id", identity.ID)
		return nil, errInvalidCredentials
	}
	return s.authenticate(identity)
}

// GetIdentity returns the identity behind an access token.
func (s *Service) GetIdentity(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	identity, err := s.store.Identities().GetByID(ctx, id)
	if err != nil {
		return nil, service.StoreError(err, "identity")
	}
	return identity, nil
}

func (s *Service) authenticate(identity *model.Identity) (*model.AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateAccessToken(identity)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return &model.AuthResult{
		Identity:    identity,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}
