package identity

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/security"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

var errInvalidCode = errors.NewUnauthorized("invalid or expired verification code", nil)

// IssueOTP stores a fresh code for phone, replacing any live one, and sends
// it by SMS. The SMS is best effort; the stored code is valid either way.
func (s *Service) IssueOTP(ctx context.Context, phone string) (*model.VerificationCode, error) {
	if !validator.IsPhone(phone) {
		return nil, errors.BadRequest("phone must be exactly 10 digits", nil)
	}
	if s.cfg.ResendInterval > 0 {
		if err := s.cooldown.Add(phone, struct{}{}, s.cfg.ResendInterval); err != nil {
			s.metrics.OTPRequests.WithLabelValues("issue", "throttled").Inc()
			return nil, errors.TooManyRequests("a code was sent recently, please wait before requesting another")
		}
	}

	code, err := s.codes.Generate()
	if err != nil {
		s.cooldown.Delete(phone)
		return nil, errors.Internal(err)
	}

	now := s.now()
	vc := &model.VerificationCode{
		Phone:     phone,
		Code:      code,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
		CreatedAt: now,
	}
	if err := s.store.VerificationCodes().Upsert(ctx, vc); err != nil {
		s.cooldown.Delete(phone)
		s.metrics.OTPRequests.WithLabelValues("issue", "error").Inc()
		return nil, service.StoreError(err, "verification code")
	}
	s.attempts.Delete(phone)
	s.metrics.OTPRequests.WithLabelValues("issue", "ok").Inc()

	s.notifier.Notify(ctx, phone, fmt.Sprintf("%s is your clinic verification code. It expires in %s.", code, humanDuration(s.cfg.OTPTTL)))
	return vc, nil
}

// VerifyOTP consumes a live code and returns the patient identity for phone,
// creating a minimal one on first login. An expired or wrong code changes
// nothing except the failed attempt count.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (*model.AuthResult, error) {
	if !validator.IsPhone(phone) {
		return nil, errors.BadRequest("phone must be exactly 10 digits", nil)
	}

	var (
		patient *model.Identity
		burned  bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		vc, err := tx.VerificationCodes().GetForUpdate(ctx, phone)
		if stderrors.Is(err, repository.ErrNotFound) {
			return errInvalidCode
		}
		if err != nil {
			return fmt.Errorf("failed to load verification code: %w", err)
		}
		if vc.Expired(s.now()) {
			return errInvalidCode
		}
		if !security.CodesEqual(vc.Code, code) {
			if !s.recordFailure(phone) {
				return errInvalidCode
			}
			// Out of attempts: discard the code and commit that.
			burned = true
			_, err := tx.VerificationCodes().Delete(ctx, phone)
			return err
		}

		if _, err := tx.VerificationCodes().Delete(ctx, phone); err != nil {
			return fmt.Errorf("failed to consume verification code: %w", err)
		}
		patient, err = s.ResolvePatient(ctx, tx, phone, nil)
		return err
	})

	switch {
	case err != nil:
		s.metrics.OTPRequests.WithLabelValues("verify", "rejected").Inc()
		return nil, service.StoreError(err, "verification code")
	case burned:
		s.metrics.OTPRequests.WithLabelValues("verify", "locked").Inc()
		logger.FromContext(ctx, s.logger).Warn("verification code discarded after repeated failures")
		return nil, errors.TooManyRequests("too many incorrect codes, request a new one")
	}

	s.attempts.Delete(phone)
	s.metrics.OTPRequests.WithLabelValues("verify", "ok").Inc()
	return s.authenticate(patient)
}

// recordFailure counts a wrong code and reports whether the limit is reached.
func (s *Service) recordFailure(phone string) bool {
	if err := s.attempts.Add(phone, 1, cache.DefaultExpiration); err == nil {
		return s.cfg.MaxAttempts <= 1
	}
	n, err := s.attempts.IncrementInt(phone, 1)
	if err != nil {
		return false
	}
	return n >= s.cfg.MaxAttempts
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
