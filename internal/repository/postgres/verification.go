package postgres

import (
	"context"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
)

type verificationCodeRepository struct {
	BaseRepository
}

func (r *verificationCodeRepository) Upsert(ctx context.Context, code *model.VerificationCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO verification_codes (phone, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE
		SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
	`
	_, err := r.exec(ctx, query, code.Phone, code.Code, code.ExpiresAt, code.CreatedAt)
	return err
}

func (r *verificationCodeRepository) GetForUpdate(ctx context.Context, phone string) (*model.VerificationCode, error) {
	var code model.VerificationCode
	query := `
		SELECT phone, code, expires_at, created_at
		FROM verification_codes
		WHERE phone = $1
		FOR UPDATE
	`
	if err := r.get(ctx, &code, query, phone); err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *verificationCodeRepository) Delete(ctx context.Context, phone string) (int64, error) {
	return r.exec(ctx, `DELETE FROM verification_codes WHERE phone = $1`, phone)
}

func (r *verificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM verification_codes WHERE expires_at <= $1`, now)
}
