package memory

import (
	"context"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type verificationCodeRepository struct {
	*repos
}

func (r *verificationCodeRepository) Upsert(ctx context.Context, code *model.VerificationCode) error {
	return r.do(ctx, "codes.Upsert", func(st *state, now time.Time) error {
		if code.CreatedAt.IsZero() {
			code.CreatedAt = now
		}
		st.codes[code.Phone] = *code
		return nil
	})
}

func (r *verificationCodeRepository) GetForUpdate(ctx context.Context, phone string) (*model.VerificationCode, error) {
	var out *model.VerificationCode
	err := r.do(ctx, "codes.GetForUpdate", func(st *state, _ time.Time) error {
		code, ok := st.codes[phone]
		if !ok {
			return repository.ErrNotFound
		}
		out = &code
		return nil
	})
	return out, err
}

func (r *verificationCodeRepository) Delete(ctx context.Context, phone string) (int64, error) {
	var n int64
	err := r.do(ctx, "codes.Delete", func(st *state, _ time.Time) error {
		if _, ok := st.codes[phone]; ok {
			delete(st.codes, phone)
			n = 1
		}
		return nil
	})
	return n, err
}

func (r *verificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.do(ctx, "codes.DeleteExpired", func(st *state, _ time.Time) error {
		for phone, code := range st.codes {
			if code.Expired(now) {
				delete(st.codes, phone)
				n++
			}
		}
		return nil
	})
	return n, err
}
