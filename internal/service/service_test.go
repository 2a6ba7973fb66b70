package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/errors"
)

func TestStoreError(t *testing.T) {
	assert.NoError(t, StoreError(nil, "x"))

	err := StoreError(fmt.Errorf("get: %w", repository.ErrNotFound), "appointment")
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	assert.Equal(t, "appointment not found", err.(*errors.AppError).Message)

	err = StoreError(fmt.Errorf("%w: lock timeout", repository.ErrTransient), "appointment")
	assert.True(t, errors.HasCode(err, errors.ErrUnavailable))

	err = StoreError(context.DeadlineExceeded, "appointment")
	assert.True(t, errors.HasCode(err, errors.ErrUnavailable))

	conflict := errors.Conflict("taken", nil)
	assert.Same(t, conflict, StoreError(conflict, "appointment"))

	err = StoreError(fmt.Errorf("boom"), "appointment")
	assert.True(t, errors.HasCode(err, errors.ErrInternal))
}
