package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-secret", "clinic-api", time.Hour)
	identity := &model.Identity{Base: model.Base{ID: uuid.New()}, Role: model.RoleDoctor}

	token, exp, err := svc.GenerateAccessToken(identity)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, claims.IdentityID)
	assert.Equal(t, model.RoleDoctor, claims.Role)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("test-secret", "clinic-api", time.Hour)
	identity := &model.Identity{Base: model.Base{ID: uuid.New()}, Role: model.RolePatient}

	other := NewJWTService("other-secret", "clinic-api", time.Hour)
	foreign, _, err := other.GenerateAccessToken(identity)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expiredSvc := NewJWTService("test-secret", "clinic-api", time.Hour).(*jwtService)
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredSvc.GenerateAccessToken(identity)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
