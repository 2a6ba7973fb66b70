// Package servicetest provides fixtures shared by the service tests.
package servicetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

// SMS is a message captured by Notifier.
type SMS struct {
	Phone   string
	Message string
}

// Notifier records messages instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	sent []SMS
}

func (n *Notifier) Notify(_ context.Context, phone, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SMS{Phone: phone, Message: message})
}

func (n *Notifier) Sent() []SMS {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SMS(nil), n.sent...)
}

// CreateStaff inserts a staff identity with the given role.
func CreateStaff(t *testing.T, store repository.Store, role model.Role, name string) *model.Identity {
	t.Helper()
	code := name
	identity := &model.Identity{Name: name, Role: role, DisplayCode: &code}
	require.NoError(t, store.Identities().Create(context.Background(), identity))
	return identity
}

// CreatePatient inserts a complete patient identity.
func CreatePatient(t *testing.T, store repository.Store, phone, name string) *model.Identity {
	t.Helper()
	age, sex, p := 30, "F", phone
	identity := &model.Identity{Name: name, Role: model.RolePatient, Phone: &p, Age: &age, Sex: &sex}
	require.NoError(t, store.Identities().Create(context.Background(), identity))
	return identity
}
