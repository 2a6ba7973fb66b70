// Package memory is an in-process repository.Store used by tests and local
// runs. Transactions are serialized and work on a copy of the state that is
// swapped in on commit. Unique indexes and foreign keys of the Postgres schema
// are enforced.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

// ErrForeignKey is returned when a write would leave a dangling reference.
var ErrForeignKey = errors.New("foreign key violation")

type state struct {
	identities    map[uuid.UUID]model.Identity
	appointments  map[uuid.UUID]model.Appointment
	consultations map[uuid.UUID]model.Consultation
	prescriptions map[uuid.UUID]model.Prescription
	items         map[uuid.UUID]model.PrescriptionItem
	labRequests   map[uuid.UUID]model.LabRequest
	catalog       map[model.CatalogKind]map[string]model.CatalogEntry
	codes         map[string]model.VerificationCode
	outbox        map[uuid.UUID]model.OutboxEvent
}

func newState() *state {
	return &state{
		identities:    map[uuid.UUID]model.Identity{},
		appointments:  map[uuid.UUID]model.Appointment{},
		consultations: map[uuid.UUID]model.Consultation{},
		prescriptions: map[uuid.UUID]model.Prescription{},
		items:         map[uuid.UUID]model.PrescriptionItem{},
		labRequests:   map[uuid.UUID]model.LabRequest{},
		catalog: map[model.CatalogKind]map[string]model.CatalogEntry{
			model.CatalogMedicine: {},
			model.CatalogLabTest:  {},
		},
		codes:  map[string]model.VerificationCode{},
		outbox: map[uuid.UUID]model.OutboxEvent{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		identities:    copyMap(s.identities),
		appointments:  copyMap(s.appointments),
		consultations: copyMap(s.consultations),
		prescriptions: copyMap(s.prescriptions),
		items:         copyMap(s.items),
		labRequests:   copyMap(s.labRequests),
		catalog: map[model.CatalogKind]map[string]model.CatalogEntry{
			model.CatalogMedicine: copyMap(s.catalog[model.CatalogMedicine]),
			model.CatalogLabTest:  copyMap(s.catalog[model.CatalogLabTest]),
		},
		codes:  copyMap(s.codes),
		outbox: copyMap(s.outbox),
	}
}

// Store implements repository.Store in memory.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	faultMu sync.Mutex
	faults  map[string]error
}

func New() *Store {
	return &Store{
		st:     newState(),
		now:    func() time.Time { return time.Now().UTC() },
		faults: map[string]error{},
	}
}

var _ repository.Store = (*Store)(nil)

// SetClock overrides the time source used for timestamps and expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InjectFault makes the next call of op (e.g. "consultations.CreateLabRequest")
// fail with err.
func (s *Store) InjectFault(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrTransient, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A panic or error leaves work unreferenced, which is the rollback.
	work := s.st.clone()
	if err := fn(&repos{store: s, tx: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Identities() repository.IdentityRepository {
	return &identityRepository{&repos{store: s}}
}

func (s *Store) Appointments() repository.AppointmentRepository {
	return &appointmentRepository{&repos{store: s}}
}

func (s *Store) Consultations() repository.ConsultationRepository {
	return &consultationRepository{&repos{store: s}}
}

func (s *Store) Catalog() repository.CatalogRepository {
	return &catalogRepository{&repos{store: s}}
}

func (s *Store) VerificationCodes() repository.VerificationCodeRepository {
	return &verificationCodeRepository{&repos{store: s}}
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{&repos{store: s}}
}

// repos runs against the transaction state when tx is set, otherwise
// against the committed state under the store lock.
type repos struct {
	store *Store
	tx    *state
}

func (r *repos) Identities() repository.IdentityRepository { return &identityRepository{r} }

func (r *repos) Appointments() repository.AppointmentRepository { return &appointmentRepository{r} }

func (r *repos) Consultations() repository.ConsultationRepository {
	return &consultationRepository{r}
}

func (r *repos) Catalog() repository.CatalogRepository { return &catalogRepository{r} }

func (r *repos) VerificationCodes() repository.VerificationCodeRepository {
	return &verificationCodeRepository{r}
}

func (r *repos) Outbox() repository.OutboxRepository { return &outboxRepository{r} }

func (r *repos) do(ctx context.Context, op string, fn func(st *state, now time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrTransient, err)
	}
	if err := r.store.fault(op); err != nil {
		return err
	}
	if r.tx != nil {
		return fn(r.tx, r.store.now())
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.st, r.store.now())
}
