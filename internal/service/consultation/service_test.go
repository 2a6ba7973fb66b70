package consultation

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/service/catalog"
	"github.com/jwalitptl/clinic-api/internal/service/servicetest"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type fixture struct {
	svc     *Service
	catalog *catalog.Service
	store   *memory.Store
	metrics *metrics.Metrics
	doctor  *model.Identity
	patient *model.Identity
	token   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	m := metrics.NewNoop()
	cat := catalog.NewService(store, m)
	return &fixture{
		svc:     NewService(store, cat, logger.Nop(), m),
		catalog: cat,
		store:   store,
		metrics: m,
		doctor:  servicetest.CreateStaff(t, store, model.RoleDoctor, "DR01"),
		patient: servicetest.CreatePatient(t, store, "9876543210", "Asha"),
	}
}

func (f *fixture) appointment(t *testing.T) *model.Appointment {
	t.Helper()
	f.token++
	slot, token := "Morning", f.token
	appt := &model.Appointment{
		DoctorID:    f.doctor.ID,
		PatientID:   f.patient.ID,
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Slot:        &slot,
		TokenNumber: &token,
		Status:      model.AppointmentStatusPending,
	}
	require.NoError(t, f.store.Appointments().Create(context.Background(), appt))
	return appt
}

func (f *fixture) doctorActor() model.Actor {
	return model.Actor{ID: f.doctor.ID, Role: model.RoleDoctor}
}

func fullRequest() model.FinalizeConsultationRequest {
	next := "2024-01-24"
	return model.FinalizeConsultationRequest{
		Diagnosis:     "Viral fever",
		Notes:         "Rest and fluids",
		NextVisitDate: &next,
		Items: []model.PrescriptionItemRequest{
			{Name: "Paracetamol", Dosage: "500mg 1-0-1", Duration: "5 days"},
			{Name: "Cetirizine", Dosage: "10mg 0-0-1", Duration: "3 days"},
		},
		LabTests: []model.LabTestRequest{{Name: "CBC"}},
	}
}

func usage(t *testing.T, store *memory.Store, kind model.CatalogKind, name string) int64 {
	t.Helper()
	entry, err := store.Catalog().GetByName(context.Background(), kind, name)
	if stderrors.Is(err, repository.ErrNotFound) {
		return 0
	}
	require.NoError(t, err)
	return entry.UsageCount
}

func TestFinalizeWritesEverything(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t)

	record, err := f.svc.Finalize(context.Background(), appt.ID, f.doctorActor(), fullRequest())
	require.NoError(t, err)
	require.NotNil(t, record.Prescription)
	assert.Len(t, record.Items, 2)
	require.Len(t, record.LabRequests, 1)
	assert.Equal(t, "CBC", record.LabRequests[0].TestName)
	assert.Equal(t, "2024-01-24", record.Consultation.NextVisitDate.Format(model.DateLayout))

	snap := f.store.Snapshot()
	assert.Len(t, snap.Consultations, 1)
	assert.Len(t, snap.Prescriptions, 1)
	assert.Len(t, snap.PrescriptionItems, 2)
	require.Len(t, snap.LabRequests, 1)
	assert.Equal(t, model.LabRequestStatusPending, snap.LabRequests[0].Status)
	require.Len(t, snap.Appointments, 1)
	assert.Equal(t, model.AppointmentStatusCompleted, snap.Appointments[0].Status)
	assert.Len(t, snap.OutboxByType(model.EventConsultationFinalized), 1)

	assert.Equal(t, int64(1), usage(t, f.store, model.CatalogMedicine, "paracetamol"))
	assert.Equal(t, int64(1), usage(t, f.store, model.CatalogLabTest, "cbc"))
}

func TestFinalizeWithoutItemsCreatesNoPrescription(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t)

	record, err := f.svc.Finalize(context.Background(), appt.ID, f.doctorActor(),
		model.FinalizeConsultationRequest{Diagnosis: "Healthy"})
	require.NoError(t, err)
	assert.Nil(t, record.Prescription)
	assert.Empty(t, f.store.Snapshot().Prescriptions)
}

func TestFinalizeTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t)

	_, err := f.svc.Finalize(context.Background(), appt.ID, f.doctorActor(), fullRequest())
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), appt.ID, f.doctorActor(), fullRequest())
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	snap := f.store.Snapshot()
	assert.Len(t, snap.Consultations, 1)
	assert.Len(t, snap.Prescriptions, 1)
	assert.Len(t, snap.PrescriptionItems, 2)
	assert.Equal(t, int64(1), usage(t, f.store, model.CatalogMedicine, "paracetamol"))
}

func TestFinalizeRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t)
	f.store.InjectFault("consultations.CreateLabRequest", stderrors.New("disk full"))

	_, err := f.svc.Finalize(context.Background(), appt.ID, f.doctorActor(), fullRequest())
	assert.True(t, errors.HasCode(err, errors.ErrInternal))

	snap := f.store.Snapshot()
	assert.Empty(t, snap.Consultations)
	assert.Empty(t, snap.Prescriptions)
	assert.Empty(t, snap.PrescriptionItems)
	assert.Empty(t, snap.Outbox)
	assert.Empty(t, snap.Catalog[model.CatalogMedicine], "counter increments roll back")
	assert.Equal(t, model.AppointmentStatusPending, snap.Appointments[0].Status)
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.CatalogUpserts.WithLabelValues("medicine")))

	// The doctor resubmits and it goes through.
	_, err = f.svc.Finalize(context.Background(), appt.ID, f.doctorActor(), fullRequest())
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.CatalogUpserts.WithLabelValues("medicine")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CatalogUpserts.WithLabelValues("labtest")))
}

func TestFinalizeConcurrentCatalogCounts(t *testing.T) {
	f := newFixture(t)
	err := f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		_, err := f.catalog.Upsert(context.Background(), tx, model.CatalogMedicine, "Paracetamol")
		return err
	})
	require.NoError(t, err)

	const m = 20
	appts := make([]*model.Appointment, m)
	for i := range appts {
		appts[i] = f.appointment(t)
	}

	var wg sync.WaitGroup
	for _, appt := range appts {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Finalize(context.Background(), id, f.doctorActor(), model.FinalizeConsultationRequest{
				Diagnosis: "Fever",
				Items:     []model.PrescriptionItemRequest{{Name: "paracetamol", Dosage: "500mg"}},
			})
			assert.NoError(t, err)
		}(appt.ID)
	}
	wg.Wait()

	assert.Equal(t, int64(1+m), usage(t, f.store, model.CatalogMedicine, "Paracetamol"))
}

func TestFinalizeRejections(t *testing.T) {
	f := newFixture(t)
	appt := f.appointment(t)
	ctx := context.Background()

	_, err := f.svc.Finalize(ctx, uuid.New(), f.doctorActor(), fullRequest())
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))

	_, err = f.svc.Finalize(ctx, appt.ID, model.Actor{ID: uuid.New(), Role: model.RoleDoctor}, fullRequest())
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	_, err = f.svc.Finalize(ctx, appt.ID, f.doctorActor(), model.FinalizeConsultationRequest{Diagnosis: "   "})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	req := fullRequest()
	req.Items = append(req.Items, model.PrescriptionItemRequest{Name: ""})
	_, err = f.svc.Finalize(ctx, appt.ID, f.doctorActor(), req)
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	require.NoError(t, f.store.Appointments().UpdateStatus(ctx, appt.ID, model.AppointmentStatusCancelled))
	_, err = f.svc.Finalize(ctx, appt.ID, f.doctorActor(), fullRequest())
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	assert.Empty(t, f.store.Snapshot().Consultations)
}

func TestDispense(t *testing.T) {
	f := newFixture(t)
	pharmacist := servicetest.CreateStaff(t, f.store, model.RolePharmacy, "PH01")
	record, err := f.svc.Finalize(context.Background(), f.appointment(t).ID, f.doctorActor(), fullRequest())
	require.NoError(t, err)

	actor := model.Actor{ID: pharmacist.ID, Role: model.RolePharmacy}
	p, err := f.svc.Dispense(context.Background(), record.Prescription.ID, actor)
	require.NoError(t, err)
	assert.True(t, p.Dispensed)
	assert.Equal(t, pharmacist.ID, *p.DispensedByID)

	_, err = f.svc.Dispense(context.Background(), record.Prescription.ID, actor)
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	_, err = f.svc.Dispense(context.Background(), uuid.New(), actor)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestCompleteLabRequest(t *testing.T) {
	f := newFixture(t)
	tech := servicetest.CreateStaff(t, f.store, model.RoleLab, "LB01")
	record, err := f.svc.Finalize(context.Background(), f.appointment(t).ID, f.doctorActor(), fullRequest())
	require.NoError(t, err)
	id := record.LabRequests[0].ID
	actor := model.Actor{ID: tech.ID, Role: model.RoleLab}

	_, err = f.svc.CompleteLabRequest(context.Background(), id, actor, []byte(`{"hb":`))
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	lr, err := f.svc.CompleteLabRequest(context.Background(), id, actor, []byte(`{"hb":13.5}`))
	require.NoError(t, err)
	assert.Equal(t, model.LabRequestStatusCompleted, lr.Status)
	assert.Equal(t, tech.ID, *lr.TechnicianID)
	assert.JSONEq(t, `{"hb":13.5}`, string(*lr.Result))

	_, err = f.svc.CompleteLabRequest(context.Background(), id, actor, []byte(`{"hb":14}`))
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	_, err = f.svc.CompleteLabRequest(context.Background(), uuid.New(), actor, []byte(`{}`))
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}
