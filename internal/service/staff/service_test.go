package staff

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/service/catalog"
	"github.com/jwalitptl/clinic-api/internal/service/consultation"
	"github.com/jwalitptl/clinic-api/internal/service/servicetest"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

type fixture struct {
	svc           *Service
	consultations *consultation.Service
	store         *memory.Store
	admin         model.Actor
	tokens        int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	m := metrics.NewNoop()
	admin := servicetest.CreateStaff(t, store, model.RoleAdmin, "AD01")
	return &fixture{
		svc:           NewService(store, security.NewBcryptHasher(bcrypt.MinCost), logger.Nop(), m),
		consultations: consultation.NewService(store, catalog.NewService(store, m), logger.Nop(), m),
		store:         store,
		admin:         model.Actor{ID: admin.ID, Role: model.RoleAdmin},
	}
}

func (f *fixture) appointment(t *testing.T, doctor, patient *model.Identity) *model.Appointment {
	t.Helper()
	f.tokens++
	slot, token := "Evening", f.tokens
	appt := &model.Appointment{
		DoctorID:    doctor.ID,
		PatientID:   patient.ID,
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Slot:        &slot,
		TokenNumber: &token,
		Status:      model.AppointmentStatusPending,
	}
	require.NoError(t, f.store.Appointments().Create(context.Background(), appt))
	return appt
}

func (f *fixture) finalize(t *testing.T, appt *model.Appointment, items ...string) *model.ConsultationRecord {
	t.Helper()
	req := model.FinalizeConsultationRequest{Diagnosis: "Checked", LabTests: []model.LabTestRequest{{Name: "CBC"}}}
	for _, name := range items {
		req.Items = append(req.Items, model.PrescriptionItemRequest{Name: name, Dosage: "1-0-1"})
	}
	record, err := f.consultations.Finalize(context.Background(), appt.ID,
		model.Actor{ID: appt.DoctorID, Role: model.RoleDoctor}, req)
	require.NoError(t, err)
	return record
}

func TestDeleteDoctorCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := servicetest.CreateStaff(t, f.store, model.RoleDoctor, "DR01")
	other := servicetest.CreateStaff(t, f.store, model.RoleDoctor, "DR02")
	patient := servicetest.CreatePatient(t, f.store, "9876543210", "Asha")

	a1 := f.appointment(t, doctor, patient)
	f.appointment(t, doctor, patient)
	f.appointment(t, doctor, patient)
	f.finalize(t, a1, "Paracetamol", "Cetirizine")

	b1 := f.appointment(t, other, patient)
	kept := f.finalize(t, b1, "Amoxicillin")
	require.NoError(t, f.store.Consultations().MarkDispensed(ctx, kept.Prescription.ID, doctor.ID, time.Now()))
	require.NoError(t, f.store.Consultations().CompleteLabRequest(ctx, kept.LabRequests[0].ID, doctor.ID, []byte(`{}`), time.Now()))

	report, err := f.svc.Delete(ctx, doctor.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, model.CascadeReport{
		IdentityID:            doctor.ID,
		Appointments:          3,
		Consultations:         1,
		Prescriptions:         1,
		PrescriptionItems:     2,
		LabRequests:           1,
		DispensedRefsCleared:  1,
		TechnicianRefsCleared: 1,
	}, *report)

	snap := f.store.Snapshot()
	require.Len(t, snap.Appointments, 1)
	assert.Equal(t, b1.ID, snap.Appointments[0].ID)
	require.Len(t, snap.Consultations, 1)
	assert.Equal(t, kept.Consultation.ID, snap.Consultations[0].ID)

	require.Len(t, snap.Prescriptions, 1)
	assert.True(t, snap.Prescriptions[0].Dispensed)
	assert.Nil(t, snap.Prescriptions[0].DispensedByID)
	assert.Len(t, snap.PrescriptionItems, 1)

	require.Len(t, snap.LabRequests, 1)
	assert.Equal(t, model.LabRequestStatusCompleted, snap.LabRequests[0].Status)
	assert.Nil(t, snap.LabRequests[0].TechnicianID)

	for _, i := range snap.Identities {
		assert.NotEqual(t, doctor.ID, i.ID)
	}
	assert.Len(t, snap.OutboxByType(model.EventStaffDeleted), 1)

	// Catalog history survives the cascade.
	entry, err := f.store.Catalog().GetByName(ctx, model.CatalogMedicine, "paracetamol")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.UsageCount)
}

func TestDeleteRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	doctor := servicetest.CreateStaff(t, f.store, model.RoleDoctor, "DR01")
	patient := servicetest.CreatePatient(t, f.store, "9876543210", "Asha")
	f.finalize(t, f.appointment(t, doctor, patient), "Paracetamol")
	before := f.store.Snapshot()

	f.store.InjectFault("appointments.DeleteByIDs", stderrors.New("lock wait"))
	_, err := f.svc.Delete(context.Background(), doctor.ID, f.admin)
	assert.True(t, errors.HasCode(err, errors.ErrInternal))

	after := f.store.Snapshot()
	assert.Len(t, after.Identities, len(before.Identities))
	assert.Len(t, after.Appointments, 1)
	assert.Len(t, after.Consultations, 1)
	assert.Len(t, after.PrescriptionItems, 1)
	assert.Empty(t, after.OutboxByType(model.EventStaffDeleted))
}

func TestDeleteGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.svc.BootstrapAdmin(ctx, "Owner", "ROOT", "super-secret")
	require.NoError(t, err)
	_, err = f.svc.Delete(ctx, root.ID, f.admin)
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	patient := servicetest.CreatePatient(t, f.store, "9876543210", "Asha")
	_, err = f.svc.Delete(ctx, patient.ID, f.admin)
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	_, err = f.svc.Delete(ctx, f.admin.ID, f.admin)
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	_, err = f.svc.Delete(ctx, uuid.New(), f.admin)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))

	assert.Len(t, f.store.Snapshot().Identities, 3)
}

func TestCreateStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	specialization := "Cardiology"

	doctor, err := f.svc.Create(ctx, model.CreateStaffRequest{
		Name:           " Dr. Mehta ",
		Role:           model.RoleDoctor,
		DisplayCode:    "DR07",
		Passcode:       "long-enough",
		Specialization: &specialization,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Mehta", doctor.Name)
	require.NotNil(t, doctor.PasscodeHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*doctor.PasscodeHash), []byte("long-enough")))

	_, err = f.svc.Create(ctx, model.CreateStaffRequest{
		Name: "Someone", Role: model.RoleLab, DisplayCode: "DR07", Passcode: "long-enough",
	})
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	_, err = f.svc.Create(ctx, model.CreateStaffRequest{
		Name: "Someone", Role: model.RolePatient, DisplayCode: "PT01", Passcode: "long-enough",
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	_, err = f.svc.Create(ctx, model.CreateStaffRequest{
		Name: "Someone", Role: model.RoleLab, DisplayCode: "LB01", Passcode: "short",
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}

func TestBootstrapAdminOnce(t *testing.T) {
	f := newFixture(t)

	root, err := f.svc.BootstrapAdmin(context.Background(), "Owner", "ROOT", "super-secret")
	require.NoError(t, err)
	assert.True(t, root.IsRoot)
	assert.Equal(t, model.RoleAdmin, root.Role)

	_, err = f.svc.BootstrapAdmin(context.Background(), "Other", "ROOT2", "super-secret")
	assert.True(t, errors.HasCode(err, errors.ErrConflict))
}
