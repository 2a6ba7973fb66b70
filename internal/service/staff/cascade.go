package staff

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

// cascade deletes the appointments the identity took part in, as doctor or
// patient, with their consultations. Children go before parents. Prescriptions
// and lab requests of other visits only lose their staff reference.
func cascade(ctx context.Context, tx repository.Tx, id uuid.UUID) (*model.CascadeReport, error) {
	report := &model.CascadeReport{IdentityID: id}
	consultations := tx.Consultations()

	appointmentIDs, err := tx.Appointments().ListIDsByParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to collect appointments: %w", err)
	}
	consultationIDs, err := consultations.ListIDsByAppointments(ctx, appointmentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to collect consultations: %w", err)
	}
	prescriptionIDs, err := consultations.ListPrescriptionIDs(ctx, consultationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to collect prescriptions: %w", err)
	}

	steps := []struct {
		name string
		run  func() (int64, error)
		into *int64
	}{
		{"prescription items", func() (int64, error) { return consultations.DeletePrescriptionItems(ctx, prescriptionIDs) }, &report.PrescriptionItems},
		{"prescriptions", func() (int64, error) { return consultations.DeletePrescriptions(ctx, prescriptionIDs) }, &report.Prescriptions},
		{"lab requests", func() (int64, error) { return consultations.DeleteLabRequests(ctx, consultationIDs) }, &report.LabRequests},
		{"consultations", func() (int64, error) { return consultations.DeleteByIDs(ctx, consultationIDs) }, &report.Consultations},
		{"appointments", func() (int64, error) { return tx.Appointments().DeleteByIDs(ctx, appointmentIDs) }, &report.Appointments},
		{"dispensing references", func() (int64, error) { return consultations.ClearDispensedBy(ctx, id) }, &report.DispensedRefsCleared},
		{"technician references", func() (int64, error) { return consultations.ClearTechnician(ctx, id) }, &report.TechnicianRefsCleared},
	}
	for _, step := range steps {
		n, err := step.run()
		if err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", step.name, err)
		}
		*step.into = n
	}

	n, err := tx.Identities().Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete identity: %w", err)
	}
	if n == 0 {
		return nil, repository.ErrNotFound
	}
	return report, nil
}
