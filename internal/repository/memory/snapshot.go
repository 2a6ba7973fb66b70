package memory

import (
	"github.com/jwalitptl/clinic-api/internal/model"
)

// Snapshot is a copy of the committed state.
type Snapshot struct {
	Identities        []model.Identity
	Appointments      []model.Appointment
	Consultations     []model.Consultation
	Prescriptions     []model.Prescription
	PrescriptionItems []model.PrescriptionItem
	LabRequests       []model.LabRequest
	Catalog           map[model.CatalogKind][]model.CatalogEntry
	VerificationCodes []model.VerificationCode
	Outbox            []model.OutboxEvent
}

func values[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Identities:        values(s.st.identities),
		Appointments:      values(s.st.appointments),
		Consultations:     values(s.st.consultations),
		Prescriptions:     values(s.st.prescriptions),
		PrescriptionItems: values(s.st.items),
		LabRequests:       values(s.st.labRequests),
		Catalog: map[model.CatalogKind][]model.CatalogEntry{
			model.CatalogMedicine: values(s.st.catalog[model.CatalogMedicine]),
			model.CatalogLabTest:  values(s.st.catalog[model.CatalogLabTest]),
		},
		VerificationCodes: values(s.st.codes),
		Outbox:            values(s.st.outbox),
	}
}

// OutboxByType returns committed outbox events of one type.
func (s Snapshot) OutboxByType(eventType string) []model.OutboxEvent {
	var out []model.OutboxEvent
	for _, e := range s.Outbox {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
