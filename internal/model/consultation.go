package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Consultation struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	Diagnosis     string     `db:"diagnosis" json:"diagnosis"`
	Notes         string     `db:"notes" json:"notes"`
	NextVisitDate *time.Time `db:"next_visit_date" json:"next_visit_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

type Prescription struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConsultationID uuid.UUID  `db:"consultation_id" json:"consultation_id"`
	Dispensed      bool       `db:"dispensed" json:"dispensed"`
	DispensedByID  *uuid.UUID `db:"dispensed_by_id" json:"dispensed_by_id,omitempty"`
	DispensedAt    *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Duration       string    `db:"duration" json:"duration"`
}

type LabRequestStatus string

const (
	LabRequestStatusPending   LabRequestStatus = "PENDING"
	LabRequestStatusCompleted LabRequestStatus = "COMPLETED"
)

type LabRequest struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	ConsultationID uuid.UUID        `db:"consultation_id" json:"consultation_id"`
	LabTestID      uuid.UUID        `db:"lab_test_id" json:"lab_test_id"`
	TestName       string           `db:"test_name" json:"test_name"`
	Status         LabRequestStatus `db:"status" json:"status"`
	Result         *json.RawMessage `db:"result" json:"result,omitempty"`
	TechnicianID   *uuid.UUID       `db:"technician_id" json:"technician_id,omitempty"`
	CompletedAt    *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

type PrescriptionItemRequest struct {
	Name     string `json:"name" binding:"required,max=200"`
	Dosage   string `json:"dosage" binding:"max=200"`
	Duration string `json:"duration" binding:"max=100"`
}

type LabTestRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

type FinalizeConsultationRequest struct {
	Diagnosis     string                    `json:"diagnosis" binding:"required,max=2000"`
	Notes         string                    `json:"notes" binding:"max=10000"`
	NextVisitDate *string                   `json:"next_visit_date" binding:"omitempty,datetime=2006-01-02"`
	Items         []PrescriptionItemRequest `json:"items" binding:"omitempty,dive"`
	LabTests      []LabTestRequest          `json:"lab_tests" binding:"omitempty,dive"`
}

// ConsultationRecord is everything written by one finalization.
type ConsultationRecord struct {
	Consultation *Consultation      `json:"consultation"`
	Prescription *Prescription      `json:"prescription,omitempty"`
	Items        []PrescriptionItem `json:"items,omitempty"`
	LabRequests  []LabRequest       `json:"lab_requests,omitempty"`
}

type CompleteLabRequest struct {
	Result json.RawMessage `json:"result" binding:"required"`
}
