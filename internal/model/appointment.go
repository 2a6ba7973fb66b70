package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// WalkInSlot is the synthetic slot label used for same-day walk-ins.
const WalkInSlot = "Walk-in"

type Appointment struct {
	Base
	DoctorID    uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patient_id"`
	Date        time.Time         `db:"appointment_date" json:"date"`
	Slot        *string           `db:"slot" json:"slot,omitempty"`
	TokenNumber *int              `db:"token_number" json:"token_number,omitempty"`
	Status      AppointmentStatus `db:"status" json:"status"`
	PatientName *string           `db:"patient_name" json:"patient_name,omitempty"`
	PatientAge  *int              `db:"patient_age" json:"patient_age,omitempty"`
	PatientSex  *string           `db:"patient_sex" json:"patient_sex,omitempty"`
}

type BookAppointmentRequest struct {
	DoctorID uuid.UUID      `json:"doctor_id" binding:"required"`
	Date     string         `json:"date" binding:"required"`
	Slot     string         `json:"slot" binding:"required"`
	Guest    *GuestDetails  `json:"guest" binding:"omitempty"`
	Attendee *PersonDetails `json:"attendee" binding:"omitempty"`
}

type WalkInRequest struct {
	DoctorID uuid.UUID    `json:"doctor_id" binding:"required"`
	Guest    GuestDetails `json:"guest" binding:"required"`
}

type BookingResult struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	TokenNumber   int       `json:"token_number"`
	Date          string    `json:"date"`
	Slot          string    `json:"slot"`
}

type TokenPreview struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	Slot        string    `json:"slot"`
	TokenNumber int       `json:"token_number"`
}

type AppointmentFilters struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      *time.Time
	Status    AppointmentStatus
}
