package model

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "PATIENT"
	RoleDoctor   Role = "DOCTOR"
	RolePharmacy Role = "PHARMACY"
	RoleLab      Role = "LAB"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RolePharmacy, RoleLab, RoleAdmin:
		return true
	}
	return false
}

func (r Role) IsStaff() bool {
	return r.Valid() && r != RolePatient
}

// PlaceholderPatientName is given to identities created by OTP verification
// before the person has supplied real details.
const PlaceholderPatientName = "Patient"

// PlaceholderGuestName is what booking forms submit when a guest leaves the
// name at its default.
const PlaceholderGuestName = "Guest"

// IsPlaceholderName reports whether name stands in for a real one.
func IsPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" ||
		strings.EqualFold(name, PlaceholderPatientName) ||
		strings.EqualFold(name, PlaceholderGuestName)
}

type Identity struct {
	Base
	DisplayCode    *string `db:"display_code" json:"display_code,omitempty"`
	Name           string  `db:"name" json:"name"`
	Role           Role    `db:"role" json:"role"`
	Phone          *string `db:"phone" json:"phone,omitempty"`
	Age            *int    `db:"age" json:"age,omitempty"`
	Sex            *string `db:"sex" json:"sex,omitempty"`
	PasscodeHash   *string `db:"passcode_hash" json:"-"`
	Specialization *string `db:"specialization" json:"specialization,omitempty"`
	IsRoot         bool    `db:"is_root" json:"-"`
}

// IsIncomplete reports whether the profile still carries the minimal data
// written during OTP verification or a placeholder guest booking.
func (i *Identity) IsIncomplete() bool {
	return IsPlaceholderName(i.Name) || i.Age == nil || i.Sex == nil
}

// PersonDetails describes the person being examined. It may differ from the
// identity that made the booking.
type PersonDetails struct {
	Name string `json:"name" binding:"required,max=120"`
	Age  *int   `json:"age" binding:"required,gte=0,lte=150"`
	Sex  string `json:"sex" binding:"required,oneof=M F O"`
}

// GuestDetails identify an unauthenticated booker by phone number.
type GuestDetails struct {
	PersonDetails
	Phone string `json:"phone" binding:"required,phone"`
}

type CreateStaffRequest struct {
	Name           string  `json:"name" binding:"required,max=120"`
	Role           Role    `json:"role" binding:"required,oneof=DOCTOR PHARMACY LAB ADMIN"`
	DisplayCode    string  `json:"display_code" binding:"required,max=32"`
	Passcode       string  `json:"passcode" binding:"required,min=8,max=72"`
	Phone          *string `json:"phone" binding:"omitempty,phone"`
	Specialization *string `json:"specialization" binding:"omitempty,max=120"`
}

type StaffLoginRequest struct {
	DisplayCode string `json:"display_code" binding:"required"`
	Passcode    string `json:"passcode" binding:"required"`
}

// CascadeReport counts what a staff deletion removed or detached.
type CascadeReport struct {
	IdentityID            uuid.UUID `json:"identity_id"`
	Appointments          int64     `json:"appointments"`
	Consultations         int64     `json:"consultations"`
	Prescriptions         int64     `json:"prescriptions"`
	PrescriptionItems     int64     `json:"prescription_items"`
	LabRequests           int64     `json:"lab_requests"`
	DispensedRefsCleared  int64     `json:"dispensed_refs_cleared"`
	TechnicianRefsCleared int64     `json:"technician_refs_cleared"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}
