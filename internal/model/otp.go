package model

import "time"

// VerificationCode is the single live OTP for a phone number.
type VerificationCode struct {
	Phone     string    `db:"phone" json:"-"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

func (v *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

type IssueOTPRequest struct {
	Phone string `json:"phone" binding:"required,phone"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required,phone"`
	Code  string `json:"code" binding:"required,numeric,min=4,max=8"`
}

type AuthResult struct {
	Identity    *Identity `json:"identity"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
