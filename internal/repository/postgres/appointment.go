package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

const appointmentColumns = `id, doctor_id, patient_id, appointment_date, slot, token_number, status,
	patient_name, patient_age, patient_sex, created_at, updated_at`

type appointmentRepository struct {
	BaseRepository
}

func (r *appointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.exec(ctx, query,
		a.ID, a.DoctorID, a.PatientID, a.Date.Format(model.DateLayout), a.Slot, a.TokenNumber, a.Status,
		a.PatientName, a.PatientAge, a.PatientSex, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *appointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := r.get(ctx, &a, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := r.get(ctx, &a, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepository) MaxToken(ctx context.Context, doctorID uuid.UUID, date time.Time, slot string) (int, error) {
	query := `
		SELECT COALESCE(MAX(token_number), 0)
		FROM appointments
		WHERE doctor_id = $1
		AND appointment_date = $2::date
		AND slot = $3
	`
	var highest int
	err := r.get(ctx, &highest, query, doctorID, date.Format(model.DateLayout), slot)
	return highest, err
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	query := `UPDATE appointments SET status = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, query, status, id)
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filters != nil {
		if filters.DoctorID != uuid.Nil {
			add("doctor_id = $%d", filters.DoctorID)
		}
		if filters.PatientID != uuid.Nil {
			add("patient_id = $%d", filters.PatientID)
		}
		if filters.Date != nil {
			add("appointment_date = $%d::date", filters.Date.Format(model.DateLayout))
		}
		if filters.Status != "" {
			add("status = $%d", filters.Status)
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY appointment_date, slot, token_number NULLS LAST, created_at"

	appointments := []*model.Appointment{}
	if err := r.selectAll(ctx, &appointments, query, args...); err != nil {
		return nil, err
	}
	return appointments, nil
}

func (r *appointmentRepository) ListIDsByParticipant(ctx context.Context, identityID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM appointments
		WHERE doctor_id = $1 OR patient_id = $1
		ORDER BY id
		FOR UPDATE
	`
	ids := []uuid.UUID{}
	if err := r.selectAll(ctx, &ids, query, identityID); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *appointmentRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.exec(ctx, `DELETE FROM appointments WHERE id = ANY($1::uuid[])`, uuidArray(ids))
}
