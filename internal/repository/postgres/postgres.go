package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// TxOptions bound how long a transaction may wait and run.
type TxOptions struct {
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// Store is the Postgres implementation of repository.Store.
type Store struct {
	db      *sqlx.DB
	opts    TxOptions
	metrics *metrics.Metrics
	repos
}

func NewStore(db *sqlx.DB, opts TxOptions, m *metrics.Metrics) *Store {
	return &Store{
		db:      db,
		opts:    opts,
		metrics: m,
		repos:   newRepos(db),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes a function within a transaction
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		s.observe(start, err)
	}()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyError(err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := s.applyTimeouts(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := fn(newRepos(tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyError(err)
	}
	return nil
}

func (s *Store) applyTimeouts(ctx context.Context, tx *sqlx.Tx) error {
	if s.opts.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.opts.LockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classifyError(err)
		}
	}
	if s.opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.opts.StatementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classifyError(err)
		}
	}
	return nil
}

func (s *Store) observe(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
	}
	s.metrics.TransactionResults.WithLabelValues(outcome).Inc()
	s.metrics.DatabaseLatency.WithLabelValues("transaction").Observe(time.Since(start).Seconds())
}

// repos binds every repository to one executor.
type repos struct {
	identities    *identityRepository
	appointments  *appointmentRepository
	consultations *consultationRepository
	catalog       *catalogRepository
	codes         *verificationCodeRepository
	outbox        *outboxRepository
}

func newRepos(db sqlx.ExtContext) repos {
	base := NewBaseRepository(db)
	return repos{
		identities:    &identityRepository{base},
		appointments:  &appointmentRepository{base},
		consultations: &consultationRepository{base},
		catalog:       &catalogRepository{base},
		codes:         &verificationCodeRepository{base},
		outbox:        &outboxRepository{base},
	}
}

func (r repos) Identities() repository.IdentityRepository { return r.identities }

func (r repos) Appointments() repository.AppointmentRepository { return r.appointments }

func (r repos) Consultations() repository.ConsultationRepository { return r.consultations }

func (r repos) Catalog() repository.CatalogRepository { return r.catalog }

func (r repos) VerificationCodes() repository.VerificationCodeRepository { return r.codes }

func (r repos) Outbox() repository.OutboxRepository { return r.outbox }
