package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// OutboxStore is the slice of outbox persistence the relay worker needs.
type OutboxStore interface {
	// ClaimPending leases up to limit due events for lease. A claimed event
	// is invisible to other claimers until the lease runs out.
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	CountPending(ctx context.Context) (int64, error)
}
