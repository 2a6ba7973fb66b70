package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type outboxRepository struct {
	*repos
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	return r.do(ctx, "outbox.Create", func(st *state, now time.Time) error {
		event.ID = uuid.New()
		event.Status = model.OutboxStatusPending
		event.CreatedAt = now
		event.UpdatedAt = now
		st.outbox[event.ID] = *event
		return nil
	})
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	out := []*model.OutboxEvent{}
	err := r.do(ctx, "outbox.ClaimPending", func(st *state, now time.Time) error {
		var due []model.OutboxEvent
		for _, e := range st.outbox {
			if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
				continue
			}
			if e.RetryAt != nil && e.RetryAt.After(now) {
				continue
			}
			due = append(due, e)
		}
		sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
		if len(due) > limit {
			due = due[:limit]
		}
		leaseUntil := now.Add(lease)
		for _, e := range due {
			e.RetryAt = &leaseUntil
			e.UpdatedAt = now
			st.outbox[e.ID] = e
			e := e
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func (r *outboxRepository) update(ctx context.Context, op string, id uuid.UUID, fn func(e *model.OutboxEvent, now time.Time)) error {
	return r.do(ctx, op, func(st *state, now time.Time) error {
		e, ok := st.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		fn(&e, now)
		e.UpdatedAt = now
		st.outbox[id] = e
		return nil
	})
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, "outbox.MarkProcessed", id, func(e *model.OutboxEvent, now time.Time) {
		e.Status = model.OutboxStatusProcessed
		e.ErrorMessage = nil
		e.ProcessedAt = &now
	})
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return r.update(ctx, "outbox.MarkRetry", id, func(e *model.OutboxEvent, _ time.Time) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errMsg
		e.RetryAt = &retryAt
		e.RetryCount++
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.update(ctx, "outbox.MarkFailed", id, func(e *model.OutboxEvent, _ time.Time) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errMsg
		e.RetryCount++
	})
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.do(ctx, "outbox.CountPending", func(st *state, _ time.Time) error {
		for _, e := range st.outbox {
			if e.Status == model.OutboxStatusPending || e.Status == model.OutboxStatusRetry {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.do(ctx, "outbox.DeleteProcessedBefore", func(st *state, _ time.Time) error {
		for id, e := range st.outbox {
			if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
				delete(st.outbox, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
