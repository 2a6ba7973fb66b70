// Package service holds helpers shared by the domain services.
package service

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/errors"
)

// StoreError translates a repository error into the API taxonomy. AppErrors
// raised inside a transaction pass through untouched.
func StoreError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.As(err); ok {
		return appErr
	}
	switch {
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.NotFound(resource, err)
	case stderrors.Is(err, repository.ErrTransient),
		stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, context.Canceled):
		return errors.Unavailable(err)
	default:
		return errors.Internal(err)
	}
}

// WriteEvent records a domain event in the outbox of the running transaction.
func WriteEvent(ctx context.Context, tx repository.Tx, eventType string, payload interface{}) error {
	event, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	if err := tx.Outbox().Create(ctx, event); err != nil {
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}
	return nil
}
