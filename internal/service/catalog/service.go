// Package catalog maintains the medicine and lab test name lists that grow as
// doctors prescribe.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	maxNameLength      = 200
)

type Service struct {
	store   repository.Store
	metrics *metrics.Metrics
}

func NewService(store repository.Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

// NormalizeName trims name and collapses inner whitespace. Lookups are case
// insensitive; the casing is kept as first written.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func validName(kind model.CatalogKind, name string) (string, error) {
	if !kind.Valid() {
		return "", errors.BadRequest(fmt.Sprintf("unknown catalog kind %q", kind), nil)
	}
	name = NormalizeName(name)
	if name == "" {
		return "", errors.BadRequest(fmt.Sprintf("%s name is required", kind), nil)
	}
	if len(name) > maxNameLength {
		return "", errors.BadRequest(fmt.Sprintf("%s name is too long", kind), nil)
	}
	return name, nil
}

// Upsert records one use of name inside tx, creating the entry at usage 1 or
// incrementing it atomically.
func (s *Service) Upsert(ctx context.Context, tx repository.Tx, kind model.CatalogKind, name string) (*model.CatalogEntry, error) {
	name, err := validName(kind, name)
	if err != nil {
		return nil, err
	}
	entry, err := tx.Catalog().Upsert(ctx, kind, name)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert %s %q: %w", kind, name, err)
	}
	entry.Kind = kind
	return entry, nil
}

// UpsertAll records one use of every name and returns the entries in the
// order of names. Rows are touched in case-insensitive name order so that
// concurrent transactions lock them in the same sequence.
func (s *Service) UpsertAll(ctx context.Context, tx repository.Tx, kind model.CatalogKind, names []string) ([]*model.CatalogEntry, error) {
	normalized := make([]string, len(names))
	for i, name := range names {
		n, err := validName(kind, name)
		if err != nil {
			return nil, err
		}
		normalized[i] = n
	}

	order := make([]int, len(normalized))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return strings.ToLower(normalized[order[a]]) < strings.ToLower(normalized[order[b]])
	})

	entries := make([]*model.CatalogEntry, len(normalized))
	for _, i := range order {
		entry, err := s.Upsert(ctx, tx, kind, normalized[i])
		if err != nil {
			return nil, err
		}
		entries[i] = entry
	}
	return entries, nil
}

// RecordUses counts n committed references to the kind's entries.
func (s *Service) RecordUses(kind model.CatalogKind, n int) {
	if n > 0 {
		s.metrics.CatalogUpserts.WithLabelValues(string(kind)).Add(float64(n))
	}
}

// Search lists entries whose name starts with prefix, most used first.
func (s *Service) Search(ctx context.Context, kind model.CatalogKind, prefix string, limit int) ([]*model.CatalogEntry, error) {
	if !kind.Valid() {
		return nil, errors.BadRequest(fmt.Sprintf("unknown catalog kind %q", kind), nil)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	entries, err := s.store.Catalog().Search(ctx, kind, NormalizeName(prefix), limit)
	if err != nil {
		return nil, service.StoreError(err, "catalog")
	}
	for _, e := range entries {
		e.Kind = kind
	}
	return entries, nil
}
