package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type catalogRepository struct {
	*repos
}

func catalogHasID(st *state, kind model.CatalogKind, id uuid.UUID) bool {
	for _, e := range st.catalog[kind] {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (r *catalogRepository) Upsert(ctx context.Context, kind model.CatalogKind, name string) (*model.CatalogEntry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown catalog kind %q", kind)
	}
	var out *model.CatalogEntry
	err := r.do(ctx, "catalog.Upsert", func(st *state, _ time.Time) error {
		key := strings.ToLower(name)
		entry, ok := st.catalog[kind][key]
		if !ok {
			entry = model.CatalogEntry{ID: uuid.New(), Kind: kind, Name: name}
		}
		entry.UsageCount++
		st.catalog[kind][key] = entry
		out = &entry
		return nil
	})
	return out, err
}

func (r *catalogRepository) GetByName(ctx context.Context, kind model.CatalogKind, name string) (*model.CatalogEntry, error) {
	var out *model.CatalogEntry
	err := r.do(ctx, "catalog.GetByName", func(st *state, _ time.Time) error {
		entry, ok := st.catalog[kind][strings.ToLower(name)]
		if !ok {
			return repository.ErrNotFound
		}
		out = &entry
		return nil
	})
	return out, err
}

func (r *catalogRepository) Search(ctx context.Context, kind model.CatalogKind, prefix string, limit int) ([]*model.CatalogEntry, error) {
	out := []*model.CatalogEntry{}
	err := r.do(ctx, "catalog.Search", func(st *state, _ time.Time) error {
		p := strings.ToLower(prefix)
		for key, entry := range st.catalog[kind] {
			if strings.HasPrefix(key, p) {
				entry := entry
				out = append(out, &entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
