package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

type catalogRepository struct {
	BaseRepository
}

func catalogTable(kind model.CatalogKind) (string, error) {
	switch kind {
	case model.CatalogMedicine:
		return "medicines", nil
	case model.CatalogLabTest:
		return "lab_tests", nil
	}
	return "", fmt.Errorf("unknown catalog kind %q", kind)
}

// Upsert relies on the case-insensitive unique name index so that concurrent
// callers serialize on the row instead of racing a read-modify-write.
func (r *catalogRepository) Upsert(ctx context.Context, kind model.CatalogKind, name string) (*model.CatalogEntry, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, name, usage_count, created_at, updated_at)
		VALUES ($1, $2, 1, NOW(), NOW())
		ON CONFLICT ((lower(name))) DO UPDATE
		SET usage_count = %[1]s.usage_count + 1, updated_at = NOW()
		RETURNING id, name, usage_count
	`, table)

	var entry model.CatalogEntry
	if err := r.get(ctx, &entry, query, uuid.New(), name); err != nil {
		return nil, err
	}
	entry.Kind = kind
	return &entry, nil
}

func (r *catalogRepository) GetByName(ctx context.Context, kind model.CatalogKind, name string) (*model.CatalogEntry, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, name, usage_count FROM %s WHERE lower(name) = lower($1)`, table)

	var entry model.CatalogEntry
	if err := r.get(ctx, &entry, query, name); err != nil {
		return nil, err
	}
	entry.Kind = kind
	return &entry, nil
}

func (r *catalogRepository) Search(ctx context.Context, kind model.CatalogKind, prefix string, limit int) ([]*model.CatalogEntry, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, name, usage_count FROM %s
		WHERE lower(name) LIKE lower($1) || '%%' ESCAPE '\'
		ORDER BY usage_count DESC, name
		LIMIT $2
	`, table)

	entries := []*model.CatalogEntry{}
	if err := r.selectAll(ctx, &entries, query, escapeLike(prefix), limit); err != nil {
		return nil, err
	}
	for _, e := range entries {
		e.Kind = kind
	}
	return entries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
