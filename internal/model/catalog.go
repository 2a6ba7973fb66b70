package model

import "github.com/google/uuid"

type CatalogKind string

const (
	CatalogMedicine CatalogKind = "medicine"
	CatalogLabTest  CatalogKind = "labtest"
)

func (k CatalogKind) Valid() bool {
	return k == CatalogMedicine || k == CatalogLabTest
}

// CatalogEntry is a medicine or lab test, deduplicated by name.
type CatalogEntry struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	Kind       CatalogKind `db:"-" json:"kind"`
	Name       string      `db:"name" json:"name"`
	UsageCount int64       `db:"usage_count" json:"usage_count"`
}
