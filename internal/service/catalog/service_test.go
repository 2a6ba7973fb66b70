package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

func upsert(t *testing.T, svc *Service, store repository.Store, kind model.CatalogKind, name string) *model.CatalogEntry {
	t.Helper()
	var entry *model.CatalogEntry
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		var err error
		entry, err = svc.Upsert(context.Background(), tx, kind, name)
		return err
	})
	require.NoError(t, err)
	return entry
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Paracetamol 500mg", NormalizeName("  Paracetamol \t 500mg "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestUpsertIsCaseInsensitive(t *testing.T) {
	store := memory.New()
	m := metrics.NewNoop()
	svc := NewService(store, m)

	first := upsert(t, svc, store, model.CatalogMedicine, "Paracetamol")
	assert.Equal(t, int64(1), first.UsageCount)

	second := upsert(t, svc, store, model.CatalogMedicine, " paracetamol ")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Paracetamol", second.Name)
	assert.Equal(t, int64(2), second.UsageCount)

	other := upsert(t, svc, store, model.CatalogLabTest, "Paracetamol")
	assert.NotEqual(t, first.ID, other.ID, "kinds are separate lists")

	// Uses are only counted once the caller has committed.
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CatalogUpserts.WithLabelValues("medicine")))
	svc.RecordUses(model.CatalogMedicine, 2)
	svc.RecordUses(model.CatalogMedicine, 0)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CatalogUpserts.WithLabelValues("medicine")))
}

// orderTx records the names passed to the catalog repository.
type orderTx struct {
	repository.Tx
	names *[]string
}

func (tx orderTx) Catalog() repository.CatalogRepository {
	return orderCatalog{CatalogRepository: tx.Tx.Catalog(), names: tx.names}
}

type orderCatalog struct {
	repository.CatalogRepository
	names *[]string
}

func (c orderCatalog) Upsert(ctx context.Context, kind model.CatalogKind, name string) (*model.CatalogEntry, error) {
	*c.names = append(*c.names, name)
	return c.CatalogRepository.Upsert(ctx, kind, name)
}

func TestUpsertAllLocksInNameOrder(t *testing.T) {
	store := memory.New()
	svc := NewService(store, metrics.NewNoop())

	var (
		touched []string
		entries []*model.CatalogEntry
	)
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		var err error
		entries, err = svc.UpsertAll(context.Background(), orderTx{Tx: tx, names: &touched},
			model.CatalogMedicine, []string{"Zinc", " cetirizine", "Amoxicillin", "zinc"})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Amoxicillin", "cetirizine", "Zinc", "zinc"}, touched)
	require.Len(t, entries, 4)
	assert.Equal(t, "Zinc", entries[0].Name)
	assert.Equal(t, "cetirizine", entries[1].Name)
	assert.Equal(t, "Amoxicillin", entries[2].Name)
	assert.Equal(t, entries[0].ID, entries[3].ID)
	assert.Equal(t, int64(2), entries[3].UsageCount)
}

func TestUpsertAllValidatesBeforeWriting(t *testing.T) {
	store := memory.New()
	svc := NewService(store, metrics.NewNoop())

	var touched []string
	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		_, err := svc.UpsertAll(context.Background(), orderTx{Tx: tx, names: &touched},
			model.CatalogLabTest, []string{"CBC", "  "})
		return err
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
	assert.Empty(t, touched)
}

func TestUpsertConcurrent(t *testing.T) {
	store := memory.New()
	svc := NewService(store, metrics.NewNoop())

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithTx(context.Background(), func(tx repository.Tx) error {
				_, err := svc.Upsert(context.Background(), tx, model.CatalogLabTest, "CBC")
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, err := store.Catalog().GetByName(context.Background(), model.CatalogLabTest, "cbc")
	require.NoError(t, err)
	assert.Equal(t, int64(n), entry.UsageCount)
	assert.Len(t, store.Snapshot().Catalog[model.CatalogLabTest], 1)
}

func TestUpsertRejectsBadInput(t *testing.T) {
	store := memory.New()
	svc := NewService(store, metrics.NewNoop())

	err := store.WithTx(context.Background(), func(tx repository.Tx) error {
		_, err := svc.Upsert(context.Background(), tx, model.CatalogMedicine, "   ")
		return err
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	err = store.WithTx(context.Background(), func(tx repository.Tx) error {
		_, err := svc.Upsert(context.Background(), tx, "vaccine", "BCG")
		return err
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}

func TestSearch(t *testing.T) {
	store := memory.New()
	svc := NewService(store, metrics.NewNoop())

	upsert(t, svc, store, model.CatalogMedicine, "Amoxicillin")
	upsert(t, svc, store, model.CatalogMedicine, "Amlodipine")
	upsert(t, svc, store, model.CatalogMedicine, "Amlodipine")
	upsert(t, svc, store, model.CatalogMedicine, "Cetirizine")

	entries, err := svc.Search(context.Background(), model.CatalogMedicine, "am", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Amlodipine", entries[0].Name)
	assert.Equal(t, model.CatalogMedicine, entries[0].Kind)

	entries, err = svc.Search(context.Background(), model.CatalogMedicine, "", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.Search(context.Background(), "unknown", "", 0)
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}
