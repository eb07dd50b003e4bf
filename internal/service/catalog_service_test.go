package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
)

type catalogStoreStub struct {
	defs    []models.ViolationDefinition
	allErr  error
	upserts []models.ViolationDefinition
}

func (s *catalogStoreStub) List(ctx context.Context, filter models.ViolationFilter) ([]models.ViolationDefinition, int, error) {
	return s.defs, len(s.defs), nil
}

func (s *catalogStoreStub) All(ctx context.Context) ([]models.ViolationDefinition, error) {
	if s.allErr != nil {
		return nil, s.allErr
	}
	return s.defs, nil
}

func (s *catalogStoreStub) GetByID(ctx context.Context, id string) (*models.ViolationDefinition, error) {
	for i := range s.defs {
		if s.defs[i].ID == id {
			return &s.defs[i], nil
		}
	}
	return nil, nil
}

func (s *catalogStoreStub) Create(ctx context.Context, def *models.ViolationDefinition) error {
	s.defs = append(s.defs, *def)
	return nil
}

func (s *catalogStoreStub) Upsert(ctx context.Context, def *models.ViolationDefinition) (bool, error) {
	s.upserts = append(s.upserts, *def)
	for i := range s.defs {
		if s.defs[i].Name == def.Name && s.defs[i].Category == def.Category {
			s.defs[i].Weight = def.Weight
			return false, nil
		}
	}
	s.defs = append(s.defs, *def)
	return true, nil
}

type catalogCacheStub struct {
	entries     map[string][]models.ViolationDefinition
	gets        int
	sets        int
	invalidated int
}

func newCatalogCacheStub() *catalogCacheStub {
	return &catalogCacheStub{entries: map[string][]models.ViolationDefinition{}}
}

func (c *catalogCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets++
	cached, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*[]models.ViolationDefinition)) = cached
	return nil
}

func (c *catalogCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	c.entries[key] = value.([]models.ViolationDefinition)
	return nil
}

func (c *catalogCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.invalidated++
	c.entries = map[string][]models.ViolationDefinition{}
	return nil
}

func TestCatalogAllCacheAside(t *testing.T) {
	store := &catalogStoreStub{defs: testCatalog()}
	cache := newCatalogCacheStub()
	svc := NewCatalogService(store, cache, time.Minute, nil, zap.NewNop())

	first, err := svc.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, len(store.defs))
	assert.Equal(t, 1, cache.sets)

	store.allErr = errBoom
	second, err := svc.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCatalogListRejectsUnknownCategory(t *testing.T) {
	svc := NewCatalogService(&catalogStoreStub{}, nil, time.Minute, nil, zap.NewNop())

	_, _, err := svc.List(context.Background(), models.ViolationFilter{Category: "SPORTS"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCatalogCreateInvalidatesCache(t *testing.T) {
	store := &catalogStoreStub{}
	cache := newCatalogCacheStub()
	svc := NewCatalogService(store, cache, time.Minute, nil, zap.NewNop())

	def, err := svc.Create(context.Background(), CreateViolationRequest{
		Name:     "Membawa senjata tajam",
		Category: "PERSONAL_CONDUCT",
		Weight:   50,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPersonalConduct, def.Category)
	assert.Len(t, store.defs, 1)
	assert.Equal(t, 1, cache.invalidated)
}

func TestCatalogCreateRejectsUnknownCategory(t *testing.T) {
	svc := NewCatalogService(&catalogStoreStub{}, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateViolationRequest{
		Name:     "Kategori aneh",
		Category: "SPORTS",
		Weight:   5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBulkImportUpsertsAndInvalidates(t *testing.T) {
	store := &catalogStoreStub{defs: []models.ViolationDefinition{
		{ID: "v-001", Name: "Terlambat masuk sekolah", Category: models.CategoryAttendance, Weight: 5},
	}}
	cache := newCatalogCacheStub()
	svc := NewCatalogService(store, cache, time.Minute, nil, zap.NewNop())

	summary, err := svc.BulkImport(context.Background(), BulkImportRequest{Rows: []ImportRow{
		{Name: "Terlambat masuk sekolah", Category: "ATTENDANCE", Weight: 10},
		{Name: "Merokok di lingkungan sekolah", Category: "PERSONAL_CONDUCT", Weight: 25},
		{Name: "Kategori aneh", Category: "SPORTS", Weight: 5},
	}}, "adm-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, cache.invalidated)
}

func TestBulkImportEmptyPayload(t *testing.T) {
	svc := NewCatalogService(&catalogStoreStub{}, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.BulkImport(context.Background(), BulkImportRequest{}, "adm-1")
	assert.Error(t, err)
}
