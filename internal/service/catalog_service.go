package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
)

const catalogCacheKey = "catalog:violations:all"

type catalogStore interface {
	List(ctx context.Context, filter models.ViolationFilter) ([]models.ViolationDefinition, int, error)
	All(ctx context.Context) ([]models.ViolationDefinition, error)
	GetByID(ctx context.Context, id string) (*models.ViolationDefinition, error)
	Create(ctx context.Context, def *models.ViolationDefinition) error
	Upsert(ctx context.Context, def *models.ViolationDefinition) (bool, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CatalogService exposes the violation catalog and absorbs rows from the
// external document-extraction collaborator. The full listing is served
// cache-aside and invalidated on import.
type CatalogService struct {
	repo      catalogStore
	cache     catalogCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs the service.
func NewCatalogService(repo catalogStore, cache catalogCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &CatalogService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// List returns catalog entries with pagination.
func (s *CatalogService) List(ctx context.Context, filter models.ViolationFilter) ([]models.ViolationDefinition, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 100
	}
	if filter.Category != "" && !models.ValidViolationCategory(filter.Category) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown violation category")
	}
	defs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrCatalogUnavailable.Code, appErrors.ErrCatalogUnavailable.Status, appErrors.ErrCatalogUnavailable.Message)
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return defs, pagination, nil
}

// All returns the full catalog for matching, cache-aside.
func (s *CatalogService) All(ctx context.Context) ([]models.ViolationDefinition, error) {
	if s.cache != nil {
		var cached []models.ViolationDefinition
		err := s.cache.Get(ctx, catalogCacheKey, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	defs, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, catalogCacheKey, defs, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return defs, nil
}

// GetByID returns one catalog entry.
func (s *CatalogService) GetByID(ctx context.Context, id string) (*models.ViolationDefinition, error) {
	def, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return def, nil
}

// CreateViolationRequest adds a single definition outside the import flow.
type CreateViolationRequest struct {
	Name        string  `json:"name" validate:"required"`
	Category    string  `json:"category" validate:"required"`
	Weight      int     `json:"weight" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty"`
}

// Create inserts one catalog definition and invalidates the cached listing.
func (s *CatalogService) Create(ctx context.Context, req CreateViolationRequest) (*models.ViolationDefinition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid violation payload")
	}
	category := models.ViolationCategory(req.Category)
	if !models.ValidViolationCategory(category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown violation category")
	}

	def := &models.ViolationDefinition{
		Name:        req.Name,
		Category:    category,
		Weight:      req.Weight,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, def); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create violation")
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "catalog:violations:*"); err != nil {
			s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
		}
	}
	return def, nil
}

// ImportRow is one extracted catalog row from the document collaborator.
type ImportRow struct {
	Name        string  `json:"name" validate:"required"`
	Category    string  `json:"category" validate:"required"`
	Weight      int     `json:"weight" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty"`
}

// BulkImportRequest wraps the extracted rows.
type BulkImportRequest struct {
	Rows []ImportRow `json:"rows" validate:"required,min=1,dive"`
}

// BulkImport upserts extracted rows keyed by (name, category). Rows with an
// unknown category or out-of-range weight are skipped, not fatal, so one bad
// row never rejects a whole document.
func (s *CatalogService) BulkImport(ctx context.Context, req BulkImportRequest, actor string) (*models.ImportSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}

	summary := &models.ImportSummary{}
	for _, row := range req.Rows {
		category := models.ViolationCategory(row.Category)
		if !models.ValidViolationCategory(category) || row.Name == "" {
			summary.Skipped++
			continue
		}
		def := &models.ViolationDefinition{
			Name:        row.Name,
			Category:    category,
			Weight:      row.Weight,
			Description: row.Description,
		}
		inserted, err := s.repo.Upsert(ctx, def)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import catalog row")
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Updated++
		}
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "catalog:violations:*"); err != nil {
			s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
		}
	}

	s.logger.Info("catalog import finished",
		zap.String("actor", actor),
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}
