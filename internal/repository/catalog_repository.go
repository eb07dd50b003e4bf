package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-bk-api/internal/models"
)

// CatalogRepository manages persistence for the violation catalog.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs a new repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns catalog entries per provided filter.
func (r *CatalogRepository) List(ctx context.Context, filter models.ViolationFilter) ([]models.ViolationDefinition, int, error) {
	base := "FROM violation_definitions"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, string(filter.Category))
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 100
	}
	offset := (page - 1) * size
	query := fmt.Sprintf(`SELECT id, name, category, weight, description, created_at, updated_at
%s WHERE %s ORDER BY category, weight DESC, name LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var defs []models.ViolationDefinition
	if err := r.db.SelectContext(ctx, &defs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list violation definitions: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count violation definitions: %w", err)
	}
	return defs, total, nil
}

// All returns every catalog entry, ordered for deterministic matching.
func (r *CatalogRepository) All(ctx context.Context) ([]models.ViolationDefinition, error) {
	query := `SELECT id, name, category, weight, description, created_at, updated_at
FROM violation_definitions ORDER BY id`
	var defs []models.ViolationDefinition
	if err := r.db.SelectContext(ctx, &defs, query); err != nil {
		return nil, fmt.Errorf("load violation catalog: %w", err)
	}
	return defs, nil
}

// GetByID fetches one catalog entry. Returns nil when missing.
func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*models.ViolationDefinition, error) {
	query := `SELECT id, name, category, weight, description, created_at, updated_at
FROM violation_definitions WHERE id = $1`
	var def models.ViolationDefinition
	if err := r.db.GetContext(ctx, &def, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get violation definition: %w", err)
	}
	return &def, nil
}

// Create inserts a new catalog entry.
func (r *CatalogRepository) Create(ctx context.Context, def *models.ViolationDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	query := `INSERT INTO violation_definitions (id, name, category, weight, description, created_at, updated_at)
VALUES (:id, :name, :category, :weight, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, def); err != nil {
		return fmt.Errorf("create violation definition: %w", err)
	}
	return nil
}

// Upsert inserts or refreshes an entry keyed by (name, category). Returns
// true when a new row was inserted.
func (r *CatalogRepository) Upsert(ctx context.Context, def *models.ViolationDefinition) (bool, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	query := `INSERT INTO violation_definitions (id, name, category, weight, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name, category) DO UPDATE SET weight = EXCLUDED.weight, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`
	var inserted bool
	err := r.db.QueryRowxContext(ctx, query, def.ID, def.Name, string(def.Category), def.Weight, def.Description, def.CreatedAt, def.UpdatedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert violation definition: %w", err)
	}
	return inserted, nil
}

// FindByIDs loads the catalog entries named by cases, for export joins.
func (r *CatalogRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.ViolationDefinition, error) {
	result := make(map[string]models.ViolationDefinition, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query := `SELECT id, name, category, weight, description, created_at, updated_at
FROM violation_definitions WHERE id = ANY($1)`
	var defs []models.ViolationDefinition
	if err := r.db.SelectContext(ctx, &defs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find violation definitions: %w", err)
	}
	for _, def := range defs {
		result[def.ID] = def
	}
	return result, nil
}
