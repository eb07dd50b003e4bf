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

// CaseRepository manages persistence for disciplinary cases. Status moves are
// compare-and-swap updates guarded by the expected pre-transition state, so a
// stale caller fails instead of overwriting a concurrent transition.
type CaseRepository struct {
	db *sqlx.DB
}

// NewCaseRepository constructs a new repository.
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

const caseColumns = `id, reporter_role, reporter_id, student_id, class_id, raw_description,
matched_violation_id, match_type, match_confidence, match_explanation,
status, escalation_tier, reservation_id, recommendation, meeting_date, meeting_time,
resolution, archive_reason, created_at, updated_at`

// Create inserts a freshly reported case.
func (r *CaseRepository) Create(ctx context.Context, c *models.DisciplinaryCase) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	query := `INSERT INTO disciplinary_cases (id, reporter_role, reporter_id, student_id, class_id, raw_description,
matched_violation_id, match_type, match_confidence, match_explanation,
status, escalation_tier, reservation_id, recommendation, meeting_date, meeting_time,
resolution, archive_reason, created_at, updated_at)
VALUES (:id, :reporter_role, :reporter_id, :student_id, :class_id, :raw_description,
:matched_violation_id, :match_type, :match_confidence, :match_explanation,
:status, :escalation_tier, :reservation_id, :recommendation, :meeting_date, :meeting_time,
:resolution, :archive_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create disciplinary case: %w", err)
	}
	return nil
}

// GetByID fetches one case. Returns nil when missing.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*models.DisciplinaryCase, error) {
	query := fmt.Sprintf("SELECT %s FROM disciplinary_cases WHERE id = $1", caseColumns)
	var c models.DisciplinaryCase
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get disciplinary case: %w", err)
	}
	return &c, nil
}

// List returns cases per provided filter.
func (r *CaseRepository) List(ctx context.Context, filter models.CaseFilter) ([]models.DisciplinaryCase, int, error) {
	base := "FROM disciplinary_cases"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			values[i] = string(s)
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(values))
	}
	if filter.Tier != nil {
		where = append(where, fmt.Sprintf("escalation_tier = $%d", len(args)+1))
		args = append(args, string(*filter.Tier))
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		caseColumns, base, whereClause, size, offset)
	var cases []models.DisciplinaryCase
	if err := r.db.SelectContext(ctx, &cases, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list disciplinary cases: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count disciplinary cases: %w", err)
	}
	return cases, total, nil
}

// UpdateCaseParams carries the optimistic-concurrency update for a case.
// The guard covers both the status and the escalation tier so that two
// concurrent tier moves from the same snapshot cannot both win.
type UpdateCaseParams struct {
	ID             string
	ExpectedStatus models.CaseStatus
	ExpectedTier   *models.EscalationTier
	Case           *models.DisciplinaryCase
}

// UpdateGuarded persists the case only while its stored status and tier
// still match the expected pre-transition values. Returns false when the
// guard failed.
func (r *CaseRepository) UpdateGuarded(ctx context.Context, params UpdateCaseParams) (bool, error) {
	params.Case.UpdatedAt = time.Now().UTC()
	query := `UPDATE disciplinary_cases SET
matched_violation_id = :matched_violation_id, match_type = :match_type,
match_confidence = :match_confidence, match_explanation = :match_explanation,
status = :status, escalation_tier = :escalation_tier, reservation_id = :reservation_id,
recommendation = :recommendation, meeting_date = :meeting_date, meeting_time = :meeting_time,
resolution = :resolution, archive_reason = :archive_reason, updated_at = :updated_at
WHERE id = :id AND status = :expected_status AND escalation_tier IS NOT DISTINCT FROM :expected_tier`
	arg := struct {
		*models.DisciplinaryCase
		ExpectedStatus models.CaseStatus      `db:"expected_status"`
		ExpectedTier   *models.EscalationTier `db:"expected_tier"`
	}{params.Case, params.ExpectedStatus, params.ExpectedTier}
	res, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return false, fmt.Errorf("update disciplinary case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update disciplinary case rows: %w", err)
	}
	return affected == 1, nil
}
