package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-bk-api/internal/models"
)

// ReservationRepository is the durable ledger of counseling reservations.
// Rows are created through SlotRepository.Book; this repository reads them
// and applies guarded status transitions.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs a new repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `id, student_id, counselor_id, session_date, session_time,
session_type, counseling_type, is_group, topic_id, notes, status, rejection_reason, room, qr_token,
attendance_confirmed, case_id, completed_at, created_at, updated_at`

// GetByID fetches one reservation with its group roster. Returns nil when missing.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	query := fmt.Sprintf("SELECT %s FROM reservations WHERE id = $1", reservationColumns)
	var res models.Reservation
	if err := r.db.GetContext(ctx, &res, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res.IsGroup {
		if err := r.db.SelectContext(ctx, &res.Members,
			"SELECT student_id FROM reservation_members WHERE reservation_id = $1 ORDER BY student_id", id); err != nil {
			return nil, fmt.Errorf("load reservation members: %w", err)
		}
	}
	return &res, nil
}

// List returns reservations per provided filter.
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	base := "FROM reservations"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CounselorID != "" {
		where = append(where, fmt.Sprintf("counselor_id = $%d", len(args)+1))
		args = append(args, filter.CounselorID)
	}
	if filter.CaseID != "" {
		where = append(where, fmt.Sprintf("case_id = $%d", len(args)+1))
		args = append(args, filter.CaseID)
	}
	if len(filter.Status) > 0 {
		values := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			values[i] = string(s)
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(values))
	}
	if filter.DateFrom != "" {
		where = append(where, fmt.Sprintf("session_date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		where = append(where, fmt.Sprintf("session_date <= $%d", len(args)+1))
		args = append(args, filter.DateTo)
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
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY session_date DESC, session_time DESC LIMIT %d OFFSET %d",
		reservationColumns, base, whereClause, size, offset)
	var reservations []models.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}
	return reservations, total, nil
}

// CountActiveForCase reports how many non-terminal reservations are linked to
// a case. The escalation workflow allows at most one.
func (r *ReservationRepository) CountActiveForCase(ctx context.Context, caseID string) (int, error) {
	query := `SELECT COUNT(*) FROM reservations WHERE case_id = $1 AND status IN ($2, $3, $4)`
	var count int
	err := r.db.GetContext(ctx, &count, query, caseID,
		string(models.ReservationPending), string(models.ReservationApproved), string(models.ReservationInCounseling))
	if err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return count, nil
}

// UpdateReservationParams carries a guarded reservation update.
type UpdateReservationParams struct {
	ExpectedStatus models.ReservationStatus
	Reservation    *models.Reservation
}

// UpdateGuarded persists the reservation only while its stored status still
// matches the expected value. Returns false when the guard failed.
func (r *ReservationRepository) UpdateGuarded(ctx context.Context, params UpdateReservationParams) (bool, error) {
	params.Reservation.UpdatedAt = time.Now().UTC()
	query := `UPDATE reservations SET
status = :status, rejection_reason = :rejection_reason, room = :room, qr_token = :qr_token,
attendance_confirmed = :attendance_confirmed, completed_at = :completed_at, notes = :notes, updated_at = :updated_at
WHERE id = :id AND status = :expected_status`
	arg := struct {
		*models.Reservation
		ExpectedStatus models.ReservationStatus `db:"expected_status"`
	}{params.Reservation, params.ExpectedStatus}
	res, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return false, fmt.Errorf("update reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update reservation rows: %w", err)
	}
	return affected == 1, nil
}
