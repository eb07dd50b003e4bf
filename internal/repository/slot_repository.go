package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-bk-api/internal/models"
)

// Sentinel errors distinguishing booking failures for the scheduler.
var (
	// ErrSlotBooked means the slot exists but was already taken.
	ErrSlotBooked = errors.New("slot already booked")
	// ErrSlotNotFound means no such slot exists in the pool.
	ErrSlotNotFound = errors.New("slot not found")
)

// SlotRepository manages the counselor slot pool. Booking flips the slot and
// inserts the reservation row inside one transaction so a lost race leaves no
// partial state behind.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs a new repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Create registers a bookable slot. The unique index on
// (counselor_id, slot_date, slot_time, session_type) rejects duplicates.
func (r *SlotRepository) Create(ctx context.Context, slot *models.CounselorSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	query := `INSERT INTO counselor_slots (id, counselor_id, slot_date, slot_time, session_type, booked, created_at, updated_at)
VALUES (:id, :counselor_id, :slot_date, :slot_time, :session_type, :booked, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create counselor slot: %w", err)
	}
	return nil
}

// List returns slots for a counselor and optional date.
func (r *SlotRepository) List(ctx context.Context, counselorID, date string) ([]models.CounselorSlot, error) {
	query := `SELECT id, counselor_id, slot_date, slot_time, session_type, booked, created_at, updated_at
FROM counselor_slots WHERE ($1 = '' OR counselor_id = $1) AND ($2 = '' OR slot_date = $2)
ORDER BY slot_date, slot_time, counselor_id`
	var slots []models.CounselorSlot
	if err := r.db.SelectContext(ctx, &slots, query, counselorID, date); err != nil {
		return nil, fmt.Errorf("list counselor slots: %w", err)
	}
	return slots, nil
}

// FindAvailable returns every unbooked slot for (date, time, sessionType),
// annotated with counselor identity for display.
func (r *SlotRepository) FindAvailable(ctx context.Context, date, slotTime string, sessionType models.SessionType) ([]models.AvailableSlot, error) {
	query := `SELECT s.counselor_id, c.full_name AS counselor_name, c.specialty AS counselor_specialty,
s.slot_date, s.slot_time, s.session_type
FROM counselor_slots s
JOIN counselors c ON c.id = s.counselor_id AND c.active
WHERE s.slot_date = $1 AND s.slot_time = $2 AND s.session_type = $3 AND s.booked = FALSE
ORDER BY c.full_name, s.counselor_id`
	var slots []models.AvailableSlot
	if err := r.db.SelectContext(ctx, &slots, query, date, slotTime, string(sessionType)); err != nil {
		return nil, fmt.Errorf("find available slots: %w", err)
	}
	return slots, nil
}

// Book atomically claims the slot and persists the reservation. The
// conditional UPDATE re-checks booked = FALSE, so a caller that lost the race
// gets ErrSlotBooked and no reservation row is written.
func (r *SlotRepository) Book(ctx context.Context, res *models.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	claim, err := tx.ExecContext(ctx, `UPDATE counselor_slots SET booked = TRUE, updated_at = $5
WHERE counselor_id = $1 AND slot_date = $2 AND slot_time = $3 AND session_type = $4 AND booked = FALSE`,
		res.CounselorID, res.Date, res.Time, string(res.SessionType), now)
	if err != nil {
		return fmt.Errorf("claim counselor slot: %w", err)
	}
	affected, err := claim.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim counselor slot rows: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM counselor_slots
WHERE counselor_id = $1 AND slot_date = $2 AND slot_time = $3 AND session_type = $4)`,
			res.CounselorID, res.Date, res.Time, string(res.SessionType)); err != nil {
			return fmt.Errorf("inspect counselor slot: %w", err)
		}
		if !exists {
			return ErrSlotNotFound
		}
		return ErrSlotBooked
	}

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO reservations (id, student_id, counselor_id, session_date, session_time,
session_type, counseling_type, is_group, topic_id, notes, status, rejection_reason, room, qr_token,
attendance_confirmed, case_id, completed_at, created_at, updated_at)
VALUES (:id, :student_id, :counselor_id, :session_date, :session_time,
:session_type, :counseling_type, :is_group, :topic_id, :notes, :status, :rejection_reason, :room, :qr_token,
:attendance_confirmed, :case_id, :completed_at, :created_at, :updated_at)`, res); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	for _, member := range res.Members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reservation_members (reservation_id, student_id) VALUES ($1, $2)`,
			res.ID, member); err != nil {
			return fmt.Errorf("insert reservation member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

// Release restores booked = FALSE so the slot becomes visible again.
func (r *SlotRepository) Release(ctx context.Context, counselorID, date, slotTime string, sessionType models.SessionType) error {
	_, err := r.db.ExecContext(ctx, `UPDATE counselor_slots SET booked = FALSE, updated_at = $5
WHERE counselor_id = $1 AND slot_date = $2 AND slot_time = $3 AND session_type = $4`,
		counselorID, date, slotTime, string(sessionType), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release counselor slot: %w", err)
	}
	return nil
}

// GetSlot loads a single slot by its booking key. Returns nil when missing.
func (r *SlotRepository) GetSlot(ctx context.Context, counselorID, date, slotTime string, sessionType models.SessionType) (*models.CounselorSlot, error) {
	query := `SELECT id, counselor_id, slot_date, slot_time, session_type, booked, created_at, updated_at
FROM counselor_slots WHERE counselor_id = $1 AND slot_date = $2 AND slot_time = $3 AND session_type = $4`
	var slot models.CounselorSlot
	if err := r.db.GetContext(ctx, &slot, query, counselorID, date, slotTime, string(sessionType)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get counselor slot: %w", err)
	}
	return &slot, nil
}

// ListCounselors returns active counselors, used by availability displays.
func (r *SlotRepository) ListCounselors(ctx context.Context, ids []string) ([]models.Counselor, error) {
	query := `SELECT id, full_name, specialty, active FROM counselors WHERE active`
	args := []interface{}{}
	if len(ids) > 0 {
		query += " AND id = ANY($1)"
		args = append(args, pq.Array(ids))
	}
	query += " ORDER BY full_name"
	var counselors []models.Counselor
	if err := r.db.SelectContext(ctx, &counselors, query, args...); err != nil {
		return nil, fmt.Errorf("list counselors: %w", err)
	}
	return counselors, nil
}
