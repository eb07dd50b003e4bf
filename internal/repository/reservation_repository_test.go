package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bk-api/internal/models"
)

func newReservationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func reservationRows(isGroup bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "student_id", "counselor_id", "session_date", "session_time",
		"session_type", "counseling_type", "is_group", "topic_id", "notes", "status",
		"rejection_reason", "room", "qr_token", "attendance_confirmed", "case_id",
		"completed_at", "created_at", "updated_at",
	}).AddRow(
		"res-1", "std-1", "bk-1", "2026-01-12", "10:00",
		"in-person", "reguler", isGroup, nil, nil, "approved",
		nil, "Ruang BK", nil, false, nil,
		nil, now, now,
	)
}

func TestReservationRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE id = $1")).
		WithArgs("res-1").
		WillReturnRows(reservationRows(false))

	res, err := repo.GetByID(context.Background(), "res-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.ReservationApproved, res.Status)
	assert.Empty(t, res.Members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryGetByIDLoadsRoster(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE id = $1")).
		WithArgs("res-1").
		WillReturnRows(reservationRows(true))
	mock.ExpectQuery("SELECT student_id FROM reservation_members").
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("std-2").AddRow("std-3"))

	res, err := repo.GetByID(context.Background(), "res-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"std-2", "std-3"}, res.Members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE id = $1")).
		WithArgs("res-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	res, err := repo.GetByID(context.Background(), "res-404")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestReservationRepositoryList(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectQuery("FROM reservations WHERE 1=1 AND counselor_id").
		WithArgs("bk-1", sqlmock.AnyArg()).
		WillReturnRows(reservationRows(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reservations")).
		WithArgs("bk-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	reservations, total, err := repo.List(context.Background(), models.ReservationFilter{
		CounselorID: "bk-1",
		Status:      []models.ReservationStatus{models.ReservationApproved},
	})
	require.NoError(t, err)
	assert.Len(t, reservations, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryCountActiveForCase(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reservations WHERE case_id = $1")).
		WithArgs("case-1", "pending", "approved", "in_counseling").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.CountActiveForCase(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepositoryUpdateGuarded(t *testing.T) {
	db, mock, cleanup := newReservationRepoMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec("UPDATE reservations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateGuarded(context.Background(), UpdateReservationParams{
		ExpectedStatus: models.ReservationPending,
		Reservation:    &models.Reservation{ID: "res-1", Status: models.ReservationApproved},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE reservations SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.UpdateGuarded(context.Background(), UpdateReservationParams{
		ExpectedStatus: models.ReservationPending,
		Reservation:    &models.Reservation{ID: "res-1", Status: models.ReservationCancelled},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
