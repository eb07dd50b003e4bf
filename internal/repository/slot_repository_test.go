package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bk-api/internal/models"
)

func newSlotRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func testReservation() *models.Reservation {
	return &models.Reservation{
		StudentID:      "std-1",
		CounselorID:    "bk-1",
		Date:           "2026-01-12",
		Time:           "10:00",
		SessionType:    models.SessionInPerson,
		CounselingType: models.CounselingRegular,
		Status:         models.ReservationPending,
	}
}

func TestSlotRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectExec("INSERT INTO counselor_slots").
		WillReturnResult(sqlmock.NewResult(1, 1))

	slot := &models.CounselorSlot{
		CounselorID: "bk-1",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: models.SessionChat,
	}
	require.NoError(t, repo.Create(context.Background(), slot))
	assert.NotEmpty(t, slot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryFindAvailable(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	rows := sqlmock.NewRows([]string{"counselor_id", "counselor_name", "counselor_specialty", "slot_date", "slot_time", "session_type"}).
		AddRow("bk-1", "Bu Sari", "karir", "2026-01-12", "10:00", "chat")
	mock.ExpectQuery("FROM counselor_slots s").
		WithArgs("2026-01-12", "10:00", "chat").
		WillReturnRows(rows)

	slots, err := repo.FindAvailable(context.Background(), "2026-01-12", "10:00", models.SessionChat)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Bu Sari", slots[0].CounselorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryBook(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE counselor_slots SET booked = TRUE").
		WithArgs("bk-1", "2026-01-12", "10:00", "in-person", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO reservations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res := testReservation()
	require.NoError(t, repo.Book(context.Background(), res))
	assert.NotEmpty(t, res.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryBookGroupInsertsMembers(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE counselor_slots SET booked = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO reservations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO reservation_members").
		WithArgs(sqlmock.AnyArg(), "std-2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO reservation_members").
		WithArgs(sqlmock.AnyArg(), "std-3").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res := testReservation()
	res.IsGroup = true
	res.Members = []string{"std-2", "std-3"}
	require.NoError(t, repo.Book(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryBookConflict(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE counselor_slots SET booked = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Book(context.Background(), testReservation())
	assert.True(t, errors.Is(err, ErrSlotBooked))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryBookUnknownSlot(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE counselor_slots SET booked = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.Book(context.Background(), testReservation())
	assert.True(t, errors.Is(err, ErrSlotNotFound))
}

func TestSlotRepositoryRelease(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectExec("UPDATE counselor_slots SET booked = FALSE").
		WithArgs("bk-1", "2026-01-12", "10:00", "chat", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Release(context.Background(), "bk-1", "2026-01-12", "10:00", models.SessionChat))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryGetSlotMissing(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM counselor_slots WHERE counselor_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	slot, err := repo.GetSlot(context.Background(), "bk-9", "2026-01-12", "10:00", models.SessionChat)
	require.NoError(t, err)
	assert.Nil(t, slot)
}
