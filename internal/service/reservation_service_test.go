package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/repository"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
	"github.com/noah-isme/sma-bk-api/pkg/qrtoken"
)

type reservationStoreStub struct {
	reservations map[string]*models.Reservation
	guardFails   bool
}

func newReservationStoreStub() *reservationStoreStub {
	return &reservationStoreStub{reservations: map[string]*models.Reservation{}}
}

func (r *reservationStoreStub) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	res, ok := r.reservations[id]
	if !ok {
		return nil, nil
	}
	copied := *res
	return &copied, nil
}

func (r *reservationStoreStub) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	var out []models.Reservation
	for _, res := range r.reservations {
		out = append(out, *res)
	}
	return out, len(out), nil
}

func (r *reservationStoreStub) CountActiveForCase(ctx context.Context, caseID string) (int, error) {
	count := 0
	for _, res := range r.reservations {
		if res.CaseID != nil && *res.CaseID == caseID && res.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (r *reservationStoreStub) UpdateGuarded(ctx context.Context, params repository.UpdateReservationParams) (bool, error) {
	if r.guardFails {
		return false, nil
	}
	current, ok := r.reservations[params.Reservation.ID]
	if !ok || current.Status != params.ExpectedStatus {
		return false, nil
	}
	copied := *params.Reservation
	r.reservations[params.Reservation.ID] = &copied
	return true, nil
}

type bookerStub struct {
	bookErr  error
	booked   int
	released []string
	// ledger mirrors the production booking transaction, which persists
	// the reservation row together with the slot claim.
	ledger *reservationStoreStub
}

func (b *bookerStub) Book(ctx context.Context, res *models.Reservation) error {
	if b.bookErr != nil {
		return b.bookErr
	}
	b.booked++
	if res.ID == "" {
		res.ID = "res-1"
	}
	if b.ledger != nil {
		copied := *res
		b.ledger.reservations[res.ID] = &copied
	}
	return nil
}

func (b *bookerStub) Release(ctx context.Context, counselorID, date, slotTime string, sessionType models.SessionType) error {
	b.released = append(b.released, counselorID+"|"+date+"|"+slotTime)
	return nil
}

func newTestReservationService(store *reservationStoreStub, booker *bookerStub) *ReservationService {
	signer := qrtoken.NewSigner("test-secret", time.Hour)
	return NewReservationService(store, booker, signer, nil, nil, nil, zap.NewNop())
}

func seedReservation(store *reservationStoreStub, id string, status models.ReservationStatus, sessionType models.SessionType) *models.Reservation {
	res := &models.Reservation{
		ID:             id,
		StudentID:      "std-1",
		CounselorID:    "bk-1",
		Date:           "2026-01-12",
		Time:           "10:00",
		SessionType:    sessionType,
		CounselingType: models.CounselingRegular,
		Status:         status,
	}
	store.reservations[id] = res
	return res
}

func TestRequestReservation(t *testing.T) {
	store := newReservationStoreStub()
	booker := &bookerStub{}
	svc := newTestReservationService(store, booker)

	res, err := svc.Request(context.Background(), RequestReservationRequest{
		StudentID:   "std-1",
		CounselorID: "bk-1",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: "chat",
	})

	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, res.Status)
	assert.Equal(t, models.CounselingRegular, res.CounselingType)
	assert.False(t, res.IsGroup)
	assert.Equal(t, 1, booker.booked)
}

func TestRequestGroupReservation(t *testing.T) {
	store := newReservationStoreStub()
	booker := &bookerStub{}
	svc := newTestReservationService(store, booker)

	res, err := svc.Request(context.Background(), RequestReservationRequest{
		StudentID:   "std-1",
		CounselorID: "bk-1",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: "in-person",
		Members:     []string{"std-2", "std-3"},
	})

	require.NoError(t, err)
	assert.True(t, res.IsGroup)
	assert.Equal(t, []string{"std-2", "std-3"}, res.Members)
}

func TestRequestSlotConflictSurfaces(t *testing.T) {
	store := newReservationStoreStub()
	booker := &bookerStub{bookErr: appErrors.ErrSlotTaken}
	svc := newTestReservationService(store, booker)

	_, err := svc.Request(context.Background(), RequestReservationRequest{
		StudentID:   "std-1",
		CounselorID: "bk-1",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: "chat",
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotTaken.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.reservations)
}

func TestApproveInPersonIssuesToken(t *testing.T) {
	store := newReservationStoreStub()
	booker := &bookerStub{}
	svc := newTestReservationService(store, booker)
	seedReservation(store, "res-1", models.ReservationPending, models.SessionInPerson)

	res, err := svc.SetStatus(context.Background(), "res-1", SetStatusRequest{Status: "approved"})

	require.NoError(t, err)
	assert.Equal(t, models.ReservationApproved, res.Status)
	require.NotNil(t, res.Room)
	assert.Equal(t, "Ruang BK", *res.Room)
	require.NotNil(t, res.QRToken)

	id, _, err := qrtoken.NewSigner("test-secret", time.Hour).Parse(*res.QRToken)
	require.NoError(t, err)
	assert.Equal(t, "res-1", id)
}

func TestApproveChatSkipsToken(t *testing.T) {
	store := newReservationStoreStub()
	svc := newTestReservationService(store, &bookerStub{})
	seedReservation(store, "res-1", models.ReservationPending, models.SessionChat)

	res, err := svc.SetStatus(context.Background(), "res-1", SetStatusRequest{Status: "approved"})

	require.NoError(t, err)
	assert.Nil(t, res.QRToken)
}

func TestRejectRequiresReasonAndReleasesSlot(t *testing.T) {
	store := newReservationStoreStub()
	booker := &bookerStub{}
	svc := newTestReservationService(store, booker)
	seedReservation(store, "res-1", models.ReservationPending, models.SessionChat)

	_, err := svc.SetStatus(context.Background(), "res-1", SetStatusRequest{Status: "rejected"})
	require.Error(t, err)
	assert.Empty(t, booker.released)

	reason := "jadwal konselor berubah"
	res, err := svc.SetStatus(context.Background(), "res-1", SetStatusRequest{Status: "rejected", RejectionReason: &reason})
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRejected, res.Status)
	require.NotNil(t, res.RejectionReason)
	assert.Len(t, booker.released, 1)
}

func TestCancelReleasesSlot(t *testing.T) {
	store := newReservationStoreStub()
	booker := &bookerStub{}
	svc := newTestReservationService(store, booker)
	seedReservation(store, "res-1", models.ReservationApproved, models.SessionChat)

	res, err := svc.SetStatus(context.Background(), "res-1", SetStatusRequest{Status: "cancelled"})

	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, res.Status)
	assert.Len(t, booker.released, 1)
}

func TestIllegalReservationTransitions(t *testing.T) {
	store := newReservationStoreStub()
	svc := newTestReservationService(store, &bookerStub{})

	cases := []struct {
		from models.ReservationStatus
		to   string
	}{
		{models.ReservationPending, "in_counseling"},
		{models.ReservationPending, "cancelled"},
		{models.ReservationRejected, "approved"},
		{models.ReservationCompleted, "cancelled"},
		{models.ReservationCancelled, "approved"},
	}
	for _, tc := range cases {
		seedReservation(store, "res-x", tc.from, models.SessionChat)
		_, err := svc.SetStatus(context.Background(), "res-x", SetStatusRequest{Status: tc.to})
		require.Errorf(t, err, "%s -> %s should be rejected", tc.from, tc.to)
		assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErrors.FromError(err).Code)
	}
}

func TestConfirmAttendance(t *testing.T) {
	store := newReservationStoreStub()
	svc := newTestReservationService(store, &bookerStub{})
	seedReservation(store, "res-1", models.ReservationApproved, models.SessionInPerson)

	token, _, err := qrtoken.NewSigner("test-secret", time.Hour).Generate("res-1")
	require.NoError(t, err)

	res, err := svc.ConfirmAttendance(context.Background(), "res-1", token)
	require.NoError(t, err)
	assert.True(t, res.AttendanceConfirmed)
}

func TestConfirmAttendanceRejectsForeignToken(t *testing.T) {
	store := newReservationStoreStub()
	svc := newTestReservationService(store, &bookerStub{})
	seedReservation(store, "res-1", models.ReservationApproved, models.SessionInPerson)

	token, _, err := qrtoken.NewSigner("test-secret", time.Hour).Generate("res-other")
	require.NoError(t, err)

	_, err = svc.ConfirmAttendance(context.Background(), "res-1", token)
	assert.Error(t, err)
}

func TestConfirmAttendanceChatRejected(t *testing.T) {
	store := newReservationStoreStub()
	svc := newTestReservationService(store, &bookerStub{})
	seedReservation(store, "res-1", models.ReservationApproved, models.SessionChat)

	_, err := svc.ConfirmAttendance(context.Background(), "res-1", "")
	assert.Error(t, err)
}

func TestCompleteInPersonRequiresAttendance(t *testing.T) {
	store := newReservationStoreStub()
	svc := newTestReservationService(store, &bookerStub{})
	seedReservation(store, "res-1", models.ReservationInCounseling, models.SessionInPerson)

	_, err := svc.Complete(context.Background(), "res-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	store.reservations["res-1"].AttendanceConfirmed = true
	res, err := svc.Complete(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCompleted, res.Status)
	assert.NotNil(t, res.CompletedAt)
}

func TestCompleteChatSkipsAttendanceGate(t *testing.T) {
	store := newReservationStoreStub()
	svc := newTestReservationService(store, &bookerStub{})
	seedReservation(store, "res-1", models.ReservationApproved, models.SessionChat)

	res, err := svc.Complete(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCompleted, res.Status)
}

func TestSetStatusConcurrentChange(t *testing.T) {
	store := newReservationStoreStub()
	store.guardFails = true
	svc := newTestReservationService(store, &bookerStub{})
	seedReservation(store, "res-1", models.ReservationPending, models.SessionChat)

	_, err := svc.SetStatus(context.Background(), "res-1", SetStatusRequest{Status: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReservationNotFound(t *testing.T) {
	svc := newTestReservationService(newReservationStoreStub(), &bookerStub{})

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

var errBoom = errors.New("boom")
