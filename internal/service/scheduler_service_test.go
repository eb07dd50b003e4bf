package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/repository"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
)

type slotStoreStub struct {
	mu      sync.Mutex
	slots   map[string]bool // key -> booked
	booked  int
	created []models.CounselorSlot
	bookErr error
}

func newSlotStoreStub() *slotStoreStub {
	return &slotStoreStub{slots: map[string]bool{}}
}

func (s *slotStoreStub) addSlot(counselorID, date, slotTime string, sessionType models.SessionType) {
	s.slots[slotKey(counselorID, date, slotTime, sessionType)] = false
}

func (s *slotStoreStub) Create(ctx context.Context, slot *models.CounselorSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slotKey(slot.CounselorID, slot.Date, slot.Time, slot.SessionType)
	if _, ok := s.slots[key]; ok {
		return errors.New(`pq: duplicate key value violates unique constraint "counselor_slots_key"`)
	}
	s.slots[key] = false
	s.created = append(s.created, *slot)
	return nil
}

func (s *slotStoreStub) List(ctx context.Context, counselorID, date string) ([]models.CounselorSlot, error) {
	return nil, nil
}

func (s *slotStoreStub) FindAvailable(ctx context.Context, date, slotTime string, sessionType models.SessionType) ([]models.AvailableSlot, error) {
	return nil, nil
}

func (s *slotStoreStub) Book(ctx context.Context, res *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookErr != nil {
		return s.bookErr
	}
	key := slotKey(res.CounselorID, res.Date, res.Time, res.SessionType)
	booked, ok := s.slots[key]
	if !ok {
		return repository.ErrSlotNotFound
	}
	if booked {
		return repository.ErrSlotBooked
	}
	s.slots[key] = true
	s.booked++
	res.ID = "res-1"
	return nil
}

func (s *slotStoreStub) Release(ctx context.Context, counselorID, date, slotTime string, sessionType models.SessionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slotKey(counselorID, date, slotTime, sessionType)] = false
	return nil
}

func newTestScheduler(store *slotStoreStub) *SchedulerService {
	return NewSchedulerService(store, nil, nil, zap.NewNop(), 1)
}

func TestCreateSlot(t *testing.T) {
	store := newSlotStoreStub()
	svc := newTestScheduler(store)

	slot, err := svc.CreateSlot(context.Background(), CreateSlotRequest{
		CounselorID: "bk-1",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: "chat",
	})

	require.NoError(t, err)
	assert.Equal(t, "bk-1", slot.CounselorID)
	assert.Len(t, store.created, 1)
}

func TestCreateSlotDuplicate(t *testing.T) {
	store := newSlotStoreStub()
	store.addSlot("bk-1", "2026-01-12", "10:00", models.SessionChat)
	svc := newTestScheduler(store)

	_, err := svc.CreateSlot(context.Background(), CreateSlotRequest{
		CounselorID: "bk-1",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: "chat",
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateSlotRejectsBadPayload(t *testing.T) {
	svc := newTestScheduler(newSlotStoreStub())

	cases := []CreateSlotRequest{
		{CounselorID: "bk-1", Date: "12-01-2026", Time: "10:00", SessionType: "chat"},
		{CounselorID: "bk-1", Date: "2026-01-12", Time: "25:99", SessionType: "chat"},
		{CounselorID: "bk-1", Date: "2026-01-12", Time: "10:00", SessionType: "video"},
		{Date: "2026-01-12", Time: "10:00", SessionType: "chat"},
	}
	for _, req := range cases {
		_, err := svc.CreateSlot(context.Background(), req)
		assert.Error(t, err)
	}
}

func TestBookClaimsSlot(t *testing.T) {
	store := newSlotStoreStub()
	store.addSlot("bk-1", "2026-01-12", "10:00", models.SessionInPerson)
	svc := newTestScheduler(store)

	res := &models.Reservation{
		StudentID:   "std-1",
		CounselorID: "bk-1",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: models.SessionInPerson,
	}
	require.NoError(t, svc.Book(context.Background(), res))
	assert.Equal(t, 1, store.booked)
}

func TestBookUnknownSlot(t *testing.T) {
	svc := newTestScheduler(newSlotStoreStub())

	err := svc.Book(context.Background(), &models.Reservation{
		CounselorID: "bk-9",
		Date:        "2026-01-12",
		Time:        "10:00",
		SessionType: models.SessionChat,
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBookConcurrentOneWinner(t *testing.T) {
	store := newSlotStoreStub()
	store.addSlot("bk-1", "2026-01-12", "10:00", models.SessionInPerson)
	svc := newTestScheduler(store)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Book(context.Background(), &models.Reservation{
				StudentID:   "std-1",
				CounselorID: "bk-1",
				Date:        "2026-01-12",
				Time:        "10:00",
				SessionType: models.SessionInPerson,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, appErrors.ErrSlotTaken.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, store.booked)
}

func TestBookAfterRelease(t *testing.T) {
	store := newSlotStoreStub()
	store.addSlot("bk-1", "2026-01-12", "10:00", models.SessionChat)
	svc := newTestScheduler(store)

	res := &models.Reservation{CounselorID: "bk-1", Date: "2026-01-12", Time: "10:00", SessionType: models.SessionChat}
	require.NoError(t, svc.Book(context.Background(), res))

	err := svc.Book(context.Background(), &models.Reservation{CounselorID: "bk-1", Date: "2026-01-12", Time: "10:00", SessionType: models.SessionChat})
	assert.Equal(t, appErrors.ErrSlotTaken.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Release(context.Background(), "bk-1", "2026-01-12", "10:00", models.SessionChat))
	assert.NoError(t, svc.Book(context.Background(), &models.Reservation{CounselorID: "bk-1", Date: "2026-01-12", Time: "10:00", SessionType: models.SessionChat}))
}

func TestFindAvailableValidatesInput(t *testing.T) {
	svc := newTestScheduler(newSlotStoreStub())

	_, err := svc.FindAvailable(context.Background(), "", "10:00", models.SessionChat)
	assert.Error(t, err)
	_, err = svc.FindAvailable(context.Background(), "2026-01-12", "10:00", models.SessionType("video"))
	assert.Error(t, err)
}
