package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/repository"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
)

type slotStore interface {
	Create(ctx context.Context, slot *models.CounselorSlot) error
	List(ctx context.Context, counselorID, date string) ([]models.CounselorSlot, error)
	FindAvailable(ctx context.Context, date, slotTime string, sessionType models.SessionType) ([]models.AvailableSlot, error)
	Book(ctx context.Context, res *models.Reservation) error
	Release(ctx context.Context, counselorID, date, slotTime string, sessionType models.SessionType) error
}

// SchedulerService allocates counselor slots. Bookings for the same
// (counselor, date, time, sessionType) key are serialized through a per-key
// mutex on top of the repository's conditional update, and a lost race is
// retried once before surfacing a conflict.
type SchedulerService struct {
	repo       slotStore
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	maxRetries int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSchedulerService constructs the scheduler.
func NewSchedulerService(repo slotStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, maxRetries int) *SchedulerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 1
	}
	return &SchedulerService{
		repo:       repo,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		maxRetries: maxRetries,
		locks:      make(map[string]*sync.Mutex),
	}
}

// CreateSlotRequest seeds one bookable slot.
type CreateSlotRequest struct {
	CounselorID string `json:"counselor_id" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required,datetime=15:04"`
	SessionType string `json:"session_type" validate:"required,oneof=chat in-person"`
}

// CreateSlot registers a slot in the pool.
func (s *SchedulerService) CreateSlot(ctx context.Context, req CreateSlotRequest) (*models.CounselorSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	slot := &models.CounselorSlot{
		CounselorID: req.CounselorID,
		Date:        req.Date,
		Time:        req.Time,
		SessionType: models.SessionType(req.SessionType),
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "slot already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	return slot, nil
}

// ListSlots returns the pool for a counselor and optional date.
func (s *SchedulerService) ListSlots(ctx context.Context, counselorID, date string) ([]models.CounselorSlot, error) {
	slots, err := s.repo.List(ctx, counselorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return slots, nil
}

// FindAvailable returns unbooked slots for the requested key. Pure read.
func (s *SchedulerService) FindAvailable(ctx context.Context, date, slotTime string, sessionType models.SessionType) ([]models.AvailableSlot, error) {
	if date == "" || slotTime == "" || !models.ValidSessionType(sessionType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date, time and sessionType are required")
	}
	slots, err := s.repo.FindAvailable(ctx, date, slotTime, sessionType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query availability")
	}
	return slots, nil
}

// Book claims the reservation's slot, retrying once on a detected race.
// Exactly one of a set of concurrent callers targeting the same key wins;
// the rest receive ErrSlotTaken and must re-query availability.
func (s *SchedulerService) Book(ctx context.Context, res *models.Reservation) error {
	key := slotKey(res.CounselorID, res.Date, res.Time, res.SessionType)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.repo.Book(ctx, res)
		if err == nil {
			s.metrics.RecordBooking(false)
			return nil
		}
		if !errors.Is(err, repository.ErrSlotBooked) {
			break
		}
	}
	switch {
	case errors.Is(err, repository.ErrSlotBooked):
		s.metrics.RecordBooking(true)
		s.logger.Warn("slot booking conflict", zap.String("slot", key))
		return appErrors.ErrSlotTaken
	case errors.Is(err, repository.ErrSlotNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "counselor slot not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book slot")
	}
}

// Release restores slot availability after a rejection or cancellation.
func (s *SchedulerService) Release(ctx context.Context, counselorID, date, slotTime string, sessionType models.SessionType) error {
	if err := s.repo.Release(ctx, counselorID, date, slotTime, sessionType); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release slot")
	}
	return nil
}

func (s *SchedulerService) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func slotKey(counselorID, date, slotTime string, sessionType models.SessionType) string {
	return fmt.Sprintf("%s|%s|%s|%s", counselorID, date, slotTime, sessionType)
}
