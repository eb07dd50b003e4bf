package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/repository"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
)

type reservationStore interface {
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error)
	CountActiveForCase(ctx context.Context, caseID string) (int, error)
	UpdateGuarded(ctx context.Context, params repository.UpdateReservationParams) (bool, error)
}

type slotBooker interface {
	Book(ctx context.Context, res *models.Reservation) error
	Release(ctx context.Context, counselorID, date, slotTime string, sessionType models.SessionType) error
}

type checkinSigner interface {
	Generate(reservationID string) (string, time.Time, error)
	Parse(token string) (string, time.Time, error)
}

// ReservationService is the ledger for counseling reservations: it enforces
// the status lattice, attendance confirmation and completion gating, and
// releases slots when a reservation is rejected or cancelled.
type ReservationService struct {
	repo      reservationStore
	scheduler slotBooker
	signer    checkinSigner
	notifier  *Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReservationService constructs the service.
func NewReservationService(repo reservationStore, scheduler slotBooker, signer checkinSigner, notifier *Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{
		repo:      repo,
		scheduler: scheduler,
		signer:    signer,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// RequestReservationRequest describes a student- or staff-initiated booking.
// Members (excluding the creator) turns the reservation into a group session.
type RequestReservationRequest struct {
	StudentID   string   `json:"student_id" validate:"required"`
	CounselorID string   `json:"counselor_id" validate:"required"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string   `json:"time" validate:"required,datetime=15:04"`
	SessionType string   `json:"session_type" validate:"required,oneof=chat in-person"`
	TopicID     *string  `json:"topic_id,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	Members     []string `json:"members,omitempty" validate:"omitempty,min=1,dive,required"`
}

// Request books a slot and creates the reservation in one atomic step. There
// is no partial wizard state: an incomplete request leaves nothing behind.
func (s *ReservationService) Request(ctx context.Context, req RequestReservationRequest) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reservation payload")
	}
	res := &models.Reservation{
		StudentID:      req.StudentID,
		CounselorID:    req.CounselorID,
		Date:           req.Date,
		Time:           req.Time,
		SessionType:    models.SessionType(req.SessionType),
		CounselingType: models.CounselingRegular,
		IsGroup:        len(req.Members) > 0,
		TopicID:        req.TopicID,
		Notes:          req.Notes,
		Status:         models.ReservationPending,
		Members:        req.Members,
	}
	if err := s.scheduler.Book(ctx, res); err != nil {
		return nil, err
	}
	s.notify("reservation.requested", res)
	return res, nil
}

// SetStatusRequest moves a reservation through the lattice.
type SetStatusRequest struct {
	Status          string  `json:"status" validate:"required,oneof=approved rejected in_counseling completed cancelled"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	Room            *string `json:"room,omitempty"`
}

// SetStatus applies a status transition. Rejection requires a reason and
// frees the slot; approval of an in-person session issues the QR check-in
// token and assigns a room.
func (s *ReservationService) SetStatus(ctx context.Context, id string, req SetStatusRequest) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	target := models.ReservationStatus(req.Status)
	if target == models.ReservationCompleted {
		return s.Complete(ctx, id)
	}

	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionReservation(res.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot move reservation from %s to %s", res.Status, target))
	}
	if target == models.ReservationRejected && (req.RejectionReason == nil || *req.RejectionReason == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection requires a reason")
	}

	expected := res.Status
	res.Status = target
	switch target {
	case models.ReservationRejected:
		res.RejectionReason = req.RejectionReason
	case models.ReservationApproved:
		if req.Room != nil {
			res.Room = req.Room
		}
		if res.SessionType == models.SessionInPerson {
			if res.Room == nil {
				room := "Ruang BK"
				res.Room = &room
			}
			token, _, err := s.signer.Generate(res.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue check-in token")
			}
			res.QRToken = &token
		}
	}

	if err := s.applyGuarded(ctx, expected, res); err != nil {
		return nil, err
	}

	if target == models.ReservationRejected || target == models.ReservationCancelled {
		if err := s.scheduler.Release(ctx, res.CounselorID, res.Date, res.Time, res.SessionType); err != nil {
			s.logger.Error("failed to release slot after terminal transition",
				zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}

	s.metrics.RecordTransition(string(target))
	s.notify("reservation."+string(target), res)
	return res, nil
}

// ConfirmAttendance marks an in-person reservation as attended, validating
// the scanned QR token when one is supplied.
func (s *ReservationService) ConfirmAttendance(ctx context.Context, id, scannedToken string) (*models.Reservation, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.SessionType != models.SessionInPerson {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attendance confirmation applies to in-person sessions only")
	}
	if res.Status != models.ReservationApproved && res.Status != models.ReservationInCounseling {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot confirm attendance while reservation is %s", res.Status))
	}
	if scannedToken != "" {
		tokenID, _, err := s.signer.Parse(scannedToken)
		if err != nil || tokenID != res.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid check-in token")
		}
	}

	expected := res.Status
	res.AttendanceConfirmed = true
	if err := s.applyGuarded(ctx, expected, res); err != nil {
		return nil, err
	}
	s.notify("reservation.attendance_confirmed", res)
	return res, nil
}

// Complete finishes a reservation. In-person sessions require confirmed
// attendance first; chat sessions do not.
func (s *ReservationService) Complete(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionReservation(res.Status, models.ReservationCompleted) {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot complete reservation from %s", res.Status))
	}
	if res.SessionType == models.SessionInPerson && !res.AttendanceConfirmed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "in-person completion requires attendance confirmation")
	}

	expected := res.Status
	now := time.Now().UTC()
	res.Status = models.ReservationCompleted
	res.CompletedAt = &now
	if err := s.applyGuarded(ctx, expected, res); err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(string(models.ReservationCompleted))
	s.notify("reservation.completed", res)
	return res, nil
}

// Get returns one reservation.
func (s *ReservationService) Get(ctx context.Context, id string) (*models.Reservation, error) {
	return s.load(ctx, id)
}

// List returns reservations with pagination.
func (s *ReservationService) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	reservations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reservations")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return reservations, pagination, nil
}

func (s *ReservationService) load(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservation")
	}
	if res == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reservation not found")
	}
	return res, nil
}

func (s *ReservationService) applyGuarded(ctx context.Context, expected models.ReservationStatus, res *models.Reservation) error {
	ok, err := s.repo.UpdateGuarded(ctx, repository.UpdateReservationParams{
		ExpectedStatus: expected,
		Reservation:    res,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reservation")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrConflict, "reservation changed concurrently, retry with fresh data")
	}
	return nil
}

func (s *ReservationService) notify(event string, res *models.Reservation) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(Notification{
		Event:         event,
		RecipientID:   res.StudentID,
		ReservationID: res.ID,
		Message:       fmt.Sprintf("reservation %s with counselor %s on %s %s", event, res.CounselorID, res.Date, res.Time),
	})
}
