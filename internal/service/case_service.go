package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/repository"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
)

type caseStore interface {
	Create(ctx context.Context, c *models.DisciplinaryCase) error
	GetByID(ctx context.Context, id string) (*models.DisciplinaryCase, error)
	List(ctx context.Context, filter models.CaseFilter) ([]models.DisciplinaryCase, int, error)
	UpdateGuarded(ctx context.Context, params repository.UpdateCaseParams) (bool, error)
}

type catalogProvider interface {
	All(ctx context.Context) ([]models.ViolationDefinition, error)
	GetByID(ctx context.Context, id string) (*models.ViolationDefinition, error)
}

type caseReservationLedger interface {
	CountActiveForCase(ctx context.Context, caseID string) (int, error)
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	UpdateGuarded(ctx context.Context, params repository.UpdateReservationParams) (bool, error)
}

// CaseService drives the escalation workflow for disciplinary cases:
// classification at report time, tier decisions, counseling bookings, and
// resolution. Every status move is an optimistic-concurrency update guarded
// by the expected pre-transition state.
type CaseService struct {
	repo         caseStore
	catalog      catalogProvider
	reservations caseReservationLedger
	matcher      *ViolationMatcher
	scheduler    slotBooker
	notifier     *Notifier
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCaseService constructs the service.
func NewCaseService(repo caseStore, catalog catalogProvider, reservations caseReservationLedger, matcher *ViolationMatcher, scheduler slotBooker, notifier *Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CaseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseService{
		repo:         repo,
		catalog:      catalog,
		reservations: reservations,
		matcher:      matcher,
		scheduler:    scheduler,
		notifier:     notifier,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// ReportCaseRequest describes a newly reported incident.
type ReportCaseRequest struct {
	ReporterID     string `json:"reporter_id" validate:"required"`
	ReporterRole   string `json:"reporter_role" validate:"required,oneof=ADMIN BK KESISWAAN TEACHER"`
	StudentID      string `json:"student_id" validate:"required"`
	ClassID        string `json:"class_id" validate:"required"`
	RawDescription string `json:"raw_description" validate:"required"`
}

// ReportCase creates a pending case, classifying the description against the
// catalog synchronously. A matcher miss is a valid outcome; a catalog store
// failure is an infrastructure error and no case is created.
func (s *CaseService) ReportCase(ctx context.Context, req ReportCaseRequest) (*models.DisciplinaryCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid case payload")
	}

	defs, err := s.catalog.All(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCatalogUnavailable.Code, appErrors.ErrCatalogUnavailable.Status, appErrors.ErrCatalogUnavailable.Message)
	}
	result := s.matcher.Match(req.RawDescription, defs)
	s.metrics.RecordMatch(string(result.Type))

	c := &models.DisciplinaryCase{
		ReporterRole:       models.UserRole(req.ReporterRole),
		ReporterID:         req.ReporterID,
		StudentID:          req.StudentID,
		ClassID:            req.ClassID,
		RawDescription:     req.RawDescription,
		MatchedViolationID: result.ViolationID,
		MatchType:          result.Type,
		MatchConfidence:    result.Confidence,
		MatchExplanation:   result.Explanation,
		Status:             models.CaseStatusPending,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create case")
	}

	s.notifyCase("case.reported", c)
	return c, nil
}

// EscalateRequest selects the counseling tier for a case. Light requires a
// counselor slot; severe records a recommendation and a target meeting.
type EscalateRequest struct {
	Tier           string  `json:"tier" validate:"required,oneof=light severe"`
	CounselorID    string  `json:"counselor_id,omitempty"`
	Date           string  `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time           string  `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
	Recommendation *string `json:"recommendation,omitempty"`
	MeetingDate    *string `json:"meeting_date,omitempty"`
	MeetingTime    *string `json:"meeting_time,omitempty"`
}

// Escalate moves a pending case into in_progress with the chosen tier.
// Severe is reachable directly from pending or from an unresolved light
// stage; light is only reachable from pending.
func (s *CaseService) Escalate(ctx context.Context, caseID string, req EscalateRequest) (*models.DisciplinaryCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid escalation payload")
	}
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CaseStatusArchived {
		return nil, appErrors.ErrCaseArchived
	}

	tier := models.EscalationTier(req.Tier)
	switch tier {
	case models.TierLight:
		return s.escalateLight(ctx, c, req)
	case models.TierSevere:
		return s.escalateSevere(ctx, c, req)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown escalation tier")
	}
}

func (s *CaseService) escalateLight(ctx context.Context, c *models.DisciplinaryCase, req EscalateRequest) (*models.DisciplinaryCase, error) {
	if c.Status != models.CaseStatusPending {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("light counseling is only available for pending cases, case is %s", c.Status))
	}
	if req.CounselorID == "" || req.Date == "" || req.Time == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "light escalation requires counselor_id, date and time")
	}

	active, err := s.reservations.CountActiveForCase(ctx, c.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active reservations")
	}
	if active > 0 {
		return nil, appErrors.ErrActiveReservation
	}

	caseID := c.ID
	res := &models.Reservation{
		StudentID:      c.StudentID,
		CounselorID:    req.CounselorID,
		Date:           req.Date,
		Time:           req.Time,
		SessionType:    models.SessionInPerson,
		CounselingType: models.CounselingSpecial,
		Status:         models.ReservationPending,
		CaseID:         &caseID,
	}
	if err := s.scheduler.Book(ctx, res); err != nil {
		return nil, err
	}

	expected := c.Status
	expectedTier := c.EscalationTier
	tier := models.TierLight
	c.Status = models.CaseStatusInProgress
	c.EscalationTier = &tier
	c.ReservationID = &res.ID
	if err := s.applyGuarded(ctx, expected, expectedTier, c); err != nil {
		// The case moved under us after the booking went through; undo both
		// halves so neither the slot nor a pending reservation leaks.
		if relErr := s.scheduler.Release(ctx, res.CounselorID, res.Date, res.Time, res.SessionType); relErr != nil {
			s.logger.Error("failed to release slot after lost case guard", zap.String("case_id", c.ID), zap.Error(relErr))
		}
		res.Status = models.ReservationCancelled
		ok, cancelErr := s.reservations.UpdateGuarded(ctx, repository.UpdateReservationParams{
			ExpectedStatus: models.ReservationPending,
			Reservation:    res,
		})
		if cancelErr != nil || !ok {
			s.logger.Error("failed to cancel reservation after lost case guard",
				zap.String("case_id", c.ID), zap.String("reservation_id", res.ID), zap.Error(cancelErr))
		}
		return nil, err
	}

	s.notifyCase("case.escalated_light", c)
	return c, nil
}

func (s *CaseService) escalateSevere(ctx context.Context, c *models.DisciplinaryCase, req EscalateRequest) (*models.DisciplinaryCase, error) {
	if c.Status != models.CaseStatusPending && c.Status != models.CaseStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot escalate a %s case", c.Status))
	}
	if c.EscalationTier != nil && *c.EscalationTier == models.TierSevere {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "case is already under administrative review")
	}
	if req.Recommendation == nil || *req.Recommendation == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "severe escalation requires a recommendation")
	}
	if req.MeetingDate == nil || req.MeetingTime == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "severe escalation requires a target meeting date and time")
	}

	expected := c.Status
	expectedTier := c.EscalationTier
	tier := models.TierSevere
	c.Status = models.CaseStatusInProgress
	c.EscalationTier = &tier
	c.Recommendation = req.Recommendation
	c.MeetingDate = req.MeetingDate
	c.MeetingTime = req.MeetingTime
	if err := s.applyGuarded(ctx, expected, expectedTier, c); err != nil {
		return nil, err
	}

	s.notifyCase("case.escalated_severe", c)
	return c, nil
}

// CompleteCaseRequest resolves an in-progress case.
type CompleteCaseRequest struct {
	Resolution string `json:"resolution,omitempty"`
}

// CompleteCase closes the workflow. The light path requires the linked
// reservation to be completed; the severe path requires an administrative
// resolution note.
func (s *CaseService) CompleteCase(ctx context.Context, caseID string, req CompleteCaseRequest) (*models.DisciplinaryCase, error) {
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionCase(c.Status, models.CaseStatusCompleted) {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot complete a %s case", c.Status))
	}

	if c.EscalationTier != nil && *c.EscalationTier == models.TierSevere {
		if req.Resolution == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "severe completion requires an administrative resolution")
		}
	} else {
		if c.ReservationID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "case has no linked counseling reservation")
		}
		res, err := s.reservations.GetByID(ctx, *c.ReservationID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked reservation")
		}
		if res == nil || res.Status != models.ReservationCompleted {
			return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "linked reservation is not completed")
		}
	}

	expected := c.Status
	c.Status = models.CaseStatusCompleted
	if req.Resolution != "" {
		c.Resolution = &req.Resolution
	}
	if err := s.applyGuarded(ctx, expected, c.EscalationTier, c); err != nil {
		return nil, err
	}

	s.notifyCase("case.completed", c)
	return c, nil
}

// ArchiveCase closes a case administratively without resolution.
func (s *CaseService) ArchiveCase(ctx context.Context, caseID, reason string) (*models.DisciplinaryCase, error) {
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "archival requires a reason")
	}
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot archive a %s case", c.Status))
	}

	expected := c.Status
	c.Status = models.CaseStatusArchived
	c.ArchiveReason = &reason
	if err := s.applyGuarded(ctx, expected, c.EscalationTier, c); err != nil {
		return nil, err
	}

	s.notifyCase("case.archived", c)
	return c, nil
}

// OverrideMatch records an operator-assigned classification. This is the only
// producer of the manual match type.
func (s *CaseService) OverrideMatch(ctx context.Context, caseID, violationID, actor string) (*models.DisciplinaryCase, error) {
	if violationID == "" || actor == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "violation_id and actor are required")
	}
	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, appErrors.ErrCaseArchived
	}

	def, err := s.catalog.GetByID(ctx, violationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCatalogUnavailable.Code, appErrors.ErrCatalogUnavailable.Status, appErrors.ErrCatalogUnavailable.Message)
	}
	if def == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "violation definition not found")
	}

	expected := c.Status
	c.MatchedViolationID = &def.ID
	c.MatchType = models.MatchManual
	c.MatchConfidence = 100
	c.MatchExplanation = fmt.Sprintf("manual override by %s: assigned %q", actor, def.Name)
	if err := s.applyGuarded(ctx, expected, c.EscalationTier, c); err != nil {
		return nil, err
	}

	s.metrics.RecordMatch(string(models.MatchManual))
	return c, nil
}

// Get returns one case.
func (s *CaseService) Get(ctx context.Context, id string) (*models.DisciplinaryCase, error) {
	return s.loadCase(ctx, id)
}

// List returns cases with pagination.
func (s *CaseService) List(ctx context.Context, filter models.CaseFilter) ([]models.DisciplinaryCase, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	cases, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cases")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return cases, pagination, nil
}

func (s *CaseService) loadCase(ctx context.Context, id string) (*models.DisciplinaryCase, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load case")
	}
	if c == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
	}
	return c, nil
}

func (s *CaseService) applyGuarded(ctx context.Context, expected models.CaseStatus, expectedTier *models.EscalationTier, c *models.DisciplinaryCase) error {
	ok, err := s.repo.UpdateGuarded(ctx, repository.UpdateCaseParams{
		ID:             c.ID,
		ExpectedStatus: expected,
		ExpectedTier:   expectedTier,
		Case:           c,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update case")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrConflict, "case changed concurrently, retry with fresh data")
	}
	return nil
}

func (s *CaseService) notifyCase(event string, c *models.DisciplinaryCase) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(Notification{
		Event:       event,
		RecipientID: c.StudentID,
		CaseID:      c.ID,
		Message:     fmt.Sprintf("disciplinary case %s: %s", c.ID, event),
	})
}
