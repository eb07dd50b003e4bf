package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/service"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
	"github.com/noah-isme/sma-bk-api/pkg/response"
)

type caseService interface {
	ReportCase(ctx context.Context, req service.ReportCaseRequest) (*models.DisciplinaryCase, error)
	Escalate(ctx context.Context, caseID string, req service.EscalateRequest) (*models.DisciplinaryCase, error)
	CompleteCase(ctx context.Context, caseID string, req service.CompleteCaseRequest) (*models.DisciplinaryCase, error)
	ArchiveCase(ctx context.Context, caseID, reason string) (*models.DisciplinaryCase, error)
	OverrideMatch(ctx context.Context, caseID, violationID, actor string) (*models.DisciplinaryCase, error)
	Get(ctx context.Context, id string) (*models.DisciplinaryCase, error)
	List(ctx context.Context, filter models.CaseFilter) ([]models.DisciplinaryCase, *models.Pagination, error)
}

// CaseHandler exposes the escalation workflow endpoints.
type CaseHandler struct {
	service caseService
}

// NewCaseHandler builds a new handler.
func NewCaseHandler(service caseService) *CaseHandler {
	return &CaseHandler{service: service}
}

// Report godoc
// @Summary Report a disciplinary case
// @Tags Cases
// @Accept json
// @Produce json
// @Param payload body service.ReportCaseRequest true "Case payload"
// @Success 201 {object} response.Envelope
// @Router /cases [post]
func (h *CaseHandler) Report(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.ReportCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid case payload"))
		return
	}
	if claims != nil {
		req.ReporterID = claims.UserID
		req.ReporterRole = string(claims.Role)
	}
	item, err := h.service.ReportCase(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List disciplinary cases
// @Tags Cases
// @Produce json
// @Param studentId query string false "Student ID filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /cases [get]
func (h *CaseHandler) List(c *gin.Context) {
	filter := models.CaseFilter{
		StudentID: c.Query("studentId"),
		ClassID:   c.Query("classId"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = []models.CaseStatus{models.CaseStatus(status)}
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get one disciplinary case
// @Tags Cases
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{id} [get]
func (h *CaseHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Escalate godoc
// @Summary Escalate a case to light counseling or administrative review
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Param payload body service.EscalateRequest true "Escalation payload"
// @Success 200 {object} response.Envelope
// @Router /cases/{id}/escalate [post]
func (h *CaseHandler) Escalate(c *gin.Context) {
	var req service.EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid escalation payload"))
		return
	}
	item, err := h.service.Escalate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Complete godoc
// @Summary Complete a case
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{id}/complete [post]
func (h *CaseHandler) Complete(c *gin.Context) {
	var req service.CompleteCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid completion payload"))
		return
	}
	item, err := h.service.CompleteCase(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

type archiveCaseRequest struct {
	Reason string `json:"reason"`
}

// Archive godoc
// @Summary Archive a case without resolution
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{id}/archive [post]
func (h *CaseHandler) Archive(c *gin.Context) {
	var req archiveCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid archive payload"))
		return
	}
	item, err := h.service.ArchiveCase(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

type overrideMatchRequest struct {
	ViolationID string `json:"violation_id"`
}

// OverrideMatch godoc
// @Summary Manually assign a violation to a case
// @Tags Cases
// @Accept json
// @Produce json
// @Param id path string true "Case ID"
// @Success 200 {object} response.Envelope
// @Router /cases/{id}/match-override [post]
func (h *CaseHandler) OverrideMatch(c *gin.Context) {
	claims := claimsFromContext(c)
	var req overrideMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	actor := ""
	if claims != nil {
		actor = claims.UserID
	}
	item, err := h.service.OverrideMatch(c.Request.Context(), c.Param("id"), req.ViolationID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
