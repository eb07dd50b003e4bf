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

type reservationService interface {
	Request(ctx context.Context, req service.RequestReservationRequest) (*models.Reservation, error)
	SetStatus(ctx context.Context, id string, req service.SetStatusRequest) (*models.Reservation, error)
	ConfirmAttendance(ctx context.Context, id, scannedToken string) (*models.Reservation, error)
	Complete(ctx context.Context, id string) (*models.Reservation, error)
	Get(ctx context.Context, id string) (*models.Reservation, error)
	List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, *models.Pagination, error)
}

// ReservationHandler exposes counseling reservation endpoints.
type ReservationHandler struct {
	service reservationService
}

// NewReservationHandler builds a new handler.
func NewReservationHandler(service reservationService) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// Request godoc
// @Summary Request a counseling reservation
// @Tags Reservations
// @Accept json
// @Produce json
// @Param payload body service.RequestReservationRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Router /reservations [post]
func (h *ReservationHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.RequestReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reservation payload"))
		return
	}
	if claims != nil && claims.Role == models.RoleStudent {
		req.StudentID = claims.UserID
	}
	item, err := h.service.Request(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List reservations
// @Tags Reservations
// @Produce json
// @Param counselorId query string false "Counselor ID filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	filter := models.ReservationFilter{
		StudentID:   c.Query("studentId"),
		CounselorID: c.Query("counselorId"),
		DateFrom:    c.Query("dateFrom"),
		DateTo:      c.Query("dateTo"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = []models.ReservationStatus{models.ReservationStatus(status)}
	}
	// Students only ever see their own reservations.
	if claims != nil && claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get one reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// SetStatus godoc
// @Summary Transition a reservation status
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body service.SetStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/status [patch]
func (h *ReservationHandler) SetStatus(c *gin.Context) {
	var req service.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	item, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

type attendanceRequest struct {
	Token string `json:"token"`
}

// ConfirmAttendance godoc
// @Summary Confirm in-person attendance via scanned QR token
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/attendance [post]
func (h *ReservationHandler) ConfirmAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	item, err := h.service.ConfirmAttendance(c.Request.Context(), c.Param("id"), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Complete godoc
// @Summary Complete a counseling session
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/complete [post]
func (h *ReservationHandler) Complete(c *gin.Context) {
	item, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
