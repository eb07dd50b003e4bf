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

type slotService interface {
	CreateSlot(ctx context.Context, req service.CreateSlotRequest) (*models.CounselorSlot, error)
	ListSlots(ctx context.Context, counselorID, date string) ([]models.CounselorSlot, error)
	FindAvailable(ctx context.Context, date, slotTime string, sessionType models.SessionType) ([]models.AvailableSlot, error)
}

// SlotHandler exposes counselor availability endpoints.
type SlotHandler struct {
	service slotService
}

// NewSlotHandler builds a new handler.
func NewSlotHandler(service slotService) *SlotHandler {
	return &SlotHandler{service: service}
}

// Create godoc
// @Summary Publish a counselor availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body service.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	// Counselors can only publish their own availability.
	if claims != nil && claims.Role == models.RoleCounselor {
		req.CounselorID = claims.UserID
	}
	item, err := h.service.CreateSlot(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List slots for a counselor
// @Tags Slots
// @Produce json
// @Param counselorId query string false "Counselor ID filter"
// @Param date query string false "Date filter (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	items, err := h.service.ListSlots(c.Request.Context(), c.Query("counselorId"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Available godoc
// @Summary Find counselors free for a given date, time and session type
// @Tags Slots
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param time query string true "Time (HH:MM)"
// @Param sessionType query string true "chat or in-person"
// @Success 200 {object} response.Envelope
// @Router /slots/available [get]
func (h *SlotHandler) Available(c *gin.Context) {
	items, err := h.service.FindAvailable(c.Request.Context(),
		c.Query("date"), c.Query("time"), models.SessionType(c.Query("sessionType")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
