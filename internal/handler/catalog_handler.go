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

type catalogService interface {
	List(ctx context.Context, filter models.ViolationFilter) ([]models.ViolationDefinition, *models.Pagination, error)
	GetByID(ctx context.Context, id string) (*models.ViolationDefinition, error)
	Create(ctx context.Context, req service.CreateViolationRequest) (*models.ViolationDefinition, error)
	BulkImport(ctx context.Context, req service.BulkImportRequest, actor string) (*models.ImportSummary, error)
}

// CatalogHandler exposes the violation catalog endpoints.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// List godoc
// @Summary List violation definitions
// @Tags Violations
// @Produce json
// @Param category query string false "Category filter"
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Router /violations [get]
func (h *CatalogHandler) List(c *gin.Context) {
	filter := models.ViolationFilter{
		Category: models.ViolationCategory(c.Query("category")),
		Search:   c.Query("search"),
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get one violation definition
// @Tags Violations
// @Produce json
// @Param id path string true "Violation ID"
// @Success 200 {object} response.Envelope
// @Router /violations/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	item, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create one violation definition
// @Tags Violations
// @Accept json
// @Produce json
// @Param payload body service.CreateViolationRequest true "Definition"
// @Success 201 {object} response.Envelope
// @Router /violations [post]
func (h *CatalogHandler) Create(c *gin.Context) {
	var req service.CreateViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid violation payload"))
		return
	}
	def, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, def)
}

// Import godoc
// @Summary Bulk import violation definitions
// @Tags Violations
// @Accept json
// @Produce json
// @Param payload body service.BulkImportRequest true "Import payload"
// @Success 200 {object} response.Envelope
// @Router /violations/import [post]
func (h *CatalogHandler) Import(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.BulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}
	actor := ""
	if claims != nil {
		actor = claims.UserID
	}
	summary, err := h.service.BulkImport(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
