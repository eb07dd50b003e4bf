package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/pkg/response"
)

type exportService interface {
	CaseRecap(ctx context.Context, filter models.CaseFilter, format string) ([]byte, string, error)
}

// ExportHandler serves downloadable case recap files.
type ExportHandler struct {
	service exportService
}

// NewExportHandler builds a new handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// CaseRecap godoc
// @Summary Export a case recap as CSV or PDF
// @Tags Reports
// @Produce octet-stream
// @Param format query string false "csv or pdf (default csv)"
// @Param studentId query string false "Student ID filter"
// @Param status query string false "Status filter"
// @Success 200 {file} binary
// @Router /reports/cases/export [get]
func (h *ExportHandler) CaseRecap(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	filter := models.CaseFilter{
		StudentID: c.Query("studentId"),
		ClassID:   c.Query("classId"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = []models.CaseStatus{models.CaseStatus(status)}
	}
	data, contentType, err := h.service.CaseRecap(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("rekap-pembinaan-%s.%s", time.Now().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(200, contentType, data)
}
