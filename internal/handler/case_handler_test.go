package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bk-api/internal/middleware"
	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/service"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
)

type caseServiceMock struct {
	reportResp   *models.DisciplinaryCase
	reportErr    error
	escalateResp *models.DisciplinaryCase
	escalateErr  error
	lastReport   service.ReportCaseRequest
	lastEscalate service.EscalateRequest
}

func (m *caseServiceMock) ReportCase(ctx context.Context, req service.ReportCaseRequest) (*models.DisciplinaryCase, error) {
	m.lastReport = req
	return m.reportResp, m.reportErr
}

func (m *caseServiceMock) Escalate(ctx context.Context, caseID string, req service.EscalateRequest) (*models.DisciplinaryCase, error) {
	m.lastEscalate = req
	return m.escalateResp, m.escalateErr
}

func (m *caseServiceMock) CompleteCase(ctx context.Context, caseID string, req service.CompleteCaseRequest) (*models.DisciplinaryCase, error) {
	return m.escalateResp, m.escalateErr
}

func (m *caseServiceMock) ArchiveCase(ctx context.Context, caseID, reason string) (*models.DisciplinaryCase, error) {
	return m.escalateResp, m.escalateErr
}

func (m *caseServiceMock) OverrideMatch(ctx context.Context, caseID, violationID, actor string) (*models.DisciplinaryCase, error) {
	return m.escalateResp, m.escalateErr
}

func (m *caseServiceMock) Get(ctx context.Context, id string) (*models.DisciplinaryCase, error) {
	return m.reportResp, m.reportErr
}

func (m *caseServiceMock) List(ctx context.Context, filter models.CaseFilter) ([]models.DisciplinaryCase, *models.Pagination, error) {
	return nil, nil, nil
}

func TestCaseHandlerReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &caseServiceMock{
		reportResp: &models.DisciplinaryCase{ID: "case-1", Status: models.CaseStatusPending},
	}
	handler := NewCaseHandler(mockSvc)

	body, _ := json.Marshal(map[string]string{
		"student_id":      "std-1",
		"class_id":        "XII-IPA-1",
		"raw_description": "terlambat 20 menit",
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/cases", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "tch-1", Role: models.RoleTeacher})

	handler.Report(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tch-1", mockSvc.lastReport.ReporterID)
	assert.Equal(t, "TEACHER", mockSvc.lastReport.ReporterRole)
}

func TestCaseHandlerReportInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCaseHandler(&caseServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/cases", bytes.NewBufferString(`{"student_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Report(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaseHandlerEscalate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &caseServiceMock{
		escalateResp: &models.DisciplinaryCase{ID: "case-1", Status: models.CaseStatusInProgress},
	}
	handler := NewCaseHandler(mockSvc)

	body, _ := json.Marshal(map[string]string{
		"tier":         "light",
		"counselor_id": "bk-1",
		"date":         "2026-01-12",
		"time":         "10:00",
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/cases/case-1/escalate", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "case-1"}}

	handler.Escalate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "light", mockSvc.lastEscalate.Tier)
}

func TestCaseHandlerEscalateConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &caseServiceMock{escalateErr: appErrors.ErrActiveReservation}
	handler := NewCaseHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/cases/case-1/escalate", bytes.NewBufferString(`{"tier":"light"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "case-1"}}

	handler.Escalate(c)
	require.Equal(t, appErrors.ErrActiveReservation.Status, w.Code)
}
