package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	appErrors "github.com/noah-isme/sma-bk-api/pkg/errors"
	"github.com/noah-isme/sma-bk-api/pkg/export"
)

type exportCaseSource interface {
	List(ctx context.Context, filter models.CaseFilter) ([]models.DisciplinaryCase, int, error)
}

type exportCatalogSource interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.ViolationDefinition, error)
}

// ExportService renders disciplinary case recaps for the student-affairs
// office as CSV or PDF. Bytes are returned to the caller; nothing is written
// to disk.
type ExportService struct {
	cases   exportCaseSource
	catalog exportCatalogSource
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(cases exportCaseSource, catalog exportCatalogSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		cases:   cases,
		catalog: catalog,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

var caseRecapHeaders = []string{
	"Case ID", "Student", "Class", "Violation", "Category", "Weight",
	"Match Type", "Confidence", "Status", "Tier", "Reported At",
}

// CaseRecap renders cases matching the filter in the requested format
// ("csv" or "pdf") and returns the bytes plus a content type.
func (s *ExportService) CaseRecap(ctx context.Context, filter models.CaseFilter, format string) ([]byte, string, error) {
	if format != "csv" && format != "pdf" {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	filter.Page = 1
	if filter.PageSize <= 0 {
		filter.PageSize = 200
	}
	cases, _, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cases for export")
	}

	var violationIDs []string
	for _, c := range cases {
		if c.MatchedViolationID != nil {
			violationIDs = append(violationIDs, *c.MatchedViolationID)
		}
	}
	defs, err := s.catalog.FindByIDs(ctx, violationIDs)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load violations for export")
	}

	dataset := export.Dataset{Headers: caseRecapHeaders}
	for _, c := range cases {
		row := map[string]string{
			"Case ID":     c.ID,
			"Student":     c.StudentID,
			"Class":       c.ClassID,
			"Match Type":  string(c.MatchType),
			"Confidence":  fmt.Sprintf("%d", c.MatchConfidence),
			"Status":      string(c.Status),
			"Reported At": c.CreatedAt.Format(time.RFC3339),
		}
		if c.EscalationTier != nil {
			row["Tier"] = string(*c.EscalationTier)
		}
		if c.MatchedViolationID != nil {
			if def, ok := defs[*c.MatchedViolationID]; ok {
				row["Violation"] = def.Name
				row["Category"] = string(def.Category)
				row["Weight"] = fmt.Sprintf("%d", def.Weight)
			}
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Rekap Pembinaan Siswa")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	}
}
