// Package importer loads draft investment requests from spreadsheets
package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/service"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
)

// Recognized header names, matched case-insensitively
const (
	ColTitle           = "title"
	ColAccountID       = "account_id"
	ColInvestmentType  = "investment_type"
	ColQuarter         = "quarter"
	ColTheater         = "theater"
	ColIndustrySegment = "industry_segment"
	ColRequestedAmount = "requested_amount"
	ColJustification   = "justification"
	ColExpectedOutcome = "expected_outcome"
	ColRiskAssessment  = "risk_assessment"
	ColExpectedROI     = "expected_roi"
	ColOpportunityLink = "opportunity_link"
	ColContributors    = "contributors"
	ColOnBehalfOf      = "on_behalf_of"
)

// Row is one parsed data row. Line is the 1-based sheet row.
type Row struct {
	Line  int
	Input service.RequestInput
}

// RowError explains why a row was not imported
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Result summarizes an import
type Result struct {
	Created []string   `json:"created"`
	Failed  []RowError `json:"failed"`
}

// Creator is the part of the governance service the importer needs
type Creator interface {
	CreateRequest(ctx context.Context, actorID string, input service.RequestInput, autoSubmit bool) (*entity.InvestmentRequest, error)
}

// Importer reads the first sheet (or a named one) of an .xlsx workbook
type Importer struct {
	sheet  string
	logger *zap.Logger
}

// NewImporter creates an importer; an empty sheet means the first one
func NewImporter(sheet string, logger *zap.Logger) *Importer {
	return &Importer{sheet: sheet, logger: logger}
}

// ReadFile parses the workbook. Rows that cannot be parsed are reported in
// the returned errors; the rest are returned in sheet order.
func (im *Importer) ReadFile(path string) ([]Row, []RowError, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := im.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	columns := make(map[string]int)
	for i, h := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := columns[ColTitle]; !ok {
		return nil, nil, fmt.Errorf("sheet %s has no %q column", sheet, ColTitle)
	}

	var parsed []Row
	var failed []RowError
	for i, cells := range rows[1:] {
		line := i + 2
		get := func(col string) string {
			idx, ok := columns[col]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		if isBlank(cells) {
			continue
		}

		input, err := parseRow(get)
		if err != nil {
			failed = append(failed, RowError{Line: line, Err: err.Error()})
			continue
		}
		parsed = append(parsed, Row{Line: line, Input: input})
	}

	im.logger.Info("Workbook parsed",
		zap.String("path", path),
		zap.String("sheet", sheet),
		zap.Int("rows", len(parsed)),
		zap.Int("failed", len(failed)))
	return parsed, failed, nil
}

// Import creates one draft per parsed row on behalf of actorID
func (im *Importer) Import(ctx context.Context, path, actorID string, creator Creator) (*Result, error) {
	rows, failed, err := im.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: failed}
	for _, row := range rows {
		req, err := creator.CreateRequest(ctx, actorID, row.Input, false)
		if err != nil {
			result.Failed = append(result.Failed, RowError{Line: row.Line, Err: err.Error()})
			continue
		}
		result.Created = append(result.Created, req.ID)
	}

	im.logger.Info("Import finished",
		zap.String("actor_id", actorID),
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func parseRow(get func(string) string) (service.RequestInput, error) {
	input := service.RequestInput{
		Title:           get(ColTitle),
		AccountID:       get(ColAccountID),
		InvestmentType:  get(ColInvestmentType),
		Quarter:         get(ColQuarter),
		Theater:         get(ColTheater),
		IndustrySegment: get(ColIndustrySegment),
		OnBehalfOf:      get(ColOnBehalfOf),
		Narrative: entity.Narrative{
			Justification:   get(ColJustification),
			ExpectedOutcome: get(ColExpectedOutcome),
			RiskAssessment:  get(ColRiskAssessment),
			ExpectedROI:     get(ColExpectedROI),
			OpportunityLink: get(ColOpportunityLink),
		},
	}
	if input.Title == "" {
		return input, fmt.Errorf("missing title")
	}

	if raw := get(ColRequestedAmount); raw != "" {
		amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return input, fmt.Errorf("invalid requested_amount %q", raw)
		}
		if amount.IsNegative() {
			return input, fmt.Errorf("negative requested_amount %s", amount)
		}
		input.RequestedAmount = amount
	}

	for _, c := range strings.FieldsFunc(get(ColContributors), func(r rune) bool { return r == ',' || r == ';' }) {
		if c = strings.TrimSpace(c); c != "" {
			input.Contributors = append(input.Contributors, c)
		}
	}
	return input, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
