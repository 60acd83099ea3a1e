package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/repository"
)

// ReportService shift report generation and XLSX export
type ReportService interface {
	// Generate builds a report for the shift: 'Z' at close, 'X' mid-shift.
	Generate(ctx context.Context, shiftID, reportType string) (*domain.ShiftReport, error)
	// ExportXLSX renders the latest report of the shift as a spreadsheet,
	// generating one if none is stored yet.
	ExportXLSX(ctx context.Context, shiftID string) ([]byte, error)
}

// ShiftReportPayload the stored report body
type ShiftReportPayload struct {
	ShiftID       string           `json:"shift_id"`
	OpenedAt      time.Time        `json:"opened_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	PourCount     int              `json:"pour_count"`
	TotalVolumeML int64            `json:"total_volume_ml"`
	RevenueCents  int64            `json:"revenue_cents"`
	TopUpCents    int64            `json:"topup_cents"`
	RejectedCount int              `json:"rejected_count"`
	ManualCount   int              `json:"manual_count"`
	ByBeverage    []BeverageTotals `json:"by_beverage"`
	ByTap         []TapTotals      `json:"by_tap"`
}

// BeverageTotals per-beverage shift totals
type BeverageTotals struct {
	BeverageName  string `json:"beverage_name"`
	PourCount     int    `json:"pour_count"`
	TotalVolumeML int64  `json:"total_volume_ml"`
	RevenueCents  int64  `json:"revenue_cents"`
}

// TapTotals per-tap shift totals
type TapTotals struct {
	TapID         int    `json:"tap_id"`
	PourCount     int    `json:"pour_count"`
	TotalVolumeML int64  `json:"total_volume_ml"`
	RevenueCents  int64  `json:"revenue_cents"`
}

type reportService struct {
	db         *sql.DB
	shiftsRepo *repository.PostgresShiftsRepository
	logger     *zap.Logger
}

// NewReportService creates the report service
func NewReportService(db *sql.DB, shiftsRepo *repository.PostgresShiftsRepository, logger *zap.Logger) ReportService {
	return &reportService{db: db, shiftsRepo: shiftsRepo, logger: logger}
}

func (s *reportService) Generate(ctx context.Context, shiftID, reportType string) (*domain.ShiftReport, error) {
	if reportType != "Z" && reportType != "X" {
		return nil, NewValidation("report_type", "must be Z or X")
	}

	shift, err := s.shiftsRepo.GetByID(ctx, shiftID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	payload, err := s.buildPayload(ctx, shift)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report payload: %w", err)
	}

	report, err := s.shiftsRepo.InsertReport(ctx, shiftID, reportType, raw)
	if err != nil {
		return nil, err
	}
	s.logger.Info("shift report generated",
		zap.String("shift_id", shiftID),
		zap.String("report_type", reportType))
	return report, nil
}

// buildPayload aggregates settled money movement inside the shift window.
// Only synced and reconciled pours count toward revenue; rejected cycles
// are counted separately.
func (s *reportService) buildPayload(ctx context.Context, shift *domain.Shift) (*ShiftReportPayload, error) {
	payload := &ShiftReportPayload{
		ShiftID:    shift.ShiftID,
		OpenedAt:   shift.OpenedAt,
		ByBeverage: make([]BeverageTotals, 0),
		ByTap:      make([]TapTotals, 0),
	}
	if shift.ClosedAt.Valid {
		t := shift.ClosedAt.Time
		payload.ClosedAt = &t
	}
	windowEnd := shift.ClosedAt

	totalsQuery := `
		SELECT
			COUNT(*) FILTER (WHERE sync_status IN ('synced', 'reconciled')),
			COALESCE(SUM(volume_ml) FILTER (WHERE sync_status IN ('synced', 'reconciled')), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE sync_status IN ('synced', 'reconciled')), 0),
			COUNT(*) FILTER (WHERE sync_status = 'rejected'),
			COUNT(*) FILTER (WHERE is_manual_reconcile)
		FROM pours
		WHERE poured_at >= $1 AND ($2::timestamptz IS NULL OR poured_at <= $2)`
	err := s.db.QueryRowContext(ctx, totalsQuery, shift.OpenedAt, windowEnd).Scan(
		&payload.PourCount,
		&payload.TotalVolumeML,
		&payload.RevenueCents,
		&payload.RejectedCount,
		&payload.ManualCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate shift totals: %w", err)
	}

	topUpQuery := `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE type = 'top_up' AND created_at >= $1 AND ($2::timestamptz IS NULL OR created_at <= $2)`
	if err := s.db.QueryRowContext(ctx, topUpQuery, shift.OpenedAt, windowEnd).Scan(&payload.TopUpCents); err != nil {
		return nil, fmt.Errorf("failed to aggregate top-ups: %w", err)
	}

	beverageQuery := `
		SELECT b.name, COUNT(*), COALESCE(SUM(p.volume_ml), 0), COALESCE(SUM(p.amount_cents), 0)
		FROM pours p
		JOIN kegs k ON k.keg_id = p.keg_id
		JOIN beverages b ON b.beverage_id = k.beverage_id
		WHERE p.sync_status IN ('synced', 'reconciled')
		  AND p.poured_at >= $1 AND ($2::timestamptz IS NULL OR p.poured_at <= $2)
		GROUP BY b.name
		ORDER BY 4 DESC`
	rows, err := s.db.QueryContext(ctx, beverageQuery, shift.OpenedAt, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by beverage: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t BeverageTotals
		if err := rows.Scan(&t.BeverageName, &t.PourCount, &t.TotalVolumeML, &t.RevenueCents); err != nil {
			return nil, fmt.Errorf("failed to scan beverage totals: %w", err)
		}
		payload.ByBeverage = append(payload.ByBeverage, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beverage totals: %w", err)
	}

	tapQuery := `
		SELECT tap_id, COUNT(*), COALESCE(SUM(volume_ml), 0), COALESCE(SUM(amount_cents), 0)
		FROM pours
		WHERE sync_status IN ('synced', 'reconciled')
		  AND poured_at >= $1 AND ($2::timestamptz IS NULL OR poured_at <= $2)
		GROUP BY tap_id
		ORDER BY tap_id`
	tapRows, err := s.db.QueryContext(ctx, tapQuery, shift.OpenedAt, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by tap: %w", err)
	}
	defer tapRows.Close()
	for tapRows.Next() {
		var t TapTotals
		if err := tapRows.Scan(&t.TapID, &t.PourCount, &t.TotalVolumeML, &t.RevenueCents); err != nil {
			return nil, fmt.Errorf("failed to scan tap totals: %w", err)
		}
		payload.ByTap = append(payload.ByTap, t)
	}
	if err := tapRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tap totals: %w", err)
	}

	return payload, nil
}

func (s *reportService) ExportXLSX(ctx context.Context, shiftID string) ([]byte, error) {
	reports, err := s.shiftsRepo.ListReports(ctx, shiftID)
	if err != nil {
		return nil, err
	}

	var payload ShiftReportPayload
	if len(reports) > 0 {
		if err := json.Unmarshal(reports[0].Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode stored report: %w", err)
		}
	} else {
		report, err := s.Generate(ctx, shiftID, "X")
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(report.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode generated report: %w", err)
		}
	}

	return renderXLSX(&payload)
}

func renderXLSX(p *ShiftReportPayload) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Shift Report"
	f.SetSheetName("Sheet1", sheet)

	set := func(cell string, value interface{}) {
		f.SetCellValue(sheet, cell, value)
	}

	set("A1", "Shift")
	set("B1", p.ShiftID)
	set("A2", "Opened")
	set("B2", p.OpenedAt.Format(time.RFC3339))
	if p.ClosedAt != nil {
		set("A3", "Closed")
		set("B3", p.ClosedAt.Format(time.RFC3339))
	}
	set("A5", "Pours")
	set("B5", p.PourCount)
	set("A6", "Volume, ml")
	set("B6", p.TotalVolumeML)
	set("A7", "Revenue")
	set("B7", float64(p.RevenueCents)/100)
	set("A8", "Top-ups")
	set("B8", float64(p.TopUpCents)/100)
	set("A9", "Rejected")
	set("B9", p.RejectedCount)
	set("A10", "Manual reconciliations")
	set("B10", p.ManualCount)

	row := 12
	set(fmt.Sprintf("A%d", row), "Beverage")
	set(fmt.Sprintf("B%d", row), "Pours")
	set(fmt.Sprintf("C%d", row), "Volume, ml")
	set(fmt.Sprintf("D%d", row), "Revenue")
	for _, b := range p.ByBeverage {
		row++
		set(fmt.Sprintf("A%d", row), b.BeverageName)
		set(fmt.Sprintf("B%d", row), b.PourCount)
		set(fmt.Sprintf("C%d", row), b.TotalVolumeML)
		set(fmt.Sprintf("D%d", row), float64(b.RevenueCents)/100)
	}

	row += 2
	set(fmt.Sprintf("A%d", row), "Tap")
	set(fmt.Sprintf("B%d", row), "Pours")
	set(fmt.Sprintf("C%d", row), "Volume, ml")
	set(fmt.Sprintf("D%d", row), "Revenue")
	for _, t := range p.ByTap {
		row++
		set(fmt.Sprintf("A%d", row), t.TapID)
		set(fmt.Sprintf("B%d", row), t.PourCount)
		set(fmt.Sprintf("C%d", row), t.TotalVolumeML)
		set(fmt.Sprintf("D%d", row), float64(t.RevenueCents)/100)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
