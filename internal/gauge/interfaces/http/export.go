package http

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	gaugeapp "energy-gauge/internal/gauge/application"
	severity "energy-gauge/internal/severity/domain"
)

const (
	gaugeCenterX = 105.0
	gaugeCenterY = 95.0
	gaugeRadius  = 45.0
	gaugeWidth   = 8.0
)

type rgb struct{ r, g, b int }

var themeColors = map[string]rgb{
	"var(--error-color)":   {219, 68, 55},
	"var(--warning-color)": {255, 166, 0},
	"var(--success-color)": {67, 160, 71},
	"var(--info-color)":    {3, 155, 229},
}

var trackColor = rgb{224, 224, 224}

// BuildReportPDF renders a one page gauge report with the drawn gauge.
func BuildReportPDF(report gaugeapp.Report) ([]byte, error) {
	reading := report.Reading
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(reportTitle(reading), false)
	pdf.SetCreationDate(report.GeneratedAt)
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, reportTitle(reading))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Card: %s", reading.CardID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Gauge: %s", reading.Gauge))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s", formatWindow(reading.Start, reading.End)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)

	drawGauge(pdf, report)

	pdf.SetXY(10, gaugeCenterY+8)
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, displayValue(reading), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	if reading.Status == gaugeapp.StatusOK {
		pdf.CellFormat(190, 6, fmt.Sprintf("Band: %s", reading.Label), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	if m := reading.Metrics; m != nil {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(100, 6, "Metric", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, "Value", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, row := range metricRows(reading) {
			pdf.CellFormat(100, 6, row.label, "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%.3f %s", row.value, row.unit), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	if len(report.Rows) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(30, 6, "Source", "1", 0, "C", false, 0, "")
		pdf.CellFormat(100, 6, "Statistic", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, "Growth", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, row := range report.Rows {
			pdf.CellFormat(30, 6, string(row.Source), "1", 0, "L", false, 0, "")
			pdf.CellFormat(100, 6, row.Name, "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 6, formatGrowth(row), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawGauge(pdf *gofpdf.Fpdf, report gaugeapp.Report) {
	reading := report.Reading
	pdf.SetLineCapStyle("butt")
	pdf.SetLineWidth(gaugeWidth)
	setDraw(pdf, trackColor)
	pdf.Arc(gaugeCenterX, gaugeCenterY, gaugeRadius, gaugeRadius, 0, 0, 180, "D")

	c := report.Card
	span := c.Max - c.Min
	if span <= 0 {
		return
	}
	fraction := func(v float64) float64 {
		return (c.Clamp(v) - c.Min) / span
	}

	if reading.Needle {
		levels := levelsFor(report)
		for i, level := range levels {
			to := c.Max
			if i+1 < len(levels) {
				to = levels[i+1].Level
			}
			from, until := fraction(level.Level), fraction(to)
			if until <= from {
				continue
			}
			setDraw(pdf, parseColor(level.Stroke))
			pdf.Arc(gaugeCenterX, gaugeCenterY, gaugeRadius, gaugeRadius, 0, 180-180*until, 180-180*from, "D")
		}
		if reading.Status == gaugeapp.StatusOK {
			angle := (180 - 180*fraction(reading.Value)) * math.Pi / 180
			pdf.SetLineWidth(1.2)
			pdf.SetLineCapStyle("round")
			setDraw(pdf, rgb{33, 33, 33})
			pdf.Line(gaugeCenterX, gaugeCenterY,
				gaugeCenterX+(gaugeRadius+2)*math.Cos(angle), gaugeCenterY-(gaugeRadius+2)*math.Sin(angle))
		}
	} else if reading.Status == gaugeapp.StatusOK {
		p := fraction(reading.Value)
		if p > 0 {
			setDraw(pdf, parseColor(reading.Color))
			pdf.Arc(gaugeCenterX, gaugeCenterY, gaugeRadius, gaugeRadius, 0, 180-180*p, 180, "D")
		}
	}
	pdf.SetLineWidth(0.2)
	setDraw(pdf, rgb{0, 0, 0})
}

func levelsFor(report gaugeapp.Report) []severity.Level {
	if len(report.Reading.Levels) > 0 {
		return report.Reading.Levels
	}
	if report.Card.Severity != nil {
		return report.Card.Severity.Levels()
	}
	return nil
}

func setDraw(pdf *gofpdf.Fpdf, c rgb) {
	pdf.SetDrawColor(c.r, c.g, c.b)
}

// parseColor resolves theme variables and #rrggbb strings; anything else is grey.
func parseColor(value string) rgb {
	if c, ok := themeColors[value]; ok {
		return c
	}
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 6 {
		if n, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return rgb{int(n >> 16 & 0xff), int(n >> 8 & 0xff), int(n & 0xff)}
		}
	}
	return rgb{158, 158, 158}
}

// BuildReportXLSX renders the gauge report as a workbook with a summary,
// metrics and per-statistic sheet.
func BuildReportXLSX(report gaugeapp.Report) ([]byte, error) {
	reading := report.Reading
	f := excelize.NewFile()
	summarySheet := "summary"
	metricsSheet := "metrics"
	statsSheet := "statistics"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(metricsSheet)
	f.NewSheet(statsSheet)

	_ = f.SetCellValue(summarySheet, "A1", reportTitle(reading))
	_ = f.SetCellValue(summarySheet, "A3", "Card")
	_ = f.SetCellValue(summarySheet, "B3", reading.CardID)
	_ = f.SetCellValue(summarySheet, "A4", "Gauge")
	_ = f.SetCellValue(summarySheet, "B4", string(reading.Gauge))
	_ = f.SetCellValue(summarySheet, "A5", "Status")
	_ = f.SetCellValue(summarySheet, "B5", string(reading.Status))
	_ = f.SetCellValue(summarySheet, "A6", "Value")
	if reading.Status == gaugeapp.StatusOK {
		_ = f.SetCellValue(summarySheet, "B6", reading.Value)
	} else {
		_ = f.SetCellValue(summarySheet, "B6", reading.Message)
	}
	_ = f.SetCellValue(summarySheet, "A7", "Unit")
	_ = f.SetCellValue(summarySheet, "B7", reading.Unit)
	_ = f.SetCellValue(summarySheet, "A8", "Band")
	_ = f.SetCellValue(summarySheet, "B8", reading.Label)
	_ = f.SetCellValue(summarySheet, "A9", "Window")
	_ = f.SetCellValue(summarySheet, "B9", formatWindow(reading.Start, reading.End))
	_ = f.SetCellValue(summarySheet, "A10", "Generated")
	_ = f.SetCellValue(summarySheet, "B10", report.GeneratedAt.Format(time.RFC3339))

	_ = f.SetCellValue(metricsSheet, "A1", "Metric")
	_ = f.SetCellValue(metricsSheet, "B1", "Value")
	_ = f.SetCellValue(metricsSheet, "C1", "Unit")
	for i, row := range metricRows(reading) {
		r := i + 2
		_ = f.SetCellValue(metricsSheet, fmt.Sprintf("A%d", r), row.label)
		_ = f.SetCellValue(metricsSheet, fmt.Sprintf("B%d", r), row.value)
		_ = f.SetCellValue(metricsSheet, fmt.Sprintf("C%d", r), row.unit)
	}

	_ = f.SetCellValue(statsSheet, "A1", "Source")
	_ = f.SetCellValue(statsSheet, "B1", "Statistic")
	_ = f.SetCellValue(statsSheet, "C1", "Name")
	_ = f.SetCellValue(statsSheet, "D1", "Growth")
	_ = f.SetCellValue(statsSheet, "E1", "Unit")
	for i, row := range report.Rows {
		r := i + 2
		_ = f.SetCellValue(statsSheet, fmt.Sprintf("A%d", r), string(row.Source))
		_ = f.SetCellValue(statsSheet, fmt.Sprintf("B%d", r), row.StatisticID)
		_ = f.SetCellValue(statsSheet, fmt.Sprintf("C%d", r), row.Name)
		if row.Growth != nil {
			_ = f.SetCellValue(statsSheet, fmt.Sprintf("D%d", r), *row.Growth)
		}
		_ = f.SetCellValue(statsSheet, fmt.Sprintf("E%d", r), row.Unit)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type metricRow struct {
	label string
	value float64
	unit  string
}

func metricRows(reading gaugeapp.Reading) []metricRow {
	m := reading.Metrics
	if m == nil {
		return nil
	}
	return []metricRow{
		{"Solar production", m.TotalSolarProduction, "kWh"},
		{"Returned to grid", m.ProductionReturnedToGrid, "kWh"},
		{"Consumed from grid", m.ConsumptionFromGrid, "kWh"},
		{"Battery discharge", m.ConsumptionFromBattery, "kWh"},
		{"Battery charge", m.ProductionToBattery, "kWh"},
		{"Total consumption", m.TotalConsumption, "kWh"},
		{"Self-supplied consumption", m.SelfConsumption, "kWh"},
		{"Consumed solar", m.ConsumedSolar, "kWh"},
		{"Autarky", m.Autarky, "%"},
		{"Self-consumption", m.SelfConsumptionPercentage, "%"},
	}
}

func reportTitle(reading gaugeapp.Reading) string {
	if reading.Name != "" {
		return reading.Name + " Report"
	}
	return "Energy Gauge Report"
}

func displayValue(reading gaugeapp.Reading) string {
	if reading.Status != gaugeapp.StatusOK {
		return reading.Message
	}
	return reading.Formatted + " " + reading.Unit
}

func formatWindow(start, end time.Time) string {
	if start.IsZero() {
		return ""
	}
	if end.IsZero() {
		return start.Format(time.RFC3339) + " - now"
	}
	return start.Format(time.RFC3339) + " - " + end.Format(time.RFC3339)
}

func formatGrowth(row gaugeapp.ReportRow) string {
	if row.Growth == nil {
		return "-"
	}
	return strings.TrimSpace(fmt.Sprintf("%.3f %s", *row.Growth, row.Unit))
}
