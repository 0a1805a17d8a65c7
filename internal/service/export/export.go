// Package export renders a run's analysis records for downstream table,
// listing and figure tooling. Column names follow the analysis-dataset
// convention consumed by those tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/pkg/metrics"
)

var columns = []string{
	"STUDYID", "USUBJID", "PARAMCD", "PARAM", "VISIT", "ADT",
	"AVAL", "AVALC", "ADY", "ABLFL", "BASE", "CHG", "PCHG",
}

const sheetName = "ADLB"

type Exporter struct {
	metrics *metrics.Metrics
}

func NewExporter(m *metrics.Metrics) *Exporter {
	return &Exporter{metrics: m}
}

// WriteCSV streams the record set as CSV. Absent values render as empty
// cells, never as zero or a sentinel.
func (e *Exporter) WriteCSV(w io.Writer, records []model.AnalysisRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rec := range records {
		if err := cw.Write(row(rec)); err != nil {
			return fmt.Errorf("failed to write record %s: %w", rec.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	if e.metrics != nil {
		e.metrics.ExportsGenerated.WithLabelValues("csv").Inc()
	}
	return nil
}

// WriteXLSX renders the record set as a styled workbook.
func (e *Exporter) WriteXLSX(w io.Writer, records []model.AnalysisRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(sheetName, "A1", endHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "E", 18); err != nil {
		return fmt.Errorf("failed to set column widths: %w", err)
	}

	for i, rec := range records {
		for j, value := range row(rec) {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to write record %s: %w", rec.ID, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	if e.metrics != nil {
		e.metrics.ExportsGenerated.WithLabelValues("xlsx").Inc()
	}
	return nil
}

func row(rec model.AnalysisRecord) []string {
	return []string{
		rec.StudyID,
		rec.SubjectID,
		rec.ParamCode,
		rec.Param,
		rec.VisitName,
		formatDate(rec.ObsDate),
		formatFloat(rec.Value),
		rec.CharValue,
		formatInt(rec.StudyDay),
		formatFlag(rec.IsBaseline),
		formatFloat(rec.BaselineValue),
		formatFloat(rec.ChangeFromBaseline),
		formatFloat(rec.PercentChangeFromBaseline),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFlag(b bool) string {
	if b {
		return "Y"
	}
	return ""
}
