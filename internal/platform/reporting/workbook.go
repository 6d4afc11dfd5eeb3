package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	SheetQueue    = "Queue"
	SheetFeedback = "Feedback"
	SheetSummary  = "Summary"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// QueueRow is one queue entry as exported.
type QueueRow struct {
	Position      int
	PatientID     string
	RiskLevel     string
	Confidence    float64
	PriorityScore float64
	RLAction      string
	RLAdjustment  float64
	WaitMinutes   int
	AdmittedAt    time.Time
}

// FeedbackRow is one audit log record as exported.
type FeedbackRow struct {
	PatientID           string
	ActualWaitMinutes   int
	Satisfaction        float64
	ResourceUtilization float64
	Applied             bool
	RecordedAt          time.Time
}

// Metric is a single named value on the summary sheet.
type Metric struct {
	Name  string
	Value interface{}
}

var queueHeader = []string{
	"Position", "Patient ID", "Risk Level", "Confidence", "Priority Score",
	"RL Action", "RL Adjustment", "Est. Wait (min)", "Admitted At",
}

var queueWidths = []float64{10, 38, 12, 12, 15, 14, 14, 16, 22}

var feedbackHeader = []string{
	"Patient ID", "Actual Wait (min)", "Satisfaction", "Resource Utilization", "Applied", "Recorded At",
}

var feedbackWidths = []float64{38, 18, 14, 22, 10, 22}

// Workbook renders the queue, feedback log and summary metrics as an xlsx
// document.
func Workbook(queue []QueueRow, feedback []FeedbackRow, summary []Metric) ([]byte, error) {
	f := excelize.NewFile()

	header, err := headerStyle(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	queueData := make([][]interface{}, 0, len(queue))
	for _, r := range queue {
		queueData = append(queueData, []interface{}{
			r.Position, r.PatientID, r.RiskLevel, r.Confidence, r.PriorityScore,
			r.RLAction, r.RLAdjustment, r.WaitMinutes, formatTime(r.AdmittedAt),
		})
	}
	feedbackData := make([][]interface{}, 0, len(feedback))
	for _, r := range feedback {
		applied := "No"
		if r.Applied {
			applied = "Yes"
		}
		feedbackData = append(feedbackData, []interface{}{
			r.PatientID, r.ActualWaitMinutes, r.Satisfaction, r.ResourceUtilization, applied, formatTime(r.RecordedAt),
		})
	}
	summaryData := make([][]interface{}, 0, len(summary))
	for _, m := range summary {
		summaryData = append(summaryData, []interface{}{m.Name, m.Value})
	}

	sheets := []struct {
		name   string
		header []string
		widths []float64
		rows   [][]interface{}
	}{
		{SheetQueue, queueHeader, queueWidths, queueData},
		{SheetFeedback, feedbackHeader, feedbackWidths, feedbackData},
		{SheetSummary, []string{"Metric", "Value"}, []float64{28, 18}, summaryData},
	}
	for i, s := range sheets {
		// The default sheet becomes the first, active one.
		if i == 0 {
			err = f.SetSheetName("Sheet1", s.name)
		} else {
			_, err = f.NewSheet(s.name)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s.name, s.header, s.widths, s.rows, header); err != nil {
			f.Close()
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func headerStyle(f *excelize.File) (int, error) {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create header style: %w", err)
	}
	return style, nil
}

func writeSheet(f *excelize.File, sheet string, header []string, widths []float64, rows [][]interface{}, style int) error {
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("set header %s!%s: %w", sheet, cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("style header %s!%s: %w", sheet, cell, err)
		}
		if col < len(widths) {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return err
			}
			if err := f.SetColWidth(sheet, name, name, widths[col]); err != nil {
				return fmt.Errorf("set width %s!%s: %w", sheet, name, err)
			}
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
