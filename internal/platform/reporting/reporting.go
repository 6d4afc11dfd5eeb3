package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/auth"
)

// Source supplies the data behind every report.
type Source interface {
	QueueRows(ctx context.Context) []QueueRow
	FeedbackRows(ctx context.Context) ([]FeedbackRow, error)
	Metrics(ctx context.Context) []Metric
}

// SummaryReport is the JSON rendition of the summary sheet.
type SummaryReport struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Metrics     map[string]interface{} `json:"metrics"`
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	src Source
	now func() time.Time
}

func NewHandler(src Source) *Handler {
	return &Handler{src: src, now: time.Now}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole("admin", "physician"))
	reportGroup.GET("/summary", h.Summary)
	reportGroup.GET("/triage.xlsx", h.ExportWorkbook)
}

// Summary returns the current queue and learning metrics.
func (h *Handler) Summary(c echo.Context) error {
	metrics := h.src.Metrics(c.Request().Context())
	out := SummaryReport{
		GeneratedAt: h.now().UTC(),
		Metrics:     make(map[string]interface{}, len(metrics)),
	}
	for _, m := range metrics {
		out.Metrics[m.Name] = m.Value
	}
	return c.JSON(http.StatusOK, out)
}

// ExportWorkbook streams the queue snapshot, feedback log and summary as a
// spreadsheet.
func (h *Handler) ExportWorkbook(c echo.Context) error {
	ctx := c.Request().Context()
	feedback, err := h.src.FeedbackRows(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("load feedback: %v", err))
	}
	data, err := Workbook(h.src.QueueRows(ctx), feedback, h.src.Metrics(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("generate workbook: %v", err))
	}

	name := fmt.Sprintf("triage-%s.xlsx", h.now().UTC().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", name))
	return c.Blob(http.StatusOK, ContentTypeXLSX, data)
}
