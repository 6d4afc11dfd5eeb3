package triage

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/pkg/pagination"
)

const defaultResourceUtilization = 0.5

// patientIDHeader names the patient a write acted on, for the audit log.
const patientIDHeader = "X-Patient-ID"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read and intake endpoints – admin, physician, nurse
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	readGroup.POST("/triage/predict", h.Predict)
	readGroup.GET("/queue", h.GetQueue)
	readGroup.POST("/queue/next", h.NextPatient)
	readGroup.POST("/feedback", h.RecordFeedback)
	readGroup.GET("/feedback", h.ListFeedback)
	readGroup.GET("/feedback/stats", h.FeedbackStats)
	readGroup.GET("/rl/qtable", h.GetQTable)

	// Queue maintenance – admin only
	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/queue/reschedule", h.Reschedule)
	adminGroup.DELETE("/queue", h.ClearQueue)
}

// PredictResponse is returned after a patient is triaged and admitted.
type PredictResponse struct {
	PatientID            uuid.UUID  `json:"patient_id"`
	RiskLevel            RiskLevel  `json:"risk_level"`
	Confidence           float64    `json:"confidence"`
	PriorityScore        float64    `json:"priority_score"`
	FinalPriority        float64    `json:"final_priority"`
	QueuePosition        int        `json:"queue_position"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	Timestamp            time.Time  `json:"timestamp"`
	Details              VitalSigns `json:"details"`
}

// QueueItem is the public view of a queue entry. PriorityScore is the
// clinical score and never negative; FinalPriority adds the RL adjustment
// and is what the queue sorts on.
type QueueItem struct {
	PatientID            uuid.UUID `json:"patient_id"`
	RiskLevel            RiskLevel `json:"risk_level"`
	Confidence           float64   `json:"confidence"`
	PriorityScore        float64   `json:"priority_score"`
	FinalPriority        float64   `json:"final_priority"`
	QueuePosition        int       `json:"queue_position"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	RLAction             *string   `json:"rl_action,omitempty"`
	RLAdjustment         float64   `json:"rl_adjustment"`
	Timestamp            time.Time `json:"timestamp"`
}

func newQueueItem(e QueueEntry) QueueItem {
	return QueueItem{
		PatientID:            e.ID,
		RiskLevel:            e.Assessment.RiskLevel,
		Confidence:           e.Assessment.Confidence,
		PriorityScore:        e.PriorityScore,
		FinalPriority:        e.FinalPriority(),
		QueuePosition:        e.QueuePosition,
		EstimatedWaitMinutes: e.EstimatedWaitMinutes,
		RLAction:             e.RLAction,
		RLAdjustment:         e.RLAdjustment,
		Timestamp:            e.Assessment.CreatedAt,
	}
}

// FeedbackRequest carries an observed outcome. Pointers distinguish absent
// fields from zero values.
type FeedbackRequest struct {
	PatientID           string   `json:"patient_id"`
	ActualWaitMinutes   *int     `json:"actual_wait_minutes"`
	Satisfaction        *float64 `json:"satisfaction_score"`
	ResourceUtilization *float64 `json:"resource_utilization"`
}

func (r FeedbackRequest) outcome() (uuid.UUID, Outcome, error) {
	id, err := uuid.Parse(r.PatientID)
	if err != nil {
		return uuid.Nil, Outcome{}, errors.New("invalid patient_id")
	}
	if r.ActualWaitMinutes == nil {
		return uuid.Nil, Outcome{}, errors.New("actual_wait_minutes is required")
	}
	if *r.ActualWaitMinutes < 0 {
		return uuid.Nil, Outcome{}, errors.New("actual_wait_minutes must be >= 0")
	}
	if r.Satisfaction == nil {
		return uuid.Nil, Outcome{}, errors.New("satisfaction_score is required")
	}
	if s := *r.Satisfaction; s < 0 || s > 1 {
		return uuid.Nil, Outcome{}, errors.New("satisfaction_score must be between 0 and 1")
	}
	util := defaultResourceUtilization
	if r.ResourceUtilization != nil {
		util = *r.ResourceUtilization
		if util < 0 || util > 1 {
			return uuid.Nil, Outcome{}, errors.New("resource_utilization must be between 0 and 1")
		}
	}
	return id, Outcome{
		ActualWaitMinutes:   *r.ActualWaitMinutes,
		Satisfaction:        *r.Satisfaction,
		ResourceUtilization: util,
	}, nil
}

// -- Triage --

func (h *Handler) Predict(c echo.Context) error {
	var v VitalSigns
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.Admit(c.Request().Context(), v)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(patientIDHeader, entry.ID.String())
	return c.JSON(http.StatusCreated, PredictResponse{
		PatientID:            entry.ID,
		RiskLevel:            entry.Assessment.RiskLevel,
		Confidence:           entry.Assessment.Confidence,
		PriorityScore:        entry.PriorityScore,
		FinalPriority:        entry.FinalPriority(),
		QueuePosition:        entry.QueuePosition,
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		Timestamp:            entry.Assessment.CreatedAt,
		Details:              entry.Assessment.Vitals,
	})
}

// -- Queue --

func (h *Handler) GetQueue(c echo.Context) error {
	entries := h.svc.Snapshot()
	items := make([]QueueItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, newQueueItem(e))
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) NextPatient(c echo.Context) error {
	entry, err := h.svc.Next(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(patientIDHeader, entry.ID.String())
	return c.JSON(http.StatusOK, newQueueItem(entry))
}

func (h *Handler) Reschedule(c echo.Context) error {
	counts := h.svc.Reschedule(c.Request().Context())
	total := 0
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":               fmt.Sprintf("updated priorities for %d patients", total),
		"high_priority_count":   counts[RiskHigh],
		"medium_priority_count": counts[RiskMedium],
		"low_priority_count":    counts[RiskLow],
	})
}

func (h *Handler) ClearQueue(c echo.Context) error {
	n := h.svc.Clear(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{"removed": n})
}

// -- Feedback --

func (h *Handler) RecordFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, outcome, err := req.outcome()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.RecordFeedback(c.Request().Context(), id, outcome)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(patientIDHeader, rec.PatientID.String())
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"patient_id":  rec.PatientID,
		"applied":     rec.Applied,
		"recorded_at": rec.RecordedAt,
	})
}

func (h *Handler) ListFeedback(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	if patientID := c.QueryParam("patient_id"); patientID != "" {
		pid, err := uuid.Parse(patientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		items, total, err := h.svc.ListFeedbackByPatient(ctx, pid, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	items, total, err := h.svc.ListFeedback(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) FeedbackStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.FeedbackStats())
}

// -- RL --

func (h *Handler) GetQTable(c echo.Context) error {
	table := h.svc.QTable()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"states":  len(table),
		"epsilon": h.svc.Epsilon(),
		"q_table": table,
	})
}

// httpError maps service errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidVitals), errors.Is(err, ErrInvalidOutcome):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEmptyQueue):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrClassifierUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrUnknownRiskLevel):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
