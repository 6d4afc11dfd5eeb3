package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClassifierConfig configures the remote classifier client.
type HTTPClassifierConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

type classifyResponse struct {
	RiskLevel  string  `json:"risk_level"`
	Confidence float64 `json:"confidence"`
}

type classifyError struct {
	Detail string `json:"detail"`
}

// HTTPClassifier calls a model server exposing POST /classify.
type HTTPClassifier struct {
	client *resty.Client
}

func NewHTTPClassifier(cfg HTTPClassifierConfig) *HTTPClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPClassifier{client: client}
}

// Classify posts the vitals and parses the model's verdict. Transport and
// server failures are ErrClassifierUnavailable; a verdict outside the known
// levels is ErrUnknownRiskLevel.
func (c *HTTPClassifier) Classify(ctx context.Context, v VitalSigns) (RiskLevel, float64, error) {
	var out classifyResponse
	var apiErr classifyError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(v).
		SetResult(&out).
		SetError(&apiErr).
		Post("/classify")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if resp.IsError() {
		return 0, 0, fmt.Errorf("%w: status %d: %s", ErrClassifierUnavailable, resp.StatusCode(), apiErr.Detail)
	}

	level, err := ParseRiskLevel(out.RiskLevel)
	if err != nil {
		return 0, 0, fmt.Errorf("classifier verdict: %w", err)
	}
	return level, out.Confidence, nil
}
