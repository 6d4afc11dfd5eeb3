package triage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newClassifierServer(t *testing.T, handler http.HandlerFunc) *HTTPClassifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClassifier(HTTPClassifierConfig{BaseURL: srv.URL, Timeout: time.Second})
}

func TestHTTPClassifier_Classify(t *testing.T) {
	var got VitalSigns
	c := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/classify" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"risk_level":"Medium","confidence":0.73}`))
	})

	level, conf, err := c.Classify(context.Background(), normalVitals())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != RiskMedium || conf != 0.73 {
		t.Errorf("unexpected verdict %s %g", level, conf)
	}
	if got.HeartRate != 80 {
		t.Errorf("expected vitals to be posted, got %+v", got)
	}
}

func TestHTTPClassifier_Classify_ServerError(t *testing.T) {
	c := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"model not loaded"}`))
	})

	_, _, err := c.Classify(context.Background(), normalVitals())
	if !errors.Is(err, ErrClassifierUnavailable) {
		t.Fatalf("expected ErrClassifierUnavailable, got %v", err)
	}
}

func TestHTTPClassifier_Classify_UnknownLevel(t *testing.T) {
	c := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"risk_level":"Critical","confidence":0.9}`))
	})

	_, _, err := c.Classify(context.Background(), normalVitals())
	if !errors.Is(err, ErrUnknownRiskLevel) {
		t.Errorf("expected ErrUnknownRiskLevel, got %v", err)
	}
	if errors.Is(err, ErrClassifierUnavailable) {
		t.Errorf("a reachable classifier with a bad verdict is not unavailable: %v", err)
	}
}

func TestHTTPClassifier_UnknownLevelIsBadGateway(t *testing.T) {
	clf := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"risk_level":"Critical","confidence":0.9}`))
	})
	f := newFixture()
	h := NewHandler(NewService(clf, f.queue, f.feedback, f.agent))
	c, _ := jsonContext(echo.New(), http.MethodPost, "/", vitalsJSON(t, normalVitals()))

	expectHTTPStatus(t, h.Predict(c), http.StatusBadGateway)
	if f.queue.Len() != 0 {
		t.Error("nothing should be enqueued")
	}
}

func TestHTTPClassifier_Classify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewHTTPClassifier(HTTPClassifierConfig{BaseURL: url, Timeout: time.Second})

	_, _, err := c.Classify(context.Background(), normalVitals())
	if !errors.Is(err, ErrClassifierUnavailable) {
		t.Errorf("expected ErrClassifierUnavailable, got %v", err)
	}
}

func TestHTTPClassifier_Classify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	c := NewHTTPClassifier(HTTPClassifierConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	_, _, err := c.Classify(context.Background(), normalVitals())
	if !errors.Is(err, ErrClassifierUnavailable) {
		t.Errorf("expected ErrClassifierUnavailable, got %v", err)
	}
}
