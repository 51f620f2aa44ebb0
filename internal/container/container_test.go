package container

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go-cane-inspector/internal/config"
	"go-cane-inspector/internal/controller"
	"go-cane-inspector/internal/observer"
)

func TestNewContainer(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","models_available":["detection"]}`))
	}))
	defer upstream.Close()

	cfg := config.Default()
	cfg.Endpoint = upstream.URL
	cfg.LogLevel = "error"

	rec := observer.NewRecordingObserver("rec")
	c, err := NewContainer(cfg, rec)
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	if c.Config() != cfg {
		t.Error("Expected container to keep the given config")
	}
	if c.Controller().State() != controller.StateIdle {
		t.Errorf("Expected idle controller, got %s", c.Controller().State())
	}
	if c.Controller().Parameters() != cfg.Defaults {
		t.Errorf("Expected default parameters from config, got %+v", c.Controller().Parameters())
	}

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /health, got %d", w.Code)
	}

	if err := c.Controller().SetConfidenceThreshold(0.5); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rec.Events()) != 1 || rec.Events()[0].EventType != observer.ParametersChanged {
		t.Errorf("Expected extra observer to receive events, got %+v", rec.Events())
	}
}
