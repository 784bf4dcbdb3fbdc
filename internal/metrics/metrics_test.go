package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	CompositorProducersActive.Set(2)
	CompositorBuffersProduced.Add(5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "radmix_compositor_producers_active") {
		t.Error("expected producers_active gauge in scrape output")
	}
	if !strings.Contains(body, "radmix_compositor_buffers_produced_total") {
		t.Error("expected buffers_produced_total counter in scrape output")
	}
}
