package internal

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrapeMetrics(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.observeGeneration(AgentTypeTitle, time.Now(), nil)
	m.observeGeneration(AgentTypeTitle, time.Now(), Wrap(ErrRateLimit, "chat", nil))
	m.observeTranscription("captions", nil)
	m.observeUpload(1024)
	m.observeUpload(0)
	m.observeRequest("/api/projects", 200)
	m.eventDropped()
	m.subscriberDelta(1)

	body := scrapeMetrics(t, m)
	for _, want := range []string{
		`youpac_generations_total{agent_type="title",outcome="success"} 1`,
		`youpac_generations_total{agent_type="title",outcome="rate_limit"} 1`,
		`youpac_transcriptions_total{outcome="success",source="captions"} 1`,
		`youpac_upload_bytes_total 1024`,
		`youpac_http_requests_total{code="200",route="/api/projects"} 1`,
		`youpac_subscription_events_dropped_total 1`,
		`youpac_subscribers 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.observeGeneration(AgentTypeTitle, time.Now(), errors.New("x"))
	m.observeTranscription("whisper", nil)
	m.observeUpload(1)
	m.observeRequest("/", 500)
	m.eventDropped()
	m.subscriberDelta(-1)
}
