package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/urza/Yap/internal/chat"
)

var _ chat.Recorder = (*Recorder)(nil)

func newTestTelemetry(t *testing.T) (*Telemetry, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := InitMetrics(mp)
	if err != nil {
		t.Fatalf("failed to init metrics: %v", err)
	}
	return &Telemetry{config: NewConfig(), meterProvider: mp, metrics: metrics}, reader
}

// sum adds up every data point of the named int64 sum instrument.
func sum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecorderCountsEngineActivity(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	rec := tel.Recorder()

	rec.MessageSent("room")
	rec.MessageSent("dm")
	rec.EventPublished("message_received")
	rec.SubscriberFault("session:abc")
	rec.MirrorDropped("persist_message")
	rec.MirrorFailed("persist_message")
	rec.SessionsChanged(2)
	rec.SessionsChanged(-1)
	rec.ConnectionsChanged(1)

	cases := map[string]int64{
		"yap.messages.sent":            2,
		"yap.events.published":         1,
		"yap.events.subscriber_faults": 1,
		"yap.mirror.dropped":           1,
		"yap.mirror.failures":          1,
		"yap.sessions.active":          1,
		"yap.realtime.connections":     1,
	}
	for name, want := range cases {
		if got := sum(t, reader, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.MessageSent("room")
	rec.ConnectionsChanged(1)
	NewRecorder(nil).MirrorFailed("delete_message")
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	tel, reader := newTestTelemetry(t)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(tel, "test"))
	r.Get("/api/v1/channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("[]"))
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/channels/c1/messages", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/missing", nil))

	if got := sum(t, reader, "http.server.request_count"); got != 4 {
		t.Errorf("request count = %d, want 4", got)
	}
}

func TestMiddlewareWithoutTelemetry(t *testing.T) {
	handler := HTTPMiddleware(nil, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", w.Code)
	}
}
