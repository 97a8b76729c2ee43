package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"medchat-engine/internal/common/metrics"
	"medchat-engine/internal/models"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return l
}

// ==========================
// Test Helpers
// ==========================

func sampleEvent(id string) models.TelemetryEvent {
	return models.TelemetryEvent{
		Timestamp:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		RequestID:     id,
		Action:        models.ActionAnswer,
		Intent:        models.IntentQuestionAnswering,
		Category:      "dental",
		AnswerType:    models.AnswerSpecificBenefits,
		Language:      models.LanguageEnglish,
		Latency:       1500 * time.Millisecond,
		TokenUsage:    &models.TokenUsage{Prompt: 10, Completion: 5, Total: 15},
		Success:       true,
		MessageLength: 34,
	}
}

func counter(status string) float64 {
	return testutil.ToFloat64(metrics.TelemetryEvents.WithLabelValues(status))
}

func closeEmitter(t *testing.T, e *HTTPEmitter) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
}

// ==========================
// Tests
// ==========================

func TestHTTPEmitter_Delivers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	received := make(chan Payload, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ingest", r.URL.Path)
		var p Payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sent := counter("sent")
	e := NewHTTPEmitter(&Config{MetricsURL: server.URL + "/", ServiceName: "chat-service"}, NewTestLogger(t))
	e.Emit(sampleEvent("r1"))
	e.Emit(sampleEvent("r2"))
	closeEmitter(t, e)

	require.Len(t, received, 2)
	p := <-received
	assert.Equal(t, "r1", p.RequestID)
	assert.Equal(t, "chat-service", p.ServiceName)
	assert.Equal(t, "chat_processing", p.EventType)
	assert.Equal(t, int64(1500), p.LatencyMs)
	assert.InDelta(t, 1.5, p.ProcessingTimeSeconds, 0.0001)
	assert.Equal(t, 15, p.TokensUsed)
	assert.Equal(t, 34, p.Metadata.MessageLength)
	assert.Equal(t, models.IntentQuestionAnswering, p.Metadata.Intent)
	assert.Equal(t, float64(2), counter("sent")-sent)
}

func TestHTTPEmitter_FailuresAreSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	failed := counter("failed")
	e := NewHTTPEmitter(&Config{MetricsURL: server.URL}, NewTestLogger(t))
	e.Emit(sampleEvent("r1"))
	closeEmitter(t, e)

	assert.Equal(t, float64(1), counter("failed")-failed)
}

func TestHTTPEmitter_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	arrived := make(chan struct{}, 4)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dropped := counter("dropped")
	e := NewHTTPEmitter(&Config{MetricsURL: server.URL, QueueSize: 1, Timeout: 5 * time.Second}, NewTestLogger(t))

	e.Emit(sampleEvent("in-flight"))
	<-arrived
	e.Emit(sampleEvent("queued"))
	e.Emit(sampleEvent("dropped"))
	assert.Equal(t, float64(1), counter("dropped")-dropped)

	close(release)
	closeEmitter(t, e)

	e.Emit(sampleEvent("after-close"))
	assert.Equal(t, float64(2), counter("dropped")-dropped)
}

func TestHTTPEmitter_CloseHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-release
	}))
	defer server.Close()

	e := NewHTTPEmitter(&Config{MetricsURL: server.URL, Timeout: 5 * time.Second}, NewTestLogger(t))
	e.Emit(sampleEvent("slow"))
	<-arrived

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)

	close(release)
	closeEmitter(t, e)
}

func TestNewPayload_WithoutUsage(t *testing.T) {
	ev := sampleEvent("r1")
	ev.TokenUsage = nil
	ev.Success = false
	ev.Action = models.ActionError
	ev.ErrorCode = "UPSTREAM_TIMEOUT"

	p := NewPayload("svc", ev)
	assert.Equal(t, 0, p.TokensUsed)
	assert.Nil(t, p.TokenUsage)
	assert.False(t, p.Success)
	assert.Equal(t, "UPSTREAM_TIMEOUT", p.Metadata.ErrorCode)
	assert.Equal(t, models.ActionError, p.Action)
}

func TestNopEmitter(t *testing.T) {
	var e Emitter = NopEmitter{}
	assert.NotPanics(t, func() { e.Emit(sampleEvent("r1")) })
}
