// Package telemetry ships one event per finished turn to the metrics
// collaborator. Delivery is best effort and never slows a turn down.
package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "medchat-engine/internal/common/errors"
	commonhttp "medchat-engine/internal/common/http"
	"medchat-engine/internal/common/metrics"
	"medchat-engine/internal/models"
)

const (
	Name = "telemetry"

	eventType = "chat_processing"

	DefaultQueueSize = 256
	DefaultTimeout   = 2 * time.Second
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Emitter accepts turn events. Emit never blocks and never fails.
type Emitter interface {
	Emit(event models.TelemetryEvent)
}

type NopEmitter struct{}

func (NopEmitter) Emit(models.TelemetryEvent) {}

type Config struct {
	MetricsURL  string
	ServiceName string
	Timeout     time.Duration
	QueueSize   int
}

// Payload is the ingest body understood by the metrics service.
type Payload struct {
	ServiceName           string             `json:"service_name"`
	EventType             string             `json:"event_type"`
	Timestamp             time.Time          `json:"timestamp"`
	RequestID             string             `json:"request_id"`
	Action                models.Action      `json:"action"`
	Category              string             `json:"category,omitempty"`
	AnswerType            models.AnswerType  `json:"answer_type,omitempty"`
	Language              models.Language    `json:"language,omitempty"`
	LatencyMs             int64              `json:"latency_ms"`
	ProcessingTimeSeconds float64            `json:"processing_time_seconds"`
	TokensUsed            int                `json:"tokens_used"`
	TokenUsage            *models.TokenUsage `json:"token_usage,omitempty"`
	Success               bool               `json:"success"`
	Metadata              PayloadMetadata    `json:"metadata"`
}

type PayloadMetadata struct {
	MessageLength int           `json:"message_length"`
	Intent        models.Intent `json:"intent,omitempty"`
	ErrorCode     string        `json:"error_code,omitempty"`
}

// NewPayload converts a turn event to the ingest body.
func NewPayload(serviceName string, e models.TelemetryEvent) Payload {
	p := Payload{
		ServiceName:           serviceName,
		EventType:             eventType,
		Timestamp:             e.Timestamp,
		RequestID:             e.RequestID,
		Action:                e.Action,
		Category:              e.Category,
		AnswerType:            e.AnswerType,
		Language:              e.Language,
		LatencyMs:             e.Latency.Milliseconds(),
		ProcessingTimeSeconds: e.Latency.Seconds(),
		TokenUsage:            e.TokenUsage,
		Success:               e.Success,
		Metadata: PayloadMetadata{
			MessageLength: e.MessageLength,
			Intent:        e.Intent,
			ErrorCode:     e.ErrorCode,
		},
	}
	if e.TokenUsage != nil {
		p.TokensUsed = e.TokenUsage.Total
	}
	return p
}

// HTTPEmitter queues events and posts them from a single goroutine. A full
// queue drops the event.
type HTTPEmitter struct {
	config *Config
	client *commonhttp.Client
	url    string
	queue  chan models.TelemetryEvent
	done   chan struct{}
	logger Logger

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewHTTPEmitter(config *Config, log Logger) *HTTPEmitter {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	e := &HTTPEmitter{
		config: config,
		client: commonhttp.NewClient(config.Timeout),
		url:    strings.TrimRight(config.MetricsURL, "/") + "/ingest",
		queue:  make(chan models.TelemetryEvent, config.QueueSize),
		done:   make(chan struct{}),
		logger: log.With(map[string]interface{}{
			"component": Name,
		}),
	}
	go e.run()
	return e
}

func (e *HTTPEmitter) Emit(event models.TelemetryEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		metrics.TelemetryEvents.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case e.queue <- event:
	default:
		metrics.TelemetryEvents.WithLabelValues("dropped").Inc()
		e.logger.Warn("telemetry queue full, event dropped", map[string]interface{}{
			"requestId": event.RequestID,
		})
	}
}

func (e *HTTPEmitter) run() {
	defer close(e.done)
	for event := range e.queue {
		e.send(event)
	}
}

func (e *HTTPEmitter) send(event models.TelemetryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	if err := e.client.PostJSON(ctx, e.url, nil, NewPayload(e.config.ServiceName, event), nil); err != nil {
		metrics.TelemetryEvents.WithLabelValues("failed").Inc()
		stdErr := apperrors.NewTelemetryEmitFailedError(err)
		e.logger.Warn("telemetry emit failed", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"requestId": event.RequestID,
			"error":     err.Error(),
		})
		return
	}
	metrics.TelemetryEvents.WithLabelValues("sent").Inc()
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (e *HTTPEmitter) Close(ctx context.Context) error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()
	})
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		e.logger.Warn("telemetry drain interrupted", map[string]interface{}{
			"pending": len(e.queue),
		})
		return ctx.Err()
	}
}
