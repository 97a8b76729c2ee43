package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat-engine/internal/models"
)

// TestLogger implements the Logger interface for testing
type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	return all
}

func createTestClient(t *testing.T, baseURL string) *Client {
	return NewClient(&Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, NewTestLogger(t))
}

func TestClient_ExtractProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, extractPath, r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ExtractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "אני במכבי זהב", req.Message)
		assert.Equal(t, models.LanguageHebrew, req.Language)

		_ = json.NewEncoder(w).Encode(ExtractResponse{
			Fields: map[string]string{"provider": "מכבי", "tier": "זהב"},
		})
	}))
	defer server.Close()

	out, err := createTestClient(t, server.URL).ExtractProfile(context.Background(), &ExtractRequest{
		Message:  "אני במכבי זהב",
		Language: models.LanguageHebrew,
		Fields:   models.ProfileFields,
	})
	require.NoError(t, err)
	assert.Equal(t, "מכבי", out.Fields["provider"])
	assert.False(t, out.Correction)
}

func TestClient_ClassifyIntent_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(ClassifyResponse{
			Intent: "question_answering", AnswerType: "eligibility", Category: "מרפאות שיניים", Confidence: 0.9,
		})
	}))
	defer server.Close()

	out, err := createTestClient(t, server.URL).ClassifyIntent(context.Background(), &ClassifyRequest{Message: "am I eligible?"})
	require.NoError(t, err)
	assert.Equal(t, "eligibility", out.AnswerType)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		ctxWait   time.Duration
		wantErr   error
		wantCalls int32
	}{
		{
			name: "client error is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			wantErr:   ErrRequestFailed,
			wantCalls: 1,
		},
		{
			name: "server errors exhaust retries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr:   ErrRequestFailed,
			wantCalls: 3,
		},
		{
			name: "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErr:   ErrRequestFailed,
			wantCalls: 1,
		},
		{
			name: "deadline",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
			ctxWait:   30 * time.Millisecond,
			wantErr:   ErrTimeout,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.ctxWait > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.ctxWait)
				defer cancel()
			}

			_, err := createTestClient(t, server.URL).ClassifyIntent(ctx, &ClassifyRequest{Message: "x"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}
