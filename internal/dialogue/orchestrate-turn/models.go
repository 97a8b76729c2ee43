package orchestrateturn

import (
	"context"
	"time"

	classifyintent "medchat-engine/internal/dialogue/classify-intent"
	"medchat-engine/internal/models"
)

type State string

const (
	StateStart    State = "START"
	StateAnalyzed State = "ANALYZED"
	StateCollect  State = "COLLECT"
	StateClarify  State = "CLARIFY"
	StateRetrieve State = "RETRIEVE"
	StateAnswered State = "ANSWERED"
	StateDone     State = "DONE"
)

// turn is the per-request working set. It is owned by one Execute call and
// dropped when the call returns.
type turn struct {
	id       string
	started  time.Time
	state    State
	language models.Language
	request  *models.TurnRequest
	profile  models.UserProfile
	class    *classifyintent.Classification
	question string
	action   models.Action
	usage    *models.TokenUsage
}

type requestIDKey struct{}

// WithRequestID attaches a caller-supplied request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
