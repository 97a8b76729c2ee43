package generateanswer

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts model tokens for usage reporting.
type Tokenizer interface {
	Count(text string) int
}

type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenTokenizer(name string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// RuneEstimator approximates tokens as one per four characters, rounded up.
type RuneEstimator struct{}

func (RuneEstimator) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewTokenizer returns the tiktoken tokenizer for encoding, or the estimator
// when the encoding cannot be loaded (it is fetched on first use).
func NewTokenizer(encoding string, log Logger) Tokenizer {
	t, err := NewTiktokenTokenizer(encoding)
	if err != nil {
		log.Warn("tiktoken unavailable, estimating token usage", map[string]interface{}{
			"encoding": encoding,
			"error":    err.Error(),
		})
		return RuneEstimator{}
	}
	return t
}
