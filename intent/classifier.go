package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm"
)

// Fallback values used when classification cannot be trusted.
const (
	FallbackConfidence = 0.3
	InvalidConfidence  = 0.0
)

var errMalformed = errors.New("malformed structured output")

// Classifier assigns a MessageType and confidence to a message.
type Classifier struct {
	model llm.Model
}

// NewClassifier creates a classifier backed by model.
func NewClassifier(model llm.Model) *Classifier {
	return &Classifier{model: model}
}

type classification struct {
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Classify sets MessageType and Confidence on state. It never fails; on any
// problem it falls back to a low-confidence statement and records the error.
func (c *Classifier) Classify(ctx context.Context, state *State) {
	if !meaningful(state.Message) {
		state.MessageType = TypeStatement
		state.Confidence = InvalidConfidence
		state.recordError(core.ErrInvalidMessage)
		return
	}

	reply, err := c.model.Invoke(ctx, []core.Message{
		core.SystemMessage(classifyPrompt),
		core.UserMessage(state.Message),
	}, llm.WithTemperature(0))
	if err != nil {
		c.fallback(state, fmt.Errorf("classify: %w", err))
		return
	}

	var out classification
	if err := decode(reply, &out); err != nil {
		c.fallback(state, fmt.Errorf("classify: %w", err))
		return
	}
	mt := MessageType(strings.TrimSpace(out.Type))
	if !mt.Valid() || out.Confidence == nil {
		c.fallback(state, fmt.Errorf("classify: %w: type=%q", errMalformed, out.Type))
		return
	}

	state.MessageType = mt
	state.Confidence = clampConfidence(*out.Confidence)
	slog.Debug("message classified",
		"component", "intent",
		"type", mt,
		"confidence", state.Confidence,
	)
}

func (c *Classifier) fallback(state *State, err error) {
	slog.Warn("classification fell back to statement", "component", "intent", "error", err)
	state.MessageType = TypeStatement
	state.Confidence = FallbackConfidence
	state.recordError(err)
}

// meaningful reports whether text has any word or ideographic character.
func meaningful(text string) bool {
	for _, r := range text {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// decode extracts the first JSON object from a model reply into v.
func decode(reply string, v any) error {
	raw, ok := ExtractJSON(reply)
	if !ok {
		return fmt.Errorf("%w: no json object in reply", errMalformed)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}
