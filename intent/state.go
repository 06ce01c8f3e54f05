package intent

import (
	"strings"

	"github.com/becomeliminal/recall/core"
)

// MessageType is the category assigned to a message by the classifier.
type MessageType string

const (
	TypeQuestion     MessageType = "question"
	TypeStatement    MessageType = "statement"
	TypeCommand      MessageType = "command"
	TypePersonalInfo MessageType = "personal_info"
)

// Valid reports whether t is one of the four known categories.
func (t MessageType) Valid() bool {
	switch t {
	case TypeQuestion, TypeStatement, TypeCommand, TypePersonalInfo:
		return true
	}
	return false
}

// ReasonSeparator joins the reasoning of successive stages.
const ReasonSeparator = " | "

// State is the working record threaded through the pipeline for one message.
// It is created per message and never shared between messages.
type State struct {
	Message           string      `json:"message"`
	MessageType       MessageType `json:"message_type"`
	Confidence        float64     `json:"confidence"`
	RetrieveNeeded    bool        `json:"retrieve_needed"`
	RetrieveReasoning string      `json:"retrieve_reasoning,omitempty"`
	StoreNeeded       bool        `json:"store_needed"`
	StoreReasoning    string      `json:"store_reasoning,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// NewState returns the entry state: statement, nothing retrieved or stored.
func NewState(message string) *State {
	return &State{
		Message:     message,
		MessageType: TypeStatement,
	}
}

// Reasoning returns the decision chain of all stages.
func (s *State) Reasoning() string {
	var parts []string
	for _, r := range []string{s.RetrieveReasoning, s.StoreReasoning} {
		if r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, ReasonSeparator)
}

// recordError keeps only the first error seen along the pipeline.
func (s *State) recordError(err error) {
	if err == nil || s.Error != "" {
		return
	}
	s.Error = err.Error()
}

func (s *State) invalid() bool {
	return s.Error == core.ErrInvalidMessage.Error()
}

func clampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
