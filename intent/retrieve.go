package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm"
)

const retrieveFallbackReason = "解析失败，默认不检索"

// RetrieveAnalyzer decides whether a question needs historical memory.
type RetrieveAnalyzer struct {
	model llm.Model
}

// NewRetrieveAnalyzer creates a retrieve analyzer backed by model.
func NewRetrieveAnalyzer(model llm.Model) *RetrieveAnalyzer {
	return &RetrieveAnalyzer{model: model}
}

type retrieveDecision struct {
	Retrieve  *bool  `json:"retrieve"`
	Reasoning string `json:"reasoning"`
}

// Analyze sets RetrieveNeeded. Only questions reach the model; failures
// resolve to no retrieval.
func (a *RetrieveAnalyzer) Analyze(ctx context.Context, state *State) {
	if state.MessageType != TypeQuestion {
		state.RetrieveNeeded = false
		state.RetrieveReasoning = fmt.Sprintf("消息类型为%s，通常不需要检索历史", state.MessageType)
		return
	}

	reply, err := a.model.Invoke(ctx, []core.Message{
		core.SystemMessage(retrievePrompt),
		core.UserMessage(state.Message),
	}, llm.WithTemperature(0))
	if err != nil {
		a.fallback(state, fmt.Errorf("analyze retrieve: %w", err))
		return
	}

	var out retrieveDecision
	if err := decode(reply, &out); err != nil {
		a.fallback(state, fmt.Errorf("analyze retrieve: %w", err))
		return
	}
	if out.Retrieve == nil {
		a.fallback(state, fmt.Errorf("analyze retrieve: %w: missing retrieve", errMalformed))
		return
	}

	state.RetrieveNeeded = *out.Retrieve
	state.RetrieveReasoning = out.Reasoning
}

func (a *RetrieveAnalyzer) fallback(state *State, err error) {
	slog.Warn("retrieve analysis fell back", "component", "intent", "error", err)
	state.RetrieveNeeded = false
	state.RetrieveReasoning = retrieveFallbackReason
	state.recordError(err)
}
