package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm"
)

const (
	personalInfoReason  = "个人信息需要存储"
	storeFallbackReason = "默认存储陈述"
	invalidStoreReason  = "无效消息，不存储"
)

// StoreAnalyzer decides whether the exchange should be committed to memory.
//
//	personal_info      always stored, no model call
//	statement          one model call, stored on failure
//	question, command  never stored, no model call
type StoreAnalyzer struct {
	model llm.Model
}

// NewStoreAnalyzer creates a store analyzer backed by model.
func NewStoreAnalyzer(model llm.Model) *StoreAnalyzer {
	return &StoreAnalyzer{model: model}
}

type storeDecision struct {
	Store     *bool  `json:"store"`
	Reasoning string `json:"reasoning"`
}

// Analyze sets StoreNeeded according to the message type.
func (a *StoreAnalyzer) Analyze(ctx context.Context, state *State) {
	switch state.MessageType {
	case TypePersonalInfo:
		state.StoreNeeded = true
		state.StoreReasoning = personalInfoReason
	case TypeStatement:
		if state.invalid() {
			state.StoreNeeded = false
			state.StoreReasoning = invalidStoreReason
			return
		}
		a.analyzeStatement(ctx, state)
	default:
		state.StoreNeeded = false
		state.StoreReasoning = fmt.Sprintf("%s类型通常不需要存储", state.MessageType)
	}
}

func (a *StoreAnalyzer) analyzeStatement(ctx context.Context, state *State) {
	reply, err := a.model.Invoke(ctx, []core.Message{
		core.SystemMessage(storePrompt),
		core.UserMessage(state.Message),
	}, llm.WithTemperature(0))
	if err != nil {
		a.fallback(state, fmt.Errorf("analyze store: %w", err))
		return
	}

	var out storeDecision
	if err := decode(reply, &out); err != nil {
		a.fallback(state, fmt.Errorf("analyze store: %w", err))
		return
	}
	if out.Store == nil {
		a.fallback(state, fmt.Errorf("analyze store: %w: missing store", errMalformed))
		return
	}

	state.StoreNeeded = *out.Store
	state.StoreReasoning = out.Reasoning
}

func (a *StoreAnalyzer) fallback(state *State, err error) {
	slog.Warn("store analysis fell back", "component", "intent", "error", err)
	state.StoreNeeded = true
	state.StoreReasoning = storeFallbackReason
	state.recordError(err)
}
