// Package intent decides, per message, whether long-term memory should be
// read before answering and whether the exchange should be written after.
//
// The pipeline is a fixed sequence of three stages:
//
//	Classify -> AnalyzeRetrieve -> AnalyzeStore
//
// Each stage owns its fallback, so the pipeline itself never fails.
package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/becomeliminal/recall/llm"
)

// Stage is one step of the pipeline. Stages mutate the shared state.
type Stage func(ctx context.Context, state *State)

// Pipeline runs the stages in order.
type Pipeline struct {
	stages []Stage
}

// NewPipeline wires the three standard stages to model.
func NewPipeline(model llm.Model) *Pipeline {
	classifier := NewClassifier(model)
	retrieve := NewRetrieveAnalyzer(model)
	store := NewStoreAnalyzer(model)
	return NewPipelineWithStages(classifier.Classify, retrieve.Analyze, store.Analyze)
}

// NewPipelineWithStages builds a pipeline from explicit stages.
func NewPipelineWithStages(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Analyze returns whether memory should be retrieved and whether the
// exchange should be stored. Any panic degrades to (false, false).
func (p *Pipeline) Analyze(ctx context.Context, message string) (retrieve bool, store bool) {
	state := p.AnalyzeWithDetails(ctx, message)
	return state.RetrieveNeeded, state.StoreNeeded
}

// AnalyzeWithDetails returns the full state for diagnostics. A panic in a
// stage yields the entry state with the error populated.
func (p *Pipeline) AnalyzeWithDetails(ctx context.Context, message string) (state *State) {
	state = NewState(message)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("intent pipeline panic", "component", "intent", "panic", r)
			state = NewState(message)
			state.Error = fmt.Sprintf("pipeline panic: %v", r)
		}
	}()

	for _, stage := range p.stages {
		stage(ctx, state)
	}

	slog.Info("intent analyzed",
		"component", "intent",
		"type", state.MessageType,
		"confidence", state.Confidence,
		"retrieve", state.RetrieveNeeded,
		"store", state.StoreNeeded,
	)
	return state
}
