package intent_test

import (
	"context"
	"strings"
	"sync"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/llm"
)

const (
	stageClassify = "classify"
	stageRetrieve = "retrieve"
	stageStore    = "store"
)

// scriptedModel answers each stage with a canned reply and counts calls.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   map[string]int
	panicOn string
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{
		replies: map[string]string{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (m *scriptedModel) on(stage, reply string) *scriptedModel {
	m.replies[stage] = reply
	return m
}

func (m *scriptedModel) fail(stage string, err error) *scriptedModel {
	m.errs[stage] = err
	return m
}

func (m *scriptedModel) count(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

func (m *scriptedModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func stageOf(messages []core.Message) string {
	if len(messages) == 0 {
		return ""
	}
	system := messages[0].Content
	switch {
	case strings.Contains(system, "分析用户消息的类型"):
		return stageClassify
	case strings.Contains(system, "是否需要历史上下文"):
		return stageRetrieve
	case strings.Contains(system, "是否值得长期存储"):
		return stageStore
	}
	return ""
}

func (m *scriptedModel) Invoke(_ context.Context, messages []core.Message, _ ...llm.CallOption) (string, error) {
	stage := stageOf(messages)
	m.mu.Lock()
	m.calls[stage]++
	reply, err := m.replies[stage], m.errs[stage]
	m.mu.Unlock()
	if m.panicOn == stage {
		panic("boom")
	}
	return reply, err
}

func (m *scriptedModel) Stream(ctx context.Context, messages []core.Message, cb llm.StreamCallback, opts ...llm.CallOption) (string, error) {
	return m.Invoke(ctx, messages, opts...)
}
