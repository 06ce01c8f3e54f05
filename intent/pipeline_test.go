package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/intent"
)

func TestPipeline_PersonalInfoAlwaysStored(t *testing.T) {
	model := newScriptedModel().
		on(stageClassify, `{"type": "personal_info", "confidence": 0.95, "reasoning": "姓名和爱好"}`)
	p := intent.NewPipeline(model)

	state := p.AnalyzeWithDetails(context.Background(), "我叫小明，我喜欢爬山")

	assert.Equal(t, intent.TypePersonalInfo, state.MessageType)
	assert.InDelta(t, 0.95, state.Confidence, 1e-9)
	assert.True(t, state.StoreNeeded)
	assert.False(t, state.RetrieveNeeded)
	assert.Empty(t, state.Error)
	assert.Equal(t, 0, model.count(stageRetrieve))
	assert.Equal(t, 0, model.count(stageStore))
	assert.Equal(t, "消息类型为personal_info，通常不需要检索历史 | 个人信息需要存储", state.Reasoning())
}

func TestPipeline_CommandAndQuestionNeverStore(t *testing.T) {
	for _, mt := range []string{"command", "question"} {
		t.Run(mt, func(t *testing.T) {
			model := newScriptedModel().
				on(stageClassify, `{"type": "`+mt+`", "confidence": 0.8}`).
				on(stageRetrieve, `{"retrieve": true, "reasoning": "指代上次"}`).
				on(stageStore, `{"store": true}`)
			p := intent.NewPipeline(model)

			_, store := p.Analyze(context.Background(), "上次说的那个方案继续吧")

			assert.False(t, store)
			assert.Equal(t, 0, model.count(stageStore))
		})
	}
}

func TestPipeline_NonQuestionsNeverRetrieve(t *testing.T) {
	for _, mt := range []string{"statement", "command", "personal_info"} {
		t.Run(mt, func(t *testing.T) {
			model := newScriptedModel().
				on(stageClassify, `{"type": "`+mt+`", "confidence": 0.7}`).
				on(stageRetrieve, `{"retrieve": true}`).
				on(stageStore, `{"store": false, "reasoning": "寒暄"}`)
			p := intent.NewPipeline(model)

			state := p.AnalyzeWithDetails(context.Background(), "今天天气不错")

			assert.False(t, state.RetrieveNeeded)
			assert.Equal(t, 0, model.count(stageRetrieve))
			assert.Contains(t, state.RetrieveReasoning, mt)
		})
	}
}

func TestPipeline_QuestionRetrieval(t *testing.T) {
	model := newScriptedModel().
		on(stageClassify, `{"type": "question", "confidence": 0.9}`).
		on(stageRetrieve, `判断如下 {"retrieve": true, "reasoning": "询问历史信息"}`)
	p := intent.NewPipeline(model)

	retrieve, store := p.Analyze(context.Background(), "我的爱好是什么？")

	assert.True(t, retrieve)
	assert.False(t, store)
	assert.Equal(t, 1, model.count(stageRetrieve))
}

func TestPipeline_ProseBracesBeforeJSON(t *testing.T) {
	model := newScriptedModel().
		on(stageClassify, `按照{question|statement}分类，结果：{"type": "question", "confidence": 0.9}`).
		on(stageRetrieve, `{"retrieve": false, "reasoning": "通用问题"}`)
	p := intent.NewPipeline(model)

	state := p.AnalyzeWithDetails(context.Background(), "光速是多少？")

	assert.Equal(t, intent.TypeQuestion, state.MessageType)
	assert.InDelta(t, 0.9, state.Confidence, 1e-9)
	assert.False(t, state.StoreNeeded)
	assert.Empty(t, state.Error)
}

func TestPipeline_ConfidenceClamped(t *testing.T) {
	tests := []struct {
		reply string
		want  float64
	}{
		{`{"type": "command", "confidence": 1.5}`, 1.0},
		{`{"type": "command", "confidence": -0.2}`, 0.0},
		{`{"type": "command", "confidence": 0.42}`, 0.42},
	}
	for _, tt := range tests {
		model := newScriptedModel().on(stageClassify, tt.reply)
		state := intent.NewPipeline(model).AnalyzeWithDetails(context.Background(), "帮我写一首诗")
		assert.Equal(t, intent.TypeCommand, state.MessageType)
		assert.InDelta(t, tt.want, state.Confidence, 1e-9)
		assert.GreaterOrEqual(t, state.Confidence, 0.0)
		assert.LessOrEqual(t, state.Confidence, 1.0)
	}
}

func TestPipeline_EmptyInputSkipsModel(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t", "！？。…", "?? !!"} {
		model := newScriptedModel()
		state := intent.NewPipeline(model).AnalyzeWithDetails(context.Background(), msg)

		assert.Equal(t, intent.TypeStatement, state.MessageType, "msg=%q", msg)
		assert.Equal(t, 0.0, state.Confidence)
		assert.Equal(t, "invalid message", state.Error)
		assert.False(t, state.RetrieveNeeded)
		assert.False(t, state.StoreNeeded)
		assert.Equal(t, 0, model.total(), "msg=%q", msg)
	}
}

func TestPipeline_MalformedClassification(t *testing.T) {
	for _, reply := range []string{
		"I think this is a question",
		`{"type": "question"`,
		`{"type": "banter", "confidence": 0.9}`,
		`{"type": "question"}`,
		`{"type": "question", "confidence": "high"}`,
	} {
		model := newScriptedModel().
			on(stageClassify, reply).
			on(stageStore, `{"store": false, "reasoning": "寒暄"}`)
		p := intent.NewPipeline(model)

		state := p.AnalyzeWithDetails(context.Background(), "你好")

		assert.Equal(t, intent.TypeStatement, state.MessageType, "reply=%q", reply)
		assert.Equal(t, intent.FallbackConfidence, state.Confidence)
		assert.NotEmpty(t, state.Error)

		retrieve, store := p.Analyze(context.Background(), "你好")
		assert.False(t, retrieve)
		assert.False(t, store)
	}
}

func TestPipeline_StatementFallbackStores(t *testing.T) {
	model := newScriptedModel().
		on(stageClassify, `{"type": "statement", "confidence": 0.6}`).
		fail(stageStore, errors.New("timeout"))
	state := intent.NewPipeline(model).AnalyzeWithDetails(context.Background(), "我决定明年去日本")

	assert.True(t, state.StoreNeeded)
	assert.Equal(t, "默认存储陈述", state.StoreReasoning)
	assert.Contains(t, state.Error, "timeout")
}

func TestPipeline_RetrieveFallbackSkips(t *testing.T) {
	model := newScriptedModel().
		on(stageClassify, `{"type": "question", "confidence": 0.6}`).
		on(stageRetrieve, `not json`)
	state := intent.NewPipeline(model).AnalyzeWithDetails(context.Background(), "它多少钱？")

	assert.False(t, state.RetrieveNeeded)
	assert.Equal(t, "解析失败，默认不检索", state.RetrieveReasoning)
	assert.NotEmpty(t, state.Error)
}

func TestPipeline_FirstErrorKept(t *testing.T) {
	model := newScriptedModel().
		fail(stageClassify, errors.New("first")).
		fail(stageStore, errors.New("second"))
	state := intent.NewPipeline(model).AnalyzeWithDetails(context.Background(), "随便说说")

	assert.Contains(t, state.Error, "first")
	assert.NotContains(t, state.Error, "second")
	assert.True(t, state.StoreNeeded)
}

func TestPipeline_PanicDegrades(t *testing.T) {
	model := newScriptedModel().
		on(stageClassify, `{"type": "question", "confidence": 0.9}`)
	model.panicOn = stageRetrieve
	p := intent.NewPipeline(model)

	require.NotPanics(t, func() {
		retrieve, store := p.Analyze(context.Background(), "那个怎么样了？")
		assert.False(t, retrieve)
		assert.False(t, store)
	})

	state := p.AnalyzeWithDetails(context.Background(), "那个怎么样了？")
	assert.Equal(t, intent.TypeStatement, state.MessageType)
	assert.Contains(t, state.Error, "panic")
}
