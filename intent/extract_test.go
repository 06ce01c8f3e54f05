package intent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/recall/intent"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare", `{"type":"question"}`, `{"type":"question"}`, true},
		{"prose", `好的，结果如下：{"store": true, "reasoning": "偏好"} 希望有帮助`, `{"store": true, "reasoning": "偏好"}`, true},
		{"fenced", "```json\n{\"retrieve\": false}\n```", `{"retrieve": false}`, true},
		{"nested", `x {"a": {"b": 1}, "c": 2} y {"d": 3}`, `{"a": {"b": 1}, "c": 2}`, true},
		{"brace in string", `{"reasoning": "用了 } 符号", "store": true}`, `{"reasoning": "用了 } 符号", "store": true}`, true},
		{"escaped quote", `{"reasoning": "say \"}\"", "x": 1}`, `{"reasoning": "say \"}\"", "x": 1}`, true},
		{"brace group before object", `按照{question|statement}分类，结果：{"type": "question", "confidence": 0.9}`, `{"type": "question", "confidence": 0.9}`, true},
		{"unclosed brace before object", `{ 结果 {"store": false}`, `{"store": false}`, true},
		{"only non-json braces", `选项 {a|b} 或 {c}`, "", false},
		{"none", `no json here`, "", false},
		{"unbalanced", `{"type": "question"`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := intent.ExtractJSON(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
