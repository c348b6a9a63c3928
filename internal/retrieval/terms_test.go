package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"latin words lowercased", "Hello World", []string{"hello", "world"}},
		{"single latin char dropped", "a Go b", []string{"go"}},
		{"punctuation only", "?!,。", nil},
		{"cjk bigrams", "知识库", []string{"知识", "识库"}},
		{"single cjk kept", "库", []string{"库"}},
		{"mixed", "RAG 检索增强", []string{"rag", "检索", "索增", "增强"}},
		{"dedupe keeps order", "go Go GO redis go", []string{"go", "redis"}},
		{"digits", "v2 2024", []string{"v2", "2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestFilterTerms(t *testing.T) {
	terms := []string{"a1", "b2", "c3", "d4", "e5", "f6"}
	assert.Equal(t, terms[:5], FilterTerms(terms))
	assert.Equal(t, terms[:2], FilterTerms(terms[:2]))
}
