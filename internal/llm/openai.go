package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"llmhub/internal/types"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openAIBatchSize = 100

// openAIEmbedder OpenAI 兼容接口的嵌入实现
type openAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

func newOpenAIEmbedder(baseURL, apiKey, modelID string, dimension int, timeout time.Duration) *openAIEmbedder {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	)
	return &openAIEmbedder{client: client, model: modelID, dimension: dimension}
}

func (e *openAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch 按批调用，结果顺序与输入一致
func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIBatchSize {
		end := min(start+openAIBatchSize, len(texts))
		vectors, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("Embedding API 调用失败 (batch %d-%d): %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *openAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, types.NewAppErrorWithCause(types.ErrCodeEmbeddingFailed, "Embedding 调用失败", err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			continue
		}
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		vectors[d.Index] = v
	}
	for i, v := range vectors {
		if v == nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeEmbeddingFailed, "Embedding 结果缺失", fmt.Sprintf("index %d", i))
		}
	}
	return vectors, nil
}
