package llm

import (
	"context"
	"time"

	"llmhub/internal/model"
	"llmhub/internal/types"
)

// EmbeddingModel 文本嵌入模型
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Factory 根据模型配置创建嵌入模型
type Factory func(cfg *model.TAiModel, timeout time.Duration) (EmbeddingModel, error)

// NewEmbeddingModel 按提供方选择实现
func NewEmbeddingModel(cfg *model.TAiModel, timeout time.Duration) (EmbeddingModel, error) {
	provider := ParseProvider(cfg.Provider)
	dimension := 0
	if cfg.Dimension != nil {
		dimension = int(*cfg.Dimension)
	}
	apiKey := ""
	if cfg.APIKey != nil {
		apiKey = *cfg.APIKey
	}

	switch {
	case provider.OpenAICompatible():
		return newOpenAIEmbedder(provider.BaseURL(cfg.BaseURL), apiKey, cfg.ModelID, dimension, timeout), nil
	case provider == ProviderOllama:
		return newOllamaEmbedder(provider.BaseURL(cfg.BaseURL), cfg.ModelID, dimension, timeout), nil
	default:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeProviderUnsupported, "不支持的模型提供方", cfg.Provider)
	}
}

func embedOne(ctx context.Context, m EmbeddingModel, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, types.NewAppError(types.ErrCodeEmbeddingFailed, "Embedding 结果为空")
	}
	return vectors[0], nil
}
