package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llmhub/internal/types"

	"github.com/bytedance/sonic"
)

// ollamaEmbedder 调用 Ollama /api/embed
type ollamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func newOllamaEmbedder(baseURL, modelID string, dimension int, timeout time.Duration) *ollamaEmbedder {
	return &ollamaEmbedder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     modelID,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

func (e *ollamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := sonic.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("请求序列化失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, types.NewAppErrorWithCause(types.ErrCodeEmbeddingFailed, "Embedding 调用失败", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeEmbeddingFailed, "Embedding 调用失败",
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody)))
	}

	var out ollamaEmbedResponse
	if err := sonic.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("响应解析失败: %w", err)
	}
	if out.Error != "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeEmbeddingFailed, "Embedding 调用失败", out.Error)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeEmbeddingFailed, "Embedding 结果数量不符",
			fmt.Sprintf("want %d, got %d", len(texts), len(out.Embeddings)))
	}
	return out.Embeddings, nil
}
