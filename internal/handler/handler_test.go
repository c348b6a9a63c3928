package handler_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"llmhub/common/utils"
	"llmhub/internal/config"
	"llmhub/internal/llm"
	"llmhub/internal/model"
	"llmhub/internal/queue"
	"llmhub/internal/router"
	"llmhub/internal/svc"
	"llmhub/internal/testutil"
)

type fakeModel struct{}

func (fakeModel) Dimension() int { return 3 }

func (fakeModel) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (fakeModel) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func fakeFactory(*model.TAiModel, time.Duration) (llm.EmbeddingModel, error) {
	return fakeModel{}, nil
}

type env struct {
	app     *fiber.App
	svc     *svc.ServiceContext
	db      *gorm.DB
	modelID int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{
		Knowledge: config.KnowledgeConfig{
			UploadDir:           t.TempDir(),
			DefaultChunkSize:    500,
			DefaultChunkOverlap: 50,
			MaxUploadMB:         1,
		},
		Retrieval: config.RetrievalConfig{VectorBackend: "heuristic", DefaultTopK: 5},
		Embedding: config.EmbeddingConfig{Timeout: time.Second},
		Extract:   config.ExtractConfig{HTTPTimeout: time.Second, MaxURLBytes: 1 << 20},
		Queue:     config.QueueConfig{TaskTimeout: time.Minute},
	}
	cfg.App.Name = "llmhub-test"

	s, err := svc.NewWithClients(context.Background(), cfg, db, nil, svc.WithEmbeddingFactory(fakeFactory))
	require.NoError(t, err)

	m := &model.TAiModel{Name: "embed", Provider: "openai", ModelID: "text-embedding-3-small", ModelType: model.ModelTypeEmbedding, IsEnabled: true}
	require.NoError(t, db.Create(m).Error)
	require.NoError(t, db.Create(&model.TTeamModel{TeamID: 1, ModelID: m.ID, IsEnabled: true}).Error)

	return &env{app: router.NewApp(s), svc: s, db: db, modelID: m.ID}
}

func (e *env) wait() {
	e.svc.Tasks.(*queue.Inline).Wait()
}

type result struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (r result) object(t *testing.T) map[string]any {
	t.Helper()
	m, ok := r.Data.(map[string]any)
	require.True(t, ok, "data is %T", r.Data)
	return m
}

func (r result) list(t *testing.T) []any {
	t.Helper()
	l, ok := r.Data.([]any)
	require.True(t, ok, "data is %T", r.Data)
	return l
}

func (e *env) do(t *testing.T, req *http.Request) (int, result) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var res result
	require.NoError(t, utils.FromJSON(body, &res), string(body))
	return resp.StatusCode, res
}

func (e *env) call(t *testing.T, method, path string, body any) (int, result) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := utils.ToJSONBytes(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *env) upload(t *testing.T, kbID int64, filename, content string) (int, result) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/knowledge-bases/%d/documents", kbID), &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.do(t, req)
}

func (e *env) createKnowledgeBase(t *testing.T, teamID int64) int64 {
	t.Helper()
	status, res := e.call(t, http.MethodPost, "/api/knowledge-bases", map[string]any{
		"team_id":            teamID,
		"name":               "docs",
		"embedding_model_id": e.modelID,
		"chunk_size":         50,
		"chunk_overlap":      5,
	})
	require.Equal(t, http.StatusOK, status, res.Message)
	return int64(res.object(t)["id"].(float64))
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChunkPreview(t *testing.T) {
	e := newEnv(t)

	status, res := e.call(t, http.MethodPost, "/api/chunker/preview", map[string]any{
		"text":          "aaaaaaaaaaaaaaaaaaaa\n\nbbbbbbbbbbbbbbbbbbbb\n\ncccccccccccccccccccc",
		"chunk_size":    5,
		"chunk_overlap": 0,
	})
	require.Equal(t, http.StatusOK, status)
	data := res.object(t)
	assert.EqualValues(t, 3, data["total_chunks"])
	assert.EqualValues(t, 15, data["total_tokens"])

	status, res = e.call(t, http.MethodPost, "/api/chunker/preview", map[string]any{"chunk_size": 5})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, res.object(t), "text")
}

func TestDocumentLifecycle(t *testing.T) {
	e := newEnv(t)
	kbID := e.createKnowledgeBase(t, 1)

	status, res := e.upload(t, kbID, "notes.txt", "Golang channels pass values between goroutines.\n\nQdrant stores dense vectors.")
	require.Equal(t, http.StatusOK, status, res.Message)
	docID := int64(res.object(t)["id"].(float64))
	e.wait()

	docPath := fmt.Sprintf("/api/knowledge-bases/%d/documents/%d", kbID, docID)
	status, res = e.call(t, http.MethodGet, docPath, nil)
	require.Equal(t, http.StatusOK, status)
	doc := res.object(t)
	require.Equal(t, model.DocStatusCompleted, doc["status"], doc["error_message"])
	assert.NotEmpty(t, doc["metadata"].(map[string]any)["task_id"])

	// 已完成的文档不能再次 process
	status, _ = e.call(t, http.MethodPost, docPath+"/process", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, res = e.call(t, http.MethodPost, fmt.Sprintf("/api/knowledge-bases/%d/search", kbID), map[string]any{
		"query": "golang channels",
		"mode":  "fulltext",
	})
	require.Equal(t, http.StatusOK, status, res.Message)
	hits := res.list(t)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].(map[string]any)["content"], "Golang")

	status, res = e.call(t, http.MethodGet, docPath+"/chunks", nil)
	require.Equal(t, http.StatusOK, status)
	before := len(res.list(t))
	require.Positive(t, before)

	status, res = e.call(t, http.MethodPost, docPath+"/chunks", map[string]any{"content": "manual chunk", "after_index": -1})
	require.Equal(t, http.StatusOK, status, res.Message)
	inserted := res.object(t)
	assert.EqualValues(t, 0, inserted["chunk_index"])
	chunkPath := fmt.Sprintf("%s/chunks/%d", docPath, int64(inserted["id"].(float64)))

	status, res = e.call(t, http.MethodPut, chunkPath, map[string]any{"content": "edited chunk"})
	require.Equal(t, http.StatusOK, status, res.Message)
	assert.Equal(t, "edited chunk", res.object(t)["content"])

	status, _ = e.call(t, http.MethodPut, chunkPath, map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.call(t, http.MethodDelete, chunkPath, nil)
	require.Equal(t, http.StatusOK, status)
	status, res = e.call(t, http.MethodGet, docPath+"/chunks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, res.list(t), before)

	status, res = e.call(t, http.MethodPost, docPath+"/preview-chunks", map[string]any{"chunk_size": 5, "chunk_overlap": 0})
	require.Equal(t, http.StatusOK, status, res.Message)
	assert.Greater(t, res.object(t)["total_chunks"], float64(before))

	status, res = e.call(t, http.MethodPost, docPath+"/rechunk", map[string]any{"chunk_size": 5, "chunk_overlap": 0})
	require.Equal(t, http.StatusOK, status, res.Message)
	assert.Equal(t, queue.KindRechunk, res.object(t)["kind"])
	e.wait()

	status, res = e.call(t, http.MethodGet, docPath+"/chunks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Greater(t, len(res.list(t)), before)

	status, _ = e.call(t, http.MethodPost, docPath+"/import-chunks", map[string]any{"chunks": []string{"one", " ", "two"}})
	require.Equal(t, http.StatusOK, status)
	e.wait()
	status, res = e.call(t, http.MethodGet, docPath+"/chunks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, res.list(t), 2)

	status, _ = e.call(t, http.MethodPost, docPath+"/import-chunks", map[string]any{"chunks": []string{}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, res = e.call(t, http.MethodGet, fmt.Sprintf("/api/teams/1/models/%d/usage", e.modelID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Positive(t, res.object(t)["daily_tokens"].(map[string]any)["used"])

	status, _ = e.call(t, http.MethodDelete, docPath, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = e.call(t, http.MethodGet, docPath, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, res = e.call(t, http.MethodGet, fmt.Sprintf("/api/knowledge-bases/%d", kbID), nil)
	require.Equal(t, http.StatusOK, status)
	kb := res.object(t)
	assert.EqualValues(t, 0, kb["document_count"])
	assert.EqualValues(t, 0, kb["total_chunks"])

	status, res = e.call(t, http.MethodGet, fmt.Sprintf("/api/knowledge-bases/%d/queries", kbID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, res.list(t), 1)
}

func TestQuotaExceededReturns429(t *testing.T) {
	e := newEnv(t)
	limit := int64(1)
	require.NoError(t, e.db.Create(&model.TTeamModel{TeamID: 2, ModelID: e.modelID, IsEnabled: true, DailyTokenLimit: &limit}).Error)
	kbID := e.createKnowledgeBase(t, 2)

	kb, err := e.svc.Repo.GetKnowledgeBase(context.Background(), kbID)
	require.NoError(t, err)
	doc := testutil.CreateDocument(t, e.db, &model.TKnowledgeDocument{KnowledgeBaseID: kb.ID, Status: model.DocStatusCompleted})

	status, res := e.call(t, http.MethodPost, fmt.Sprintf("/api/knowledge-bases/%d/documents/%d/chunks", kbID, doc.ID),
		map[string]any{"content": "this chunk needs more than one token"})
	require.Equal(t, http.StatusTooManyRequests, status)
	data := res.object(t)
	assert.Equal(t, "daily_token", data["quota_type"])
	assert.EqualValues(t, 1, data["limit"])
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	kbID := e.createKnowledgeBase(t, 1)

	status, _ := e.call(t, http.MethodGet, "/api/knowledge-bases/999", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.call(t, http.MethodGet, "/api/knowledge-bases/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.call(t, http.MethodPost, fmt.Sprintf("/api/knowledge-bases/%d/search", kbID), map[string]any{"query": "x", "mode": "semantic"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.call(t, http.MethodPost, fmt.Sprintf("/api/knowledge-bases/%d/documents/url", kbID), map[string]any{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, status)

	doc := testutil.CreateDocument(t, e.db, &model.TKnowledgeDocument{KnowledgeBaseID: kbID, Status: model.DocStatusProcessing})
	docPath := fmt.Sprintf("/api/knowledge-bases/%d/documents/%d", kbID, doc.ID)
	status, _ = e.call(t, http.MethodPost, docPath+"/reprocess", nil)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = e.call(t, http.MethodDelete, docPath, nil)
	assert.Equal(t, http.StatusConflict, status)

	// 文档不属于该知识库
	other := e.createKnowledgeBase(t, 1)
	status, _ = e.call(t, http.MethodGet, fmt.Sprintf("/api/knowledge-bases/%d/documents/%d", other, doc.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestQuotaReset(t *testing.T) {
	e := newEnv(t)

	status, res := e.call(t, http.MethodPost, "/api/quota/reset", map[string]any{"scope": "all"})
	require.Equal(t, http.StatusOK, status, res.Message)
	assert.EqualValues(t, 1, res.object(t)["daily"])

	status, _ = e.call(t, http.MethodPost, "/api/quota/reset", map[string]any{"scope": "weekly"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.call(t, http.MethodGet, "/api/teams/1/models/999/usage", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
