package handler

import (
	"github.com/gofiber/fiber/v2"

	"llmhub/common/response"
	"llmhub/internal/model"
)

// CreateKnowledgeBaseReq 创建知识库请求
type CreateKnowledgeBaseReq struct {
	TeamID           int64    `json:"team_id" validate:"required,gt=0"`
	Name             string   `json:"name" validate:"required,max=100"`
	Description      *string  `json:"description" validate:"omitempty,max=1024"`
	EmbeddingModelID *int64   `json:"embedding_model_id" validate:"omitempty,gt=0"`
	ChunkSize        *int32   `json:"chunk_size" validate:"omitempty,min=1,max=8000"`
	ChunkOverlap     *int32   `json:"chunk_overlap" validate:"omitempty,min=0"`
	Separator        *string  `json:"separator" validate:"omitempty,max=32"`
	RetrievalMode    *string  `json:"retrieval_mode" validate:"omitempty,oneof=vector fulltext hybrid"`
	TopK             *int32   `json:"top_k" validate:"omitempty,min=1,max=100"`
	ScoreThreshold   *float64 `json:"score_threshold" validate:"omitempty,min=0"`
}

// KnowledgeBaseCreate 创建知识库
// POST /api/knowledge-bases
func (h *Handler) KnowledgeBaseCreate(c *fiber.Ctx) error {
	var req CreateKnowledgeBaseReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	kb := &model.TKnowledgeBase{
		TeamID:           req.TeamID,
		Name:             req.Name,
		Description:      req.Description,
		EmbeddingModelID: req.EmbeddingModelID,
		ChunkSize:        req.ChunkSize,
		ChunkOverlap:     req.ChunkOverlap,
		Separator:        req.Separator,
		RetrievalMode:    req.RetrievalMode,
		TopK:             req.TopK,
		ScoreThreshold:   req.ScoreThreshold,
	}
	if err := h.svc.Repo.CreateKnowledgeBase(c.UserContext(), kb); err != nil {
		return fail(c, err)
	}
	return response.Success(c, kb)
}

// KnowledgeBaseGet 获取知识库详情
// GET /api/knowledge-bases/:id
func (h *Handler) KnowledgeBaseGet(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	kb, err := h.svc.Repo.GetKnowledgeBase(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, kb)
}
