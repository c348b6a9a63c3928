package handler

import (
	"github.com/gofiber/fiber/v2"

	"llmhub/common/response"
	"llmhub/internal/retrieval"
)

// SearchReq 知识库检索请求，未填字段使用知识库配置
type SearchReq struct {
	Query          string  `json:"query" validate:"required,max=2000"`
	Mode           string  `json:"mode" validate:"omitempty,oneof=vector fulltext hybrid"`
	TopK           int     `json:"top_k" validate:"omitempty,min=1,max=100"`
	ScoreThreshold float64 `json:"score_threshold" validate:"omitempty,min=0"`
	DocumentIDs    []int64 `json:"document_ids" validate:"omitempty,dive,gt=0"`
}

// Search 检索知识库
// POST /api/knowledge-bases/:id/search
func (h *Handler) Search(c *fiber.Ctx) error {
	kbID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req SearchReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	results, err := h.svc.Engine.Search(c.UserContext(), retrieval.SearchRequest{
		KnowledgeBaseID: kbID,
		Query:           req.Query,
		Mode:            req.Mode,
		TopK:            req.TopK,
		ScoreThreshold:  req.ScoreThreshold,
		DocumentIDs:     req.DocumentIDs,
	})
	if err != nil {
		return fail(c, err)
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	return response.Success(c, results)
}

// QueryList 最近的检索记录
// GET /api/knowledge-bases/:id/queries
func (h *Handler) QueryList(c *fiber.Ctx) error {
	kbID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if _, err := h.svc.Repo.GetKnowledgeBase(c.UserContext(), kbID); err != nil {
		return fail(c, err)
	}
	limit := min(max(c.QueryInt("limit", 20), 1), 200)
	rows, err := h.svc.Repo.ListQueries(c.UserContext(), kbID, limit)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, rows)
}
