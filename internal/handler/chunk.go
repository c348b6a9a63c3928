package handler

import (
	"github.com/gofiber/fiber/v2"

	"llmhub/common/response"
)

// ChunkContentReq 分块内容
type ChunkContentReq struct {
	Content    string `json:"content" validate:"required"`
	AfterIndex *int   `json:"after_index" validate:"omitempty,min=-1"`
}

// ChunkList 列出文档分块
// GET /api/knowledge-bases/:id/documents/:docId/chunks
func (h *Handler) ChunkList(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	chunks, err := h.svc.Pipeline.ListChunks(c.UserContext(), doc.ID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, chunks)
}

// ChunkCreate 插入分块，after_index 为空时追加到末尾
// POST /api/knowledge-bases/:id/documents/:docId/chunks
func (h *Handler) ChunkCreate(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	var req ChunkContentReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}
	chunk, err := h.svc.Pipeline.InsertChunk(c.UserContext(), doc.ID, req.Content, req.AfterIndex)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, chunk)
}

// ChunkUpdate 修改分块内容
// PUT /api/knowledge-bases/:id/documents/:docId/chunks/:chunkId
func (h *Handler) ChunkUpdate(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	chunkID, err := paramID(c, "chunkId")
	if err != nil {
		return fail(c, err)
	}
	var req ChunkContentReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}
	chunk, err := h.svc.Pipeline.UpdateChunk(c.UserContext(), doc.ID, chunkID, req.Content)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, chunk)
}

// ChunkDelete 删除分块
// DELETE /api/knowledge-bases/:id/documents/:docId/chunks/:chunkId
func (h *Handler) ChunkDelete(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	chunkID, err := paramID(c, "chunkId")
	if err != nil {
		return fail(c, err)
	}
	if err := h.svc.Pipeline.DeleteChunk(c.UserContext(), doc.ID, chunkID); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}
