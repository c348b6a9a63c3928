package handler

import (
	"github.com/gofiber/fiber/v2"

	"llmhub/common/response"
	"llmhub/internal/chunker"
	"llmhub/internal/extract"
	"llmhub/internal/ingest"
)

// ChunkPreviewReq 文本分块预览请求
type ChunkPreviewReq struct {
	Text         string   `json:"text" validate:"required"`
	ChunkSize    int      `json:"chunk_size" validate:"omitempty,min=1,max=8000"`
	ChunkOverlap *int     `json:"chunk_overlap" validate:"omitempty,min=0"`
	Separators   []string `json:"separators" validate:"omitempty,dive,max=32"`
	CleanText    *bool    `json:"clean_text"`
}

// ChunkPreview 对原始文本分块，不落库
// POST /api/chunker/preview
func (h *Handler) ChunkPreview(c *fiber.Ctx) error {
	var req ChunkPreviewReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	settings := chunker.Settings{
		ChunkSize:    h.svc.Config.Knowledge.DefaultChunkSize,
		ChunkOverlap: h.svc.Config.Knowledge.DefaultChunkOverlap,
		Separators:   req.Separators,
	}
	if req.ChunkSize > 0 {
		settings.ChunkSize = req.ChunkSize
	}
	if req.ChunkOverlap != nil {
		settings.ChunkOverlap = *req.ChunkOverlap
	}

	clean := req.CleanText == nil || *req.CleanText
	text := extract.CleanText(req.Text, clean)
	return response.Success(c, ingest.Summarize(chunker.Split(text, settings)))
}
