package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"llmhub/common/response"
	"llmhub/internal/ingest"
	"llmhub/internal/model"
	"llmhub/internal/queue"
	"llmhub/internal/types"
)

// AddURLDocumentReq 添加 URL 文档请求
type AddURLDocumentReq struct {
	Name string `json:"name" validate:"omitempty,max=255"`
	URL  string `json:"url" validate:"required,url,startswith=http"`
}

// ImportChunksReq 导入分块请求
type ImportChunksReq struct {
	Chunks []string `json:"chunks" validate:"required,min=1"`
}

// TaskInfo 异步任务提交结果
type TaskInfo struct {
	TaskID     string `json:"task_id"`
	DocumentID int64  `json:"document_id"`
	Kind       string `json:"kind"`
}

// document 解析 :id 与 :docId 并确认文档属于该知识库
func (h *Handler) document(c *fiber.Ctx) (*model.TKnowledgeDocument, error) {
	kbID, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	docID, err := paramID(c, "docId")
	if err != nil {
		return nil, err
	}
	return h.svc.Pipeline.Document(c.UserContext(), kbID, docID)
}

// DocumentUpload 上传文件创建文档
// POST /api/knowledge-bases/:id/documents
func (h *Handler) DocumentUpload(c *fiber.Ctx) error {
	kbID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, types.NewAppErrorWithCause(types.ErrCodeInvalidParameter, "缺少上传文件", err))
	}
	if limit := int64(h.svc.Config.Knowledge.MaxUploadMB) << 20; limit > 0 && fh.Size > limit {
		return fail(c, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "文件过大",
			fmt.Sprintf("最大 %d MB", h.svc.Config.Knowledge.MaxUploadMB)))
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	defer f.Close()

	doc, err := h.svc.Pipeline.AddFileDocument(c.UserContext(), kbID, fh.Filename, f)
	if err != nil {
		return fail(c, err)
	}
	if c.FormValue("auto_process", "true") != "false" {
		if _, err := h.submit(c.UserContext(), doc, queue.KindProcess, nil); err != nil {
			return fail(c, err)
		}
	}
	return response.Success(c, doc)
}

// DocumentAddURL 添加 URL 文档
// POST /api/knowledge-bases/:id/documents/url
func (h *Handler) DocumentAddURL(c *fiber.Ctx) error {
	kbID, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req AddURLDocumentReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	doc, err := h.svc.Pipeline.AddURLDocument(c.UserContext(), kbID, req.Name, req.URL)
	if err != nil {
		return fail(c, err)
	}
	if _, err := h.submit(c.UserContext(), doc, queue.KindProcess, nil); err != nil {
		return fail(c, err)
	}
	return response.Success(c, doc)
}

// DocumentGet 获取文档详情
// GET /api/knowledge-bases/:id/documents/:docId
func (h *Handler) DocumentGet(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, doc)
}

// DocumentDelete 删除文档
// DELETE /api/knowledge-bases/:id/documents/:docId
func (h *Handler) DocumentDelete(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	if doc.Status == model.DocStatusProcessing {
		return fail(c, types.ErrDocumentBusy)
	}
	if err := h.svc.Pipeline.DeleteDocument(c.UserContext(), doc.ID); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// DocumentProcess 提交处理任务，仅待处理或失败的文档可提交
// POST /api/knowledge-bases/:id/documents/:docId/process
func (h *Handler) DocumentProcess(c *fiber.Ctx) error {
	return h.submitFor(c, queue.KindProcess, nil)
}

// DocumentReprocess 提交重新处理任务
// POST /api/knowledge-bases/:id/documents/:docId/reprocess
func (h *Handler) DocumentReprocess(c *fiber.Ctx) error {
	return h.submitFor(c, queue.KindReprocess, nil)
}

// DocumentRechunk 保存分块设置并提交重新处理任务
// POST /api/knowledge-bases/:id/documents/:docId/rechunk
func (h *Handler) DocumentRechunk(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	var opts ingest.ChunkOptions
	if err := h.bind(c, &opts); err != nil {
		return fail(c, err)
	}
	if doc.Status == model.DocStatusProcessing {
		return fail(c, types.ErrDocumentBusy)
	}
	if err := h.svc.Pipeline.Configure(c.UserContext(), doc.ID, opts); err != nil {
		return fail(c, err)
	}
	info, err := h.submit(c.UserContext(), doc, queue.KindRechunk, nil)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, info)
}

// DocumentPreviewChunks 按给定设置预览文档分块，不落库
// POST /api/knowledge-bases/:id/documents/:docId/preview-chunks
func (h *Handler) DocumentPreviewChunks(c *fiber.Ctx) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	var opts ingest.ChunkOptions
	if err := h.bind(c, &opts); err != nil {
		return fail(c, err)
	}
	res, err := h.svc.Pipeline.Preview(c.UserContext(), doc.ID, opts)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, res)
}

// DocumentImportChunks 以给定分块内容替换文档分块
// POST /api/knowledge-bases/:id/documents/:docId/import-chunks
func (h *Handler) DocumentImportChunks(c *fiber.Ctx) error {
	var req ImportChunksReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}
	return h.submitFor(c, queue.KindImport, req.Chunks)
}

func (h *Handler) submitFor(c *fiber.Ctx, kind string, contents []string) error {
	doc, err := h.document(c)
	if err != nil {
		return fail(c, err)
	}
	info, err := h.submit(c.UserContext(), doc, kind, contents)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, info)
}

// submit 检查文档状态后提交任务，任务ID先写入文档元数据
func (h *Handler) submit(ctx context.Context, doc *model.TKnowledgeDocument, kind string, contents []string) (*TaskInfo, error) {
	if doc.Status == model.DocStatusProcessing {
		return nil, types.ErrDocumentBusy
	}
	if kind == queue.KindProcess && doc.Status == model.DocStatusCompleted {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflict, "文档已处理", "请使用 reprocess")
	}

	taskID := uuid.NewString()
	if err := h.svc.Pipeline.RecordTask(ctx, doc.ID, taskID); err != nil {
		return nil, err
	}
	if _, err := h.svc.Tasks.Dispatch(ctx, queue.Task{
		ID:         taskID,
		Kind:       kind,
		DocumentID: doc.ID,
		Contents:   contents,
	}); err != nil {
		return nil, err
	}
	return &TaskInfo{TaskID: taskID, DocumentID: doc.ID, Kind: kind}, nil
}
