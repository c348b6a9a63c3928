package ingest

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"llmhub/internal/extract"
	"llmhub/internal/model"
	"llmhub/internal/types"
)

// Document 获取知识库下的文档，不属于该知识库时视为不存在
func (p *Pipeline) Document(ctx context.Context, kbID, documentID int64) (*model.TKnowledgeDocument, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.KnowledgeBaseID != kbID {
		return nil, types.ErrDocumentNotFound
	}
	return doc, nil
}

// AddFileDocument 保存上传文件并创建待处理文档
func (p *Pipeline) AddFileDocument(ctx context.Context, kbID int64, filename string, reader io.Reader) (*model.TKnowledgeDocument, error) {
	if p.files == nil {
		return nil, errors.New("未配置文件存储")
	}
	if _, err := p.store.GetKnowledgeBase(ctx, kbID); err != nil {
		return nil, err
	}

	relPath, size, err := p.files.Save(kbID, filename, reader)
	if err != nil {
		return nil, err
	}
	doc := &model.TKnowledgeDocument{
		KnowledgeBaseID: kbID,
		Name:            filename,
		DocType:         extract.InferDocType(filename),
		FilePath:        &relPath,
		FileSize:        &size,
		Status:          model.DocStatusPending,
	}
	return doc, p.createDocument(ctx, doc)
}

// AddURLDocument 创建 URL 来源的待处理文档
func (p *Pipeline) AddURLDocument(ctx context.Context, kbID int64, name, url string) (*model.TKnowledgeDocument, error) {
	if _, err := p.store.GetKnowledgeBase(ctx, kbID); err != nil {
		return nil, err
	}
	if name == "" {
		name = url
	}
	doc := &model.TKnowledgeDocument{
		KnowledgeBaseID: kbID,
		Name:            name,
		DocType:         extract.DocTypeURL,
		SourceURL:       &url,
		Status:          model.DocStatusPending,
	}
	return doc, p.createDocument(ctx, doc)
}

func (p *Pipeline) createDocument(ctx context.Context, doc *model.TKnowledgeDocument) error {
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return err
	}
	return p.store.AdjustKnowledgeBaseStats(ctx, doc.KnowledgeBaseID, 1, 0, 0)
}

// DeleteDocument 删除文档及其分块、向量与文件，并扣减知识库统计
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID int64) error {
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return err
	}

	p.deleteDocumentVectors(ctx, kb, doc.ID)
	if p.files != nil && doc.FilePath != nil && *doc.FilePath != "" {
		if err := p.files.Delete(*doc.FilePath); err != nil {
			p.log.Warn("删除文档文件失败", zap.Int64("document_id", doc.ID), zap.Error(err))
		}
	}

	if err := p.store.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	return p.store.AdjustKnowledgeBaseStats(ctx, kb.ID, -1, -doc.ChunkCount, -doc.TokenCount)
}

// RecordTask 将异步任务ID写入文档元数据
func (p *Pipeline) RecordTask(ctx context.Context, documentID int64, taskID string) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	return p.store.UpdateDocument(ctx, doc.ID, map[string]any{
		"metadata": mergeMetadata(doc.Metadata, map[string]any{"task_id": taskID}),
	})
}
