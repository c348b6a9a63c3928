package ingest

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"llmhub/internal/model"
	"llmhub/internal/retrieval"
	"llmhub/internal/types"
)

// ListChunks 按序号列出文档分块
func (p *Pipeline) ListChunks(ctx context.Context, documentID int64) ([]model.TDocumentChunk, error) {
	if _, err := p.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return p.store.ListChunks(ctx, documentID)
}

// UpdateChunk 修改分块内容并重新向量化，token 差值计入文档与知识库；向量化失败时不写入
func (p *Pipeline) UpdateChunk(ctx context.Context, documentID, chunkID int64, content string) (*model.TDocumentChunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "分块内容不能为空")
	}
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunk, err := p.chunkOf(ctx, doc.ID, chunkID)
	if err != nil {
		return nil, err
	}

	vector, err := p.embedder.Embed(ctx, kb, content)
	if err != nil {
		return nil, err
	}

	c := newChunk(chunk.ChunkIndex, content)
	diff := int64(c.TokenCount - chunk.TokenCount)
	chunk.Content = c.Content
	chunk.TokenCount = c.TokenCount
	chunk.CharCount = c.CharCount
	if err := p.store.SaveChunk(ctx, chunk); err != nil {
		return nil, err
	}
	if diff != 0 {
		if err := p.adjustStats(ctx, kb.ID, doc.ID, 0, diff); err != nil {
			return nil, err
		}
	}
	if err := p.upsertChunk(ctx, kb, doc, chunk, vector); err != nil {
		return nil, err
	}
	return chunk, nil
}

// InsertChunk 在 afterIndex 之后插入分块，afterIndex 为空时追加到末尾；后续分块序号整体后移
func (p *Pipeline) InsertChunk(ctx context.Context, documentID int64, content string, afterIndex *int) (*model.TDocumentChunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.NewAppError(types.ErrCodeInvalidParameter, "分块内容不能为空")
	}
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	count, err := p.store.CountChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	index := int(count)
	if afterIndex != nil {
		index = min(max(*afterIndex+1, 0), int(count))
	}

	vector, err := p.embedder.Embed(ctx, kb, content)
	if err != nil {
		return nil, err
	}

	row := newChunkRow(kb.ID, doc.ID, newChunk(index, content), map[string]any{"source": "manual"})
	if err := p.store.InsertChunkAt(ctx, row); err != nil {
		return nil, err
	}
	if err := p.adjustStats(ctx, kb.ID, doc.ID, 1, int64(row.TokenCount)); err != nil {
		return nil, err
	}
	if err := p.upsertChunk(ctx, kb, doc, row, vector); err != nil {
		return nil, err
	}
	return row, nil
}

// DeleteChunk 删除分块，后续分块序号整体前移
func (p *Pipeline) DeleteChunk(ctx context.Context, documentID, chunkID int64) error {
	doc, kb, err := p.load(ctx, documentID)
	if err != nil {
		return err
	}
	chunk, err := p.chunkOf(ctx, doc.ID, chunkID)
	if err != nil {
		return err
	}

	if p.vectors != nil && kb.QdrantCollection != nil && *kb.QdrantCollection != "" {
		if err := p.vectors.DeleteChunk(ctx, *kb.QdrantCollection, chunk.ID); err != nil {
			p.log.Warn("删除分块向量失败", zap.Int64("chunk_id", chunk.ID), zap.Error(err))
		}
	}
	if err := p.store.DeleteChunkAndShift(ctx, chunk); err != nil {
		return err
	}
	return p.adjustStats(ctx, kb.ID, doc.ID, -1, -int64(chunk.TokenCount))
}

func (p *Pipeline) chunkOf(ctx context.Context, documentID, chunkID int64) (*model.TDocumentChunk, error) {
	chunk, err := p.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk.DocumentID != documentID {
		return nil, types.ErrChunkNotFound
	}
	return chunk, nil
}

func (p *Pipeline) adjustStats(ctx context.Context, kbID, docID, chunks, tokens int64) error {
	if err := p.store.AdjustDocumentStats(ctx, docID, chunks, tokens); err != nil {
		return err
	}
	return p.store.AdjustKnowledgeBaseStats(ctx, kbID, 0, chunks, tokens)
}

func (p *Pipeline) upsertChunk(ctx context.Context, kb *model.TKnowledgeBase, doc *model.TKnowledgeDocument, chunk *model.TDocumentChunk, vector []float32) error {
	if p.vectors == nil {
		return nil
	}
	collection, err := p.ensureCollection(ctx, kb, len(vector))
	if err != nil {
		return err
	}
	return p.vectors.Upsert(ctx, collection, []retrieval.VectorPoint{vectorPoint(chunk, doc.Name, vector)})
}
