package repository

import (
	"context"

	"gorm.io/gorm"

	"llmhub/internal/model"
	"llmhub/internal/types"
)

// CreateKnowledgeBase 创建知识库
func (r *Repository) CreateKnowledgeBase(ctx context.Context, kb *model.TKnowledgeBase) error {
	return r.db.WithContext(ctx).Create(kb).Error
}

// GetKnowledgeBase 获取知识库
func (r *Repository) GetKnowledgeBase(ctx context.Context, id int64) (*model.TKnowledgeBase, error) {
	return first[model.TKnowledgeBase](ctx, r.db, types.ErrKnowledgeBaseNotFound, "id = ?", id)
}

// UpdateKnowledgeBase 按字段更新知识库
func (r *Repository) UpdateKnowledgeBase(ctx context.Context, id int64, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&model.TKnowledgeBase{}).Where("id = ?", id).Updates(fields).Error
}

// AdjustKnowledgeBaseStats 增减知识库文档数、分块数与 token 数，结果不低于 0
func (r *Repository) AdjustKnowledgeBaseStats(ctx context.Context, id, documents, chunks, tokens int64) error {
	return r.db.WithContext(ctx).Model(&model.TKnowledgeBase{}).Where("id = ?", id).Updates(map[string]any{
		"document_count": clampedAdd("document_count", documents),
		"total_chunks":   clampedAdd("total_chunks", chunks),
		"total_tokens":   clampedAdd("total_tokens", tokens),
	}).Error
}

// CreateDocument 创建文档
func (r *Repository) CreateDocument(ctx context.Context, doc *model.TKnowledgeDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetDocument 获取文档
func (r *Repository) GetDocument(ctx context.Context, id int64) (*model.TKnowledgeDocument, error) {
	return first[model.TKnowledgeDocument](ctx, r.db, types.ErrDocumentNotFound, "id = ?", id)
}

// UpdateDocument 按字段更新文档
func (r *Repository) UpdateDocument(ctx context.Context, id int64, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&model.TKnowledgeDocument{}).Where("id = ?", id).Updates(fields).Error
}

// AdjustDocumentStats 增减文档分块数与 token 数，结果不低于 0
func (r *Repository) AdjustDocumentStats(ctx context.Context, id, chunks, tokens int64) error {
	return r.db.WithContext(ctx).Model(&model.TKnowledgeDocument{}).Where("id = ?", id).Updates(map[string]any{
		"chunk_count": clampedAdd("chunk_count", chunks),
		"token_count": clampedAdd("token_count", tokens),
	}).Error
}

// DeleteDocument 删除文档及其全部分块
func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.TDocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.TKnowledgeDocument{}, id).Error
	})
}

// ListChunks 按序号列出文档分块
func (r *Repository) ListChunks(ctx context.Context, documentID int64) ([]model.TDocumentChunk, error) {
	var chunks []model.TDocumentChunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// CountChunks 统计文档分块数
func (r *Repository) CountChunks(ctx context.Context, documentID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TDocumentChunk{}).Where("document_id = ?", documentID).Count(&count).Error
	return count, err
}

// GetChunk 获取分块
func (r *Repository) GetChunk(ctx context.Context, id int64) (*model.TDocumentChunk, error) {
	return first[model.TDocumentChunk](ctx, r.db, types.ErrChunkNotFound, "id = ?", id)
}

// CreateChunk 写入分块
func (r *Repository) CreateChunk(ctx context.Context, chunk *model.TDocumentChunk) error {
	return r.db.WithContext(ctx).Create(chunk).Error
}

// SaveChunk 保存分块全部字段
func (r *Repository) SaveChunk(ctx context.Context, chunk *model.TDocumentChunk) error {
	return r.db.WithContext(ctx).Save(chunk).Error
}

// DeleteChunks 删除文档全部分块，返回删除数量
func (r *Repository) DeleteChunks(ctx context.Context, documentID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.TDocumentChunk{})
	return res.RowsAffected, res.Error
}

// InsertChunkAt 将序号不小于 chunk.ChunkIndex 的分块后移一位后写入新分块
func (r *Repository) InsertChunkAt(ctx context.Context, chunk *model.TDocumentChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.TDocumentChunk{}).
			Where("document_id = ? AND chunk_index >= ?", chunk.DocumentID, chunk.ChunkIndex).
			UpdateColumn("chunk_index", gorm.Expr("chunk_index + 1")).Error
		if err != nil {
			return err
		}
		return tx.Create(chunk).Error
	})
}

// DeleteChunkAndShift 删除分块并将其后的分块前移一位
func (r *Repository) DeleteChunkAndShift(ctx context.Context, chunk *model.TDocumentChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.TDocumentChunk{}, chunk.ID).Error; err != nil {
			return err
		}
		return tx.Model(&model.TDocumentChunk{}).
			Where("document_id = ? AND chunk_index > ?", chunk.DocumentID, chunk.ChunkIndex).
			UpdateColumn("chunk_index", gorm.Expr("chunk_index - 1")).Error
	})
}
