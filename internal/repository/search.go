package repository

import (
	"context"
	"strings"

	"gorm.io/datatypes"

	"llmhub/internal/model"
	"llmhub/internal/retrieval"
)

type candidateRow struct {
	ChunkID      int64
	DocumentID   int64
	DocumentName string
	ChunkIndex   int
	Content      string
	Metadata     datatypes.JSONMap
}

// FindCandidates 按词项 LIKE 预过滤候选分块，任一词项命中即可
// 词项只含字母、数字与 CJK 字符，无需转义通配符
func (r *Repository) FindCandidates(ctx context.Context, q retrieval.CandidateQuery) ([]retrieval.Candidate, error) {
	db := r.db.WithContext(ctx).
		Table(model.TableNameTDocumentChunk+" AS c").
		Select("c.id AS chunk_id, c.document_id, d.name AS document_name, c.chunk_index, c.content, c.metadata").
		Joins("JOIN "+model.TableNameTKnowledgeDocument+" AS d ON d.id = c.document_id").
		Where("c.knowledge_base_id = ?", q.KnowledgeBaseID)

	if len(q.DocumentIDs) > 0 {
		db = db.Where("c.document_id IN ?", q.DocumentIDs)
	}
	if len(q.Terms) > 0 {
		conds := make([]string, 0, len(q.Terms))
		args := make([]any, 0, len(q.Terms))
		for _, term := range q.Terms {
			conds = append(conds, "LOWER(c.content) LIKE ?")
			args = append(args, "%"+strings.ToLower(term)+"%")
		}
		db = db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []candidateRow
	if err := db.Order("c.document_id ASC, c.chunk_index ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]retrieval.Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, retrieval.Candidate{
			ChunkID:      row.ChunkID,
			DocumentID:   row.DocumentID,
			DocumentName: row.DocumentName,
			ChunkIndex:   row.ChunkIndex,
			Content:      row.Content,
			Metadata:     row.Metadata,
		})
	}
	return out, nil
}

// SaveQuery 记录检索历史
func (r *Repository) SaveQuery(ctx context.Context, q *model.TKnowledgeQuery) error {
	return r.db.WithContext(ctx).Create(q).Error
}

// ListQueries 最近的检索历史
func (r *Repository) ListQueries(ctx context.Context, knowledgeBaseID int64, limit int) ([]model.TKnowledgeQuery, error) {
	var rows []model.TKnowledgeQuery
	err := r.db.WithContext(ctx).
		Where("knowledge_base_id = ?", knowledgeBaseID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
