package model

import (
	"time"

	"gorm.io/datatypes"
)

const TableNameTDocumentChunk = "t_document_chunk"

// TDocumentChunk 文档分块表，chunk_index 在文档内从 0 连续编号
type TDocumentChunk struct {
	ID              int64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt       time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at" json:"updated_at"`
	KnowledgeBaseID int64             `gorm:"column:knowledge_base_id;not null;index:idx_chunk_kb_id" json:"knowledge_base_id"`
	DocumentID      int64             `gorm:"column:document_id;not null;index:idx_chunk_doc_idx,priority:1" json:"document_id"`
	ChunkIndex      int               `gorm:"column:chunk_index;not null;index:idx_chunk_doc_idx,priority:2" json:"chunk_index"`
	Content         string            `gorm:"column:content;type:text;not null" json:"content"`
	TokenCount      int               `gorm:"column:token_count;not null;default:0" json:"token_count"`
	CharCount       int               `gorm:"column:char_count;not null;default:0" json:"char_count"`
	EmbeddingID     *string           `gorm:"column:embedding_id;type:varchar(128)" json:"embedding_id"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata;type:json" json:"metadata"`
}

func (*TDocumentChunk) TableName() string {
	return TableNameTDocumentChunk
}
