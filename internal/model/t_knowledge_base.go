package model

import "time"

const TableNameTKnowledgeBase = "t_knowledge_base"

// 检索模式
const (
	RetrievalModeVector   = "vector"
	RetrievalModeFulltext = "fulltext"
	RetrievalModeHybrid   = "hybrid"
)

// TKnowledgeBase 知识库主表
type TKnowledgeBase struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
	TeamID      int64     `gorm:"column:team_id;not null;index:idx_kb_team_id" json:"team_id"`
	Name        string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Description *string   `gorm:"column:description;type:varchar(1024)" json:"description"`
	// 文本嵌入模型，为空时使用全局默认模型
	EmbeddingModelID   *int64 `gorm:"column:embedding_model_id" json:"embedding_model_id"`
	EmbeddingDimension *int32 `gorm:"column:embedding_dimension" json:"embedding_dimension"`
	// 分块配置，文档级 chunk_setting 优先
	ChunkSize    *int32  `gorm:"column:chunk_size" json:"chunk_size"`
	ChunkOverlap *int32  `gorm:"column:chunk_overlap" json:"chunk_overlap"`
	Separator    *string `gorm:"column:separator;type:varchar(32)" json:"separator"`
	// 检索配置
	RetrievalMode  *string  `gorm:"column:retrieval_mode;type:varchar(20)" json:"retrieval_mode"`
	TopK           *int32   `gorm:"column:top_k" json:"top_k"`
	ScoreThreshold *float64 `gorm:"column:score_threshold" json:"score_threshold"`
	// 向量库
	QdrantCollection *string `gorm:"column:qdrant_collection;type:varchar(100)" json:"qdrant_collection"`
	// 统计
	DocumentCount int64 `gorm:"column:document_count;not null;default:0" json:"document_count"`
	TotalChunks   int64 `gorm:"column:total_chunks;not null;default:0" json:"total_chunks"`
	TotalTokens   int64 `gorm:"column:total_tokens;not null;default:0" json:"total_tokens"`
}

func (*TKnowledgeBase) TableName() string {
	return TableNameTKnowledgeBase
}
