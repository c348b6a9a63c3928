package model

import "time"

const TableNameTKnowledgeQuery = "t_knowledge_query"

// TKnowledgeQuery 知识库检索历史
type TKnowledgeQuery struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	KnowledgeBaseID int64     `gorm:"column:knowledge_base_id;not null;index:idx_query_kb_id" json:"knowledge_base_id"`
	QueryText       string    `gorm:"column:query_text;type:text;not null" json:"query_text"`
	RetrievalMode   string    `gorm:"column:retrieval_mode;type:varchar(20)" json:"retrieval_mode"`
	TopK            int       `gorm:"column:top_k" json:"top_k"`
	ScoreThreshold  float64   `gorm:"column:score_threshold" json:"score_threshold"`
	ResultCount     int       `gorm:"column:result_count" json:"result_count"`
	LatencyMs       int64     `gorm:"column:latency_ms" json:"latency_ms"`
}

func (*TKnowledgeQuery) TableName() string {
	return TableNameTKnowledgeQuery
}
