package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const TableNameTKnowledgeDocument = "t_knowledge_document"

// 文档处理状态，error 为终态，只能通过重新处理离开
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusError      = "error"
)

// ChunkSetting 文档级分块设置，非零字段覆盖知识库配置
type ChunkSetting struct {
	Separator    string `json:"separator,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty"`
}

// Value 实现 driver.Valuer 接口
func (c ChunkSetting) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (c *ChunkSetting) Scan(val interface{}) error {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("ChunkSetting.Scan: unsupported type %T", val)
	}
}

// TKnowledgeDocument 知识库文档表
type TKnowledgeDocument struct {
	ID              int64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt       time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at" json:"updated_at"`
	KnowledgeBaseID int64             `gorm:"column:knowledge_base_id;not null;index:idx_doc_kb_id" json:"knowledge_base_id"`
	Name            string            `gorm:"column:name;type:varchar(255);not null" json:"name"`
	DocType         string            `gorm:"column:doc_type;type:varchar(20);not null" json:"doc_type"`
	FilePath        *string           `gorm:"column:file_path;type:varchar(512)" json:"file_path"`
	FileSize        *int64            `gorm:"column:file_size" json:"file_size"`
	SourceURL       *string           `gorm:"column:source_url;type:varchar(1024)" json:"source_url"`
	Status          string            `gorm:"column:status;type:varchar(20);not null;index:idx_doc_status" json:"status"`
	ErrorMessage    *string           `gorm:"column:error_message;type:text" json:"error_message"`
	ChunkCount      int64             `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	TokenCount      int64             `gorm:"column:token_count;not null;default:0" json:"token_count"`
	ChunkSetting    *ChunkSetting     `gorm:"column:chunk_setting;type:json" json:"chunk_setting"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata;type:json" json:"metadata"`
	ProcessedAt     *time.Time        `gorm:"column:processed_at" json:"processed_at"`
}

func (*TKnowledgeDocument) TableName() string {
	return TableNameTKnowledgeDocument
}
