package model

import "time"

const TableNameTAiModel = "t_ai_model"

// 模型类型
const (
	ModelTypeChat      = "chat"
	ModelTypeEmbedding = "embedding"
)

// TAiModel 平台模型配置
type TAiModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
	Name      string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Provider  string    `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	ModelID   string    `gorm:"column:model_id;type:varchar(128);not null" json:"model_id"`
	ModelType string    `gorm:"column:model_type;type:varchar(20);not null;index:idx_ai_model_type" json:"model_type"`
	BaseURL   *string   `gorm:"column:base_url;type:varchar(512)" json:"base_url"`
	APIKey    *string   `gorm:"column:api_key;type:varchar(512)" json:"-"`
	Dimension *int32    `gorm:"column:dimension" json:"dimension"`
	IsEnabled bool      `gorm:"column:is_enabled;not null" json:"is_enabled"`
}

func (*TAiModel) TableName() string {
	return TableNameTAiModel
}
