package model

import "time"

const TableNameTTeamModel = "t_team_model"

// TTeamModel 团队可用模型及用量配额，限额为空表示不限
type TTeamModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
	TeamID    int64     `gorm:"column:team_id;not null;uniqueIndex:uk_team_model,priority:1" json:"team_id"`
	ModelID   int64     `gorm:"column:model_id;not null;uniqueIndex:uk_team_model,priority:2" json:"model_id"`
	IsEnabled bool      `gorm:"column:is_enabled;not null" json:"is_enabled"`
	Priority  int32     `gorm:"column:priority;not null;default:0" json:"priority"`

	DailyTokenLimit     *int64 `gorm:"column:daily_token_limit" json:"daily_token_limit"`
	MonthlyTokenLimit   *int64 `gorm:"column:monthly_token_limit" json:"monthly_token_limit"`
	DailyRequestLimit   *int64 `gorm:"column:daily_request_limit" json:"daily_request_limit"`
	MonthlyRequestLimit *int64 `gorm:"column:monthly_request_limit" json:"monthly_request_limit"`

	DailyTokensUsed     int64 `gorm:"column:daily_tokens_used;not null;default:0" json:"daily_tokens_used"`
	MonthlyTokensUsed   int64 `gorm:"column:monthly_tokens_used;not null;default:0" json:"monthly_tokens_used"`
	DailyRequestsUsed   int64 `gorm:"column:daily_requests_used;not null;default:0" json:"daily_requests_used"`
	MonthlyRequestsUsed int64 `gorm:"column:monthly_requests_used;not null;default:0" json:"monthly_requests_used"`

	DailyResetAt   *time.Time `gorm:"column:daily_reset_at" json:"daily_reset_at"`
	MonthlyResetAt *time.Time `gorm:"column:monthly_reset_at" json:"monthly_reset_at"`
}

func (*TTeamModel) TableName() string {
	return TableNameTTeamModel
}
