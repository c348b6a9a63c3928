package quota

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DimensionUsage 单个维度的用量
type DimensionUsage struct {
	Used    int64    `json:"used"`
	Limit   *int64   `json:"limit"`
	Percent *float64 `json:"percent"`
}

// UsageStats 团队模型用量
type UsageStats struct {
	TeamID          int64          `json:"team_id"`
	ModelID         int64          `json:"model_id"`
	ModelName       string         `json:"model_name"`
	IsEnabled       bool           `json:"is_enabled"`
	DailyTokens     DimensionUsage `json:"daily_tokens"`
	MonthlyTokens   DimensionUsage `json:"monthly_tokens"`
	DailyRequests   DimensionUsage `json:"daily_requests"`
	MonthlyRequests DimensionUsage `json:"monthly_requests"`
	DailyResetAt    *time.Time     `json:"daily_reset_at"`
	MonthlyResetAt  *time.Time     `json:"monthly_reset_at"`
}

// GetUsageStats 查询用量，返回前同样执行惰性重置
func (t *Tracker) GetUsageStats(ctx context.Context, teamID, modelID int64) (*UsageStats, error) {
	tm, err := t.store.GetTeamModel(ctx, teamID, modelID)
	if err != nil {
		return nil, err
	}
	if t.resetIfLapsed(tm) {
		if err := t.store.SaveTeamModel(ctx, tm); err != nil {
			return nil, err
		}
	}

	stats := &UsageStats{
		TeamID:          tm.TeamID,
		ModelID:         tm.ModelID,
		IsEnabled:       tm.IsEnabled,
		DailyTokens:     DimensionUsage{Used: tm.DailyTokensUsed, Limit: tm.DailyTokenLimit, Percent: percent(tm.DailyTokensUsed, tm.DailyTokenLimit)},
		MonthlyTokens:   DimensionUsage{Used: tm.MonthlyTokensUsed, Limit: tm.MonthlyTokenLimit, Percent: percent(tm.MonthlyTokensUsed, tm.MonthlyTokenLimit)},
		DailyRequests:   DimensionUsage{Used: tm.DailyRequestsUsed, Limit: tm.DailyRequestLimit, Percent: percent(tm.DailyRequestsUsed, tm.DailyRequestLimit)},
		MonthlyRequests: DimensionUsage{Used: tm.MonthlyRequestsUsed, Limit: tm.MonthlyRequestLimit, Percent: percent(tm.MonthlyRequestsUsed, tm.MonthlyRequestLimit)},
		DailyResetAt:    tm.DailyResetAt,
		MonthlyResetAt:  tm.MonthlyResetAt,
	}
	if m, err := t.store.GetAIModel(ctx, modelID); err == nil {
		stats.ModelName = m.Name
	} else {
		t.log.Debug("查询模型名称失败", zap.Int64("model_id", modelID), zap.Error(err))
	}
	return stats, nil
}
