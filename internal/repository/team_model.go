package repository

import (
	"context"
	"time"

	"llmhub/internal/model"
	"llmhub/internal/types"
)

// GetAIModel 获取模型配置
func (r *Repository) GetAIModel(ctx context.Context, id int64) (*model.TAiModel, error) {
	return first[model.TAiModel](ctx, r.db, types.ErrModelNotFound, "id = ?", id)
}

// GetTeamModel 获取团队模型配额记录
func (r *Repository) GetTeamModel(ctx context.Context, teamID, modelID int64) (*model.TTeamModel, error) {
	return first[model.TTeamModel](ctx, r.db, types.ErrTeamModelNotFound, "team_id = ? AND model_id = ?", teamID, modelID)
}

// SaveTeamModel 保存团队模型配额记录全部字段
func (r *Repository) SaveTeamModel(ctx context.Context, tm *model.TTeamModel) error {
	return r.db.WithContext(ctx).Save(tm).Error
}

// ResetDailyUsage 批量清零日窗口已过期的计数
func (r *Repository) ResetDailyUsage(ctx context.Context, before, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.TTeamModel{}).
		Where("daily_reset_at IS NULL OR daily_reset_at < ?", before).
		Updates(map[string]any{
			"daily_tokens_used":   0,
			"daily_requests_used": 0,
			"daily_reset_at":      now,
		})
	return res.RowsAffected, res.Error
}

// ResetMonthlyUsage 批量清零月窗口已过期的计数
func (r *Repository) ResetMonthlyUsage(ctx context.Context, before, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.TTeamModel{}).
		Where("monthly_reset_at IS NULL OR monthly_reset_at < ?", before).
		Updates(map[string]any{
			"monthly_tokens_used":   0,
			"monthly_requests_used": 0,
			"monthly_reset_at":      now,
		})
	return res.RowsAffected, res.Error
}
