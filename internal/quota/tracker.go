// Package quota 按 (团队, 模型) 统计用量并执行日/月配额。
//
// 计数器在读取时惰性重置：上次重置早于当天 0 点（或当月 1 日）即清零。
// 检查与累加之间不加锁，并发请求可能略微超出限额。
package quota

import (
	"context"
	"math"
	"time"

	"llmhub/internal/model"
	"llmhub/internal/types"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Store 配额所需的数据访问
type Store interface {
	GetTeamModel(ctx context.Context, teamID, modelID int64) (*model.TTeamModel, error)
	SaveTeamModel(ctx context.Context, tm *model.TTeamModel) error
	GetAIModel(ctx context.Context, id int64) (*model.TAiModel, error)
	// ResetDailyUsage 将 daily_reset_at 为空或早于 before 的记录日计数清零并记为 now
	ResetDailyUsage(ctx context.Context, before, now time.Time) (int64, error)
	ResetMonthlyUsage(ctx context.Context, before, now time.Time) (int64, error)
}

// Tracker 配额跟踪器
type Tracker struct {
	store Store
	clock clockwork.Clock
	loc   *time.Location
	log   *zap.Logger
}

// Option 跟踪器选项
type Option func(*Tracker)

// WithClock 设置时钟
func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLocation 设置计算日/月边界的时区
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// NewTracker 创建配额跟踪器
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		clock: clockwork.NewRealClock(),
		loc:   time.Local,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CheckQuota 检查本次调用是否在配额内，必要时先惰性重置并落库
func (t *Tracker) CheckQuota(ctx context.Context, teamID, modelID, tokensNeeded int64) (*model.TTeamModel, error) {
	tm, err := t.loadEnabled(ctx, teamID, modelID)
	if err != nil {
		return nil, err
	}
	if t.resetIfLapsed(tm) {
		if err := t.store.SaveTeamModel(ctx, tm); err != nil {
			return nil, err
		}
	}
	if err := checkLimits(tm, tokensNeeded, 1); err != nil {
		return tm, err
	}
	return tm, nil
}

// RecordUsage 累加用量，不做配额检查
func (t *Tracker) RecordUsage(ctx context.Context, teamID, modelID, tokens, requests int64) (*model.TTeamModel, error) {
	tm, err := t.store.GetTeamModel(ctx, teamID, modelID)
	if err != nil {
		t.log.Warn("记录用量时未找到团队模型", zap.Int64("team_id", teamID), zap.Int64("model_id", modelID), zap.Error(err))
		return nil, err
	}
	t.resetIfLapsed(tm)
	addUsage(tm, tokens, requests)
	if err := t.store.SaveTeamModel(ctx, tm); err != nil {
		return nil, err
	}
	return tm, nil
}

// CheckAndRecordUsage 检查配额并累加四个计数器，只写一次库
func (t *Tracker) CheckAndRecordUsage(ctx context.Context, teamID, modelID, tokens, requests int64) (*model.TTeamModel, error) {
	tm, err := t.loadEnabled(ctx, teamID, modelID)
	if err != nil {
		return nil, err
	}
	reset := t.resetIfLapsed(tm)
	if err := checkLimits(tm, tokens, requests); err != nil {
		if reset {
			if saveErr := t.store.SaveTeamModel(ctx, tm); saveErr != nil {
				t.log.Warn("保存配额重置失败", zap.Int64("team_id", teamID), zap.Int64("model_id", modelID), zap.Error(saveErr))
			}
		}
		return tm, err
	}
	addUsage(tm, tokens, requests)
	if err := t.store.SaveTeamModel(ctx, tm); err != nil {
		return nil, err
	}
	return tm, nil
}

// ResetDailyUsage 批量清零已跨天的日计数
func (t *Tracker) ResetDailyUsage(ctx context.Context) (int64, error) {
	now := t.now()
	n, err := t.store.ResetDailyUsage(ctx, dayStart(now), now)
	if err != nil {
		return 0, err
	}
	t.log.Info("日用量已重置", zap.Int64("rows", n))
	return n, nil
}

// ResetMonthlyUsage 批量清零已跨月的月计数
func (t *Tracker) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	now := t.now()
	n, err := t.store.ResetMonthlyUsage(ctx, monthStart(now), now)
	if err != nil {
		return 0, err
	}
	t.log.Info("月用量已重置", zap.Int64("rows", n))
	return n, nil
}

func (t *Tracker) loadEnabled(ctx context.Context, teamID, modelID int64) (*model.TTeamModel, error) {
	tm, err := t.store.GetTeamModel(ctx, teamID, modelID)
	if err != nil {
		return nil, err
	}
	if !tm.IsEnabled {
		return nil, types.ErrTeamModelDisabled
	}
	return tm, nil
}

func (t *Tracker) now() time.Time {
	return t.clock.Now().In(t.loc)
}

// resetIfLapsed 惰性重置，返回是否有变更
func (t *Tracker) resetIfLapsed(tm *model.TTeamModel) bool {
	now := t.now()
	changed := false
	if tm.DailyResetAt == nil || tm.DailyResetAt.Before(dayStart(now)) {
		tm.DailyTokensUsed = 0
		tm.DailyRequestsUsed = 0
		stamp := now
		tm.DailyResetAt = &stamp
		changed = true
	}
	if tm.MonthlyResetAt == nil || tm.MonthlyResetAt.Before(monthStart(now)) {
		tm.MonthlyTokensUsed = 0
		tm.MonthlyRequestsUsed = 0
		stamp := now
		tm.MonthlyResetAt = &stamp
		changed = true
	}
	return changed
}

func dayStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// checkLimits 依次检查日 token、月 token、日请求、月请求，返回第一个超限维度
func checkLimits(tm *model.TTeamModel, tokens, requests int64) error {
	checks := []struct {
		dim   Dimension
		limit *int64
		used  int64
		need  int64
	}{
		{DailyToken, tm.DailyTokenLimit, tm.DailyTokensUsed, tokens},
		{MonthlyToken, tm.MonthlyTokenLimit, tm.MonthlyTokensUsed, tokens},
		{DailyRequest, tm.DailyRequestLimit, tm.DailyRequestsUsed, requests},
		{MonthlyRequest, tm.MonthlyRequestLimit, tm.MonthlyRequestsUsed, requests},
	}
	for _, c := range checks {
		if c.limit != nil && c.used+c.need > *c.limit {
			return &ExceededError{Dimension: c.dim, Limit: *c.limit, Used: c.used, Requested: c.need}
		}
	}
	return nil
}

func addUsage(tm *model.TTeamModel, tokens, requests int64) {
	tm.DailyTokensUsed += tokens
	tm.MonthlyTokensUsed += tokens
	tm.DailyRequestsUsed += requests
	tm.MonthlyRequestsUsed += requests
}

// percent 用量百分比，限额为空或 0 时返回 nil
func percent(used int64, limit *int64) *float64 {
	if limit == nil || *limit == 0 {
		return nil
	}
	p := math.Round(float64(used)/float64(*limit)*10000) / 100
	return &p
}
