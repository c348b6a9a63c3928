package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"llmhub/internal/model"
	"llmhub/internal/types"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type memStore struct {
	records map[[2]int64]*model.TTeamModel
	saves   int
}

func newMemStore(records ...*model.TTeamModel) *memStore {
	s := &memStore{records: make(map[[2]int64]*model.TTeamModel)}
	for _, r := range records {
		s.records[[2]int64{r.TeamID, r.ModelID}] = r
	}
	return s
}

func (s *memStore) GetTeamModel(_ context.Context, teamID, modelID int64) (*model.TTeamModel, error) {
	r, ok := s.records[[2]int64{teamID, modelID}]
	if !ok {
		return nil, types.ErrTeamModelNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) SaveTeamModel(_ context.Context, tm *model.TTeamModel) error {
	s.saves++
	cp := *tm
	s.records[[2]int64{tm.TeamID, tm.ModelID}] = &cp
	return nil
}

func (s *memStore) GetAIModel(_ context.Context, id int64) (*model.TAiModel, error) {
	return &model.TAiModel{ID: id, Name: "text-embedding-3-small"}, nil
}

func (s *memStore) ResetDailyUsage(_ context.Context, before, now time.Time) (int64, error) {
	var n int64
	for _, r := range s.records {
		if r.DailyResetAt == nil || r.DailyResetAt.Before(before) {
			r.DailyTokensUsed, r.DailyRequestsUsed = 0, 0
			stamp := now
			r.DailyResetAt = &stamp
			n++
		}
	}
	return n, nil
}

func (s *memStore) ResetMonthlyUsage(_ context.Context, before, now time.Time) (int64, error) {
	var n int64
	for _, r := range s.records {
		if r.MonthlyResetAt == nil || r.MonthlyResetAt.Before(before) {
			r.MonthlyTokensUsed, r.MonthlyRequestsUsed = 0, 0
			stamp := now
			r.MonthlyResetAt = &stamp
			n++
		}
	}
	return n, nil
}

func (s *memStore) get(teamID, modelID int64) *model.TTeamModel {
	return s.records[[2]int64{teamID, modelID}]
}

func ptr[T any](v T) *T { return &v }

var baseTime = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func freshRecord(now time.Time) *model.TTeamModel {
	return &model.TTeamModel{
		TeamID:         1,
		ModelID:        2,
		IsEnabled:      true,
		DailyResetAt:   ptr(now),
		MonthlyResetAt: ptr(now),
	}
}

func newTestTracker(store Store, clock clockwork.Clock) *Tracker {
	return NewTracker(store, WithClock(clock), WithLocation(time.UTC))
}

func TestCheckAndRecordUsage_DailyTokenBoundary(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.DailyTokenLimit = ptr(int64(1000))
	rec.DailyTokensUsed = 950
	store := newMemStore(rec)
	tracker := newTestTracker(store, clockwork.NewFakeClockAt(baseTime))
	ctx := context.Background()

	_, err := tracker.CheckAndRecordUsage(ctx, 1, 2, 50, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), store.get(1, 2).DailyTokensUsed)
	assert.Equal(t, int64(50), store.get(1, 2).MonthlyTokensUsed)
	assert.Equal(t, int64(1), store.get(1, 2).DailyRequestsUsed)
	assert.Equal(t, 1, store.saves)

	_, err = tracker.CheckAndRecordUsage(ctx, 1, 2, 1, 1)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, DailyToken, exceeded.Dimension)
	assert.ErrorIs(t, err, types.ErrQuotaExceeded)
	assert.Equal(t, int64(1000), store.get(1, 2).DailyTokensUsed)
	assert.Equal(t, int64(1), store.get(1, 2).DailyRequestsUsed)
	assert.Equal(t, 1, store.saves)
}

func TestCheckQuota_DimensionOrder(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.MonthlyTokenLimit = ptr(int64(10))
	rec.MonthlyTokensUsed = 10
	rec.DailyRequestLimit = ptr(int64(3))
	rec.DailyRequestsUsed = 3
	tracker := newTestTracker(newMemStore(rec), clockwork.NewFakeClockAt(baseTime))

	_, err := tracker.CheckQuota(context.Background(), 1, 2, 1)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, MonthlyToken, exceeded.Dimension)

	// 不消耗 token 时轮到日请求数
	_, err = tracker.CheckQuota(context.Background(), 1, 2, 0)
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, DailyRequest, exceeded.Dimension)
}

func TestCheckQuota_MonthlyRequest(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.MonthlyRequestLimit = ptr(int64(5))
	rec.MonthlyRequestsUsed = 5
	tracker := newTestTracker(newMemStore(rec), clockwork.NewFakeClockAt(baseTime))

	_, err := tracker.CheckQuota(context.Background(), 1, 2, 0)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, MonthlyRequest, exceeded.Dimension)
}

func TestCheckQuota_NotFoundAndDisabled(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.IsEnabled = false
	tracker := newTestTracker(newMemStore(rec), clockwork.NewFakeClockAt(baseTime))

	_, err := tracker.CheckQuota(context.Background(), 1, 3, 0)
	assert.ErrorIs(t, err, types.ErrTeamModelNotFound)

	_, err = tracker.CheckQuota(context.Background(), 1, 2, 0)
	assert.ErrorIs(t, err, types.ErrTeamModelDisabled)
	assert.False(t, errors.Is(err, types.ErrQuotaExceeded))
}

func TestCheckQuota_NullLimitsNeverExceed(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.DailyTokensUsed = 1 << 40
	rec.DailyRequestsUsed = 1 << 40
	tracker := newTestTracker(newMemStore(rec), clockwork.NewFakeClockAt(baseTime))

	_, err := tracker.CheckQuota(context.Background(), 1, 2, 1<<20)
	assert.NoError(t, err)
}

func TestLazyReset_DayAndMonthBoundaries(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.DailyTokensUsed = 100
	rec.DailyRequestsUsed = 4
	rec.MonthlyTokensUsed = 900
	rec.MonthlyRequestsUsed = 40
	store := newMemStore(rec)
	clock := clockwork.NewFakeClockAt(baseTime)
	tracker := newTestTracker(store, clock)
	ctx := context.Background()

	// 同一天不重置，也不写库
	_, err := tracker.CheckQuota(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, int64(100), store.get(1, 2).DailyTokensUsed)

	// 跨天只清日计数
	clock.Advance(24 * time.Hour)
	_, err = tracker.CheckQuota(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	assert.Zero(t, store.get(1, 2).DailyTokensUsed)
	assert.Zero(t, store.get(1, 2).DailyRequestsUsed)
	assert.Equal(t, int64(900), store.get(1, 2).MonthlyTokensUsed)

	// 跨月清月计数
	clock.Advance(20 * 24 * time.Hour)
	_, err = tracker.CheckQuota(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.Zero(t, store.get(1, 2).MonthlyTokensUsed)
	assert.Zero(t, store.get(1, 2).MonthlyRequestsUsed)
}

// Property: 同一天内多次检查最多重置一次
func TestLazyReset_Idempotent_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lastReset := baseTime.Add(-time.Duration(rapid.IntRange(1, 90*24).Draw(t, "hoursAgo")) * time.Hour)
		rec := freshRecord(lastReset)
		rec.DailyTokensUsed = rapid.Int64Range(0, 1000).Draw(t, "dailyUsed")
		rec.MonthlyTokensUsed = rapid.Int64Range(0, 1000).Draw(t, "monthlyUsed")
		store := newMemStore(rec)
		clock := clockwork.NewFakeClockAt(baseTime)
		tracker := newTestTracker(store, clock)

		checks := rapid.IntRange(2, 6).Draw(t, "checks")
		for i := 0; i < checks; i++ {
			if _, err := tracker.CheckQuota(context.Background(), 1, 2, 0); err != nil {
				t.Fatalf("检查失败: %v", err)
			}
			clock.Advance(time.Duration(rapid.IntRange(0, 60).Draw(t, "minutes")) * time.Minute)
		}
		if store.saves > 1 {
			t.Fatalf("同一天重置了 %d 次", store.saves)
		}
	})
}

func TestRecordUsage(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.DailyTokenLimit = ptr(int64(10))
	rec.DailyTokensUsed = 10
	store := newMemStore(rec)
	tracker := newTestTracker(store, clockwork.NewFakeClockAt(baseTime))

	// 不检查配额
	_, err := tracker.RecordUsage(context.Background(), 1, 2, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(15), store.get(1, 2).DailyTokensUsed)
	assert.Equal(t, int64(2), store.get(1, 2).MonthlyRequestsUsed)

	_, err = tracker.RecordUsage(context.Background(), 9, 9, 1, 1)
	assert.ErrorIs(t, err, types.ErrTeamModelNotFound)
}

func TestGetUsageStats(t *testing.T) {
	rec := freshRecord(baseTime)
	rec.DailyTokenLimit = ptr(int64(3))
	rec.DailyTokensUsed = 1
	rec.MonthlyTokenLimit = ptr(int64(0))
	rec.MonthlyTokensUsed = 7
	tracker := newTestTracker(newMemStore(rec), clockwork.NewFakeClockAt(baseTime))

	stats, err := tracker.GetUsageStats(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", stats.ModelName)
	assert.True(t, stats.IsEnabled)
	require.NotNil(t, stats.DailyTokens.Percent)
	assert.Equal(t, 33.33, *stats.DailyTokens.Percent)
	assert.Nil(t, stats.MonthlyTokens.Percent)
	assert.Nil(t, stats.DailyRequests.Percent)
	assert.Nil(t, stats.DailyRequests.Limit)
}

func TestBatchReset(t *testing.T) {
	stale := freshRecord(baseTime.Add(-48 * time.Hour))
	stale.DailyTokensUsed = 10
	current := freshRecord(baseTime)
	current.TeamID = 2
	current.DailyTokensUsed = 20
	store := newMemStore(stale, current)
	tracker := newTestTracker(store, clockwork.NewFakeClockAt(baseTime))

	n, err := tracker.ResetDailyUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, store.get(1, 2).DailyTokensUsed)
	assert.Equal(t, int64(20), store.get(2, 2).DailyTokensUsed)

	n, err = tracker.ResetMonthlyUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
