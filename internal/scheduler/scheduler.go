package scheduler

import (
	"context"
	"fmt"
	"time"

	redislock "github.com/go-co-op/gocron-redis-lock/v2"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"llmhub/internal/config"
)

// 任务名称
const (
	JobDailyReset   = "quota-daily-reset"
	JobMonthlyReset = "quota-monthly-reset"
)

// Resetter 配额批量重置
type Resetter interface {
	ResetDailyUsage(ctx context.Context) (int64, error)
	ResetMonthlyUsage(ctx context.Context) (int64, error)
}

// Scheduler 配额重置定时任务
type Scheduler struct {
	cron     gocron.Scheduler
	resetter Resetter
	jobs     map[string]gocron.Job
	log      *zap.Logger
}

// Option 选项
type Option func(*options)

type options struct {
	clock clockwork.Clock
	redis redis.UniversalClient
	log   *zap.Logger
}

// WithClock 替换时钟，测试使用
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRedis 多实例部署时用 Redis 锁保证同一时刻只有一个实例执行重置
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// New 按配置注册每日与每月重置任务，调用 Start 后生效
func New(resetter Resetter, cfg config.QuotaConfig, opts ...Option) (*Scheduler, error) {
	o := &options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	schedOpts := []gocron.SchedulerOption{gocron.WithLocation(cfg.Location())}
	if o.clock != nil {
		schedOpts = append(schedOpts, gocron.WithClock(o.clock))
	}
	if o.redis != nil {
		locker, err := redislock.NewRedisLocker(o.redis)
		if err != nil {
			return nil, fmt.Errorf("创建分布式锁失败: %w", err)
		}
		schedOpts = append(schedOpts, gocron.WithDistributedLocker(locker))
	}
	cron, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("创建调度器失败: %w", err)
	}

	s := &Scheduler{cron: cron, resetter: resetter, jobs: map[string]gocron.Job{}, log: o.log}
	if err := s.add(JobDailyReset, cfg.DailyCron, resetter.ResetDailyUsage); err != nil {
		_ = cron.Shutdown()
		return nil, err
	}
	if err := s.add(JobMonthlyReset, cfg.MonthlyCron, resetter.ResetMonthlyUsage); err != nil {
		_ = cron.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, crontab string, reset func(context.Context) (int64, error)) error {
	job, err := s.cron.NewJob(
		gocron.CronJob(crontab, false),
		gocron.NewTask(func(ctx context.Context) {
			start := time.Now()
			n, err := reset(ctx)
			if err != nil {
				s.log.Error("配额重置失败", zap.String("job", name), zap.Error(err))
				return
			}
			s.log.Info("配额重置完成", zap.String("job", name), zap.Int64("rows", n), zap.Duration("elapsed", time.Since(start)))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("注册任务 %s 失败: %w", name, err)
	}
	s.jobs[name] = job
	return nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
}

// RunNow 立即执行指定任务
func (s *Scheduler) RunNow(name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("任务不存在: %s", name)
	}
	return job.RunNow()
}

// NextRun 指定任务的下次执行时间
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	job, ok := s.jobs[name]
	if !ok {
		return time.Time{}, fmt.Errorf("任务不存在: %s", name)
	}
	return job.NextRun()
}

// Shutdown 停止调度并等待运行中的任务结束
func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}
