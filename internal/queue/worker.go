package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"llmhub/common/utils"
	"llmhub/internal/config"
)

const (
	defaultPopTimeout   = 2 * time.Second
	defaultRequeueDelay = 3 * time.Second
	maxRequeue          = 20
)

// Worker 消费任务队列
type Worker struct {
	queue        *RedisQueue
	runner       Runner
	concurrency  int
	taskTimeout  time.Duration
	popTimeout   time.Duration
	requeueDelay time.Duration
	log          *zap.Logger
}

// WorkerOption Worker 选项
type WorkerOption func(*Worker)

// WithPopTimeout 设置单次 BRPOP 等待时间
func WithPopTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) { w.popTimeout = d }
}

// WithRequeueDelay 设置文档被占用时重新入队前的等待时间
func WithRequeueDelay(d time.Duration) WorkerOption {
	return func(w *Worker) { w.requeueDelay = d }
}

// WithWorkerLogger 设置日志
func WithWorkerLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) { w.log = l }
}

// NewWorker 创建队列消费者
func NewWorker(q *RedisQueue, runner Runner, cfg config.QueueConfig, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:        q,
		runner:       runner,
		concurrency:  max(cfg.Workers, 1),
		taskTimeout:  cfg.TaskTimeout,
		popTimeout:   defaultPopTimeout,
		requeueDelay: defaultRequeueDelay,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 启动消费协程，ctx 取消后等待所有协程退出
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		utils.SafeGo(fmt.Sprintf("queue-worker-%d", i), func() {
			defer wg.Done()
			w.loop(ctx)
		})
	}
	w.log.Info("队列消费者已启动", zap.Int("workers", w.concurrency))
	wg.Wait()
	w.log.Info("队列消费者已停止")
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		task, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("拉取任务失败", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if task == nil {
			continue
		}
		utils.SafeRun("queue-task", func() {
			if err := w.Handle(ctx, *task); err != nil {
				w.log.Warn("任务执行失败",
					zap.String("task_id", task.ID),
					zap.String("kind", task.Kind),
					zap.Int64("document_id", task.DocumentID),
					zap.Error(err),
				)
			}
		})
	}
}

// Handle 在文档租约内执行单个任务；文档被占用时延迟后重新入队
func (w *Worker) Handle(ctx context.Context, task Task) error {
	ok, err := w.queue.Acquire(ctx, task.DocumentID, task.ID)
	if err != nil {
		return fmt.Errorf("获取文档租约失败: %w", err)
	}
	if !ok {
		return w.requeue(ctx, task)
	}
	defer func() {
		if err := w.queue.Release(context.WithoutCancel(ctx), task.DocumentID, task.ID); err != nil {
			w.log.Warn("释放文档租约失败", zap.Int64("document_id", task.DocumentID), zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	start := time.Now()
	if err := Execute(runCtx, w.runner, task); err != nil {
		return err
	}
	w.log.Info("任务完成",
		zap.String("task_id", task.ID),
		zap.String("kind", task.Kind),
		zap.Int64("document_id", task.DocumentID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (w *Worker) requeue(ctx context.Context, task Task) error {
	task.Attempts++
	if task.Attempts > maxRequeue {
		return fmt.Errorf("文档 %d 持续被占用，放弃任务", task.DocumentID)
	}
	if !sleep(ctx, w.requeueDelay) {
		return ctx.Err()
	}
	return w.queue.push(context.WithoutCancel(ctx), task)
}

// sleep 等待 d，ctx 先结束时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
