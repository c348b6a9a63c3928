package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"llmhub/common/utils"
)

// Inline 未配置 Redis 时在进程内异步执行任务，同一文档的任务串行
type Inline struct {
	runner  Runner
	timeout time.Duration
	locks   sync.Map // document_id -> *sync.Mutex
	wg      sync.WaitGroup
	log     *zap.Logger
}

// NewInline 创建进程内分发器
func NewInline(runner Runner, timeout time.Duration, log *zap.Logger) *Inline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inline{runner: runner, timeout: timeout, log: log}
}

// Dispatch 分配任务ID并在后台协程执行
func (d *Inline) Dispatch(_ context.Context, task Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.EnqueuedAt = time.Now()

	d.wg.Add(1)
	utils.SafeGo("inline-task-"+task.ID, func() {
		defer d.wg.Done()
		d.run(task)
	})
	return task.ID, nil
}

// Wait 等待已提交任务全部结束
func (d *Inline) Wait() {
	d.wg.Wait()
}

func (d *Inline) run(task Task) {
	v, _ := d.locks.LoadOrStore(task.DocumentID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := Execute(ctx, d.runner, task); err != nil {
		d.log.Warn("任务执行失败",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Int64("document_id", task.DocumentID),
			zap.Error(err),
		)
	}
}
