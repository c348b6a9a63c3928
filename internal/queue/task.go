package queue

import (
	"context"
	"fmt"
	"time"
)

// 任务类型
const (
	KindProcess   = "process"
	KindReprocess = "reprocess"
	KindRechunk   = "rechunk"
	KindImport    = "import"
)

// Task 文档处理任务
type Task struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	DocumentID int64     `json:"document_id"`
	Contents   []string  `json:"contents,omitempty"` // 仅 import 使用
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Runner 执行任务的入库流程
type Runner interface {
	Process(ctx context.Context, documentID int64) error
	Reprocess(ctx context.Context, documentID int64) error
	ImportChunks(ctx context.Context, documentID int64, contents []string) error
}

// Dispatcher 提交任务，返回任务ID
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) (string, error)
}

// Execute 按任务类型调用入库流程；rechunk 的分块设置在提交前已保存
func Execute(ctx context.Context, runner Runner, task Task) error {
	switch task.Kind {
	case KindProcess:
		return runner.Process(ctx, task.DocumentID)
	case KindReprocess, KindRechunk:
		return runner.Reprocess(ctx, task.DocumentID)
	case KindImport:
		return runner.ImportChunks(ctx, task.DocumentID, task.Contents)
	default:
		return fmt.Errorf("未知任务类型: %s", task.Kind)
	}
}
