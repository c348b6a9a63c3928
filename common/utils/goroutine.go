package utils

import (
	"runtime/debug"

	"llmhub/common/logger"

	"go.uber.org/zap"
)

// SafeGo 启动一个 goroutine，捕获 panic 并记录堆栈
// 使用方式: utils.SafeGo("queue-worker-1", func() { ... })
func SafeGo(name string, fn func()) {
	go SafeRun(name, fn)
}

// SafeRun 在当前 goroutine 中执行 fn，panic 时记录日志后返回 false
func SafeRun(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panic recovered",
				zap.String("name", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			ok = false
		}
	}()
	fn()
	return true
}
