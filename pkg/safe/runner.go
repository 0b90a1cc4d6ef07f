package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"

	"gopherbook.com/pkg/logger"
)

// Go 安全启动协程，panic 被恢复并记录，不会带崩整个进程
func Go(fn func()) {
	go func() {
		defer recoverAndLog(context.Background(), "")
		fn()
	}()
}

// GoCtx 安全启动携带 context 的协程，便于在日志中保留 trace_id
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverAndLog(ctx, "")
		fn(ctx)
	}()
}

// Run 同步执行 fn 并把 panic 转成日志，name 标明是哪个组件。
// 给 errgroup 之类自己管理协程的调用方用
func Run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(ctx, name, r)
			err = &PanicError{Name: name, Value: r}
		}
	}()
	return fn(ctx)
}

// PanicError 被恢复的 panic
type PanicError struct {
	Name  string
	Value any
}

func (e *PanicError) Error() string {
	return "panic in " + e.Name
}

func recoverAndLog(ctx context.Context, name string) {
	if r := recover(); r != nil {
		logPanic(ctx, name, r)
	}
}

func logPanic(ctx context.Context, name string, r any) {
	logger.Error(ctx, "goroutine panic recovered",
		zap.String("component", name),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)
}
