package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceID 在 Context 中的 Key。每个 TCP 会话、每个 HTTP 请求各自一个
const TraceIdKey = "trace_id"

// 全局 Logger 实例
var Log = zap.NewNop()

// 运行时可调的日志级别，配置热更新时修改
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Init 初始化日志组件，只输出到控制台
// serviceName: 服务名 (例如 "bookd")
// level: 日志级别 (debug, info, warn, error)
func Init(serviceName string, level string) {
	InitWithFile(serviceName, level, "")
}

// InitWithFile 初始化日志组件，logFile 非空时同时追加写入文件
func InitWithFile(serviceName string, lvl string, logFile string) {
	// 1. 日志级别，解析失败默认 Info
	_ = SetLevel(lvl)

	// 2. 编码器 (生产环境强制用 JSON)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	// 3. 写入目标：控制台 (容器化标准) + 可选文件
	writeSyncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
			// 打开失败只输出到控制台，不中断程序
			if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(file))
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		level,
	)
	Replace(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).With(zap.String("service", serviceName)))
}

// Replace 替换全局 Logger，测试里用来劫持输出
func Replace(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	Log = l
}

// SetLevel 修改日志级别，非法值保持 Info 并返回错误
func SetLevel(lvl string) error {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(lvl)); err != nil {
		level.SetLevel(zap.InfoLevel)
		return err
	}
	level.SetLevel(zl)
	return nil
}

func Level() zapcore.Level { return level.Level() }

// WithTraceID 把 traceID 放进 ctx，后续日志自动带上 trace_id 字段
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIdKey, traceID)
}

// TraceID 从 ctx 取 traceID，没有返回空串
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(TraceIdKey).(string)
	return s
}

// ---------------------------------------------------------
// 核心封装：带 Context 的日志方法
// ---------------------------------------------------------

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, extractTrace(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Error(msg, extractTrace(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, extractTrace(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Debug(msg, extractTrace(ctx, fields)...)
}

// Fatal 会调用 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Fatal(msg, extractTrace(ctx, fields)...)
}

// extractTrace 从 Context 中提取 TraceID 并追加到 fields
func extractTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	if traceID := TraceID(ctx); traceID != "" {
		fields = append(fields, zap.String(TraceIdKey, traceID))
	}
	return fields
}

// Sync 刷新缓冲区 (main 函数 defer 中调用)
func Sync() {
	_ = Log.Sync()
}
