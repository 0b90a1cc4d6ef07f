package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gopherbook.com/internal/config"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/metrics"
)

var configFile = flag.String("f", "", "the config file, default ./config/bookd.yaml")

func main() {
	flag.Parse()

	// 1. 加载并校验配置：缺端口等错误在建簿之前直接退出
	cfg, instruments, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookd: %v\n", err)
		os.Exit(1)
	}

	// 2. 基础设施
	logger.InitWithFile(config.ServiceName, cfg.LogLevel, cfg.LogFile)
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// 日志级别热更新
	if err := config.Watch(*configFile, func(next config.Cfg, err error) {
		if err != nil {
			logger.Warn(ctx, "config reload failed", zap.Error(err))
			return
		}
		if err := logger.SetLevel(next.LogLevel); err != nil {
			logger.Warn(ctx, "bad log_level on reload", zap.String("log_level", next.LogLevel), zap.Error(err))
			return
		}
		logger.Info(ctx, "log level reloaded", zap.String("log_level", next.LogLevel))
	}); err != nil {
		logger.Warn(ctx, "config watch disabled", zap.Error(err))
	}

	// 3. 运行直到收到信号
	err = run(ctx, cfg, instruments)
	stop()
	if err != nil {
		logger.Error(context.Background(), "bookd exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info(context.Background(), "bookd stopped")
	logger.Sync()
}
