package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gopherbook.com/internal/config"
	"gopherbook.com/internal/engine"
	"gopherbook.com/internal/feed"
	"gopherbook.com/internal/httpapi"
	"gopherbook.com/internal/marketdata"
	"gopherbook.com/internal/streamer"
	"gopherbook.com/pkg/bootstrap"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/ratelimit"
	"gopherbook.com/pkg/safe"
	"gopherbook.com/pkg/xredis"
)

// run 组装所有组件并阻塞到 ctx 结束。
// 端口绑定失败等启动错误在任何协程启动之前返回
func run(ctx context.Context, cfg *config.Cfg, instruments []config.Instrument) error {
	// 1. 行情出口：broker + 可选的 redis 缓存
	broker, err := newBroker(cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	var cache marketdata.Cache
	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		rdb, err := xredis.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// 缓存只是加速读，连不上就降级
			logger.Warn(ctx, "redis unavailable, snapshot cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			cache = marketdata.NewRedisCache(rdb, cfg.SnapshotTTL, ratelimit.NewManager(ratelimit.Rule{}, nil))
		}
	}
	pub := marketdata.NewPublisher(broker, cache)

	// 2. 引擎：每个品种一个 actor
	eng := engine.NewEngine(engine.EngineConfig{
		EventBusSize: cfg.Engine.EventBusSize,
		ActorCfg: engine.ActorConfig{
			MailboxSize: cfg.Engine.MailboxSize,
			BatchMax:    cfg.Engine.BatchMax,
		},
		Snapshots: pub,
	})
	defer func() {
		eng.Stop()
		eng.Wait()
	}()

	// 3. 每个品种一个 TCP 接入，先全部绑定端口
	var limiter *ratelimit.Store
	if cfg.Session.RatePerSec > 0 {
		limiter = ratelimit.NewStore(rate.Limit(cfg.Session.RatePerSec), cfg.Session.Burst, 10*time.Minute)
		limiter.StartJanitor(ctx, time.Minute)
	}
	servers := make([]*streamer.Server, 0, len(instruments))
	for _, in := range instruments {
		if _, err := eng.Register(in.Symbol, in.Variant.NewBook(in.Depth, nil)); err != nil {
			closeAll(servers)
			return err
		}
		srv := streamer.New(streamer.Config{
			Symbol:       in.Symbol,
			Addr:         cfg.Addr(in),
			Decoder:      in.Variant.Decoder,
			Limiter:      limiter,
			MaxLineBytes: cfg.Session.MaxLineBytes,
			WriteTimeout: cfg.Session.WriteTimeout,
		}, eng)
		if err := srv.Listen(); err != nil {
			closeAll(servers)
			return err
		}
		servers = append(servers, srv)
		logger.Info(ctx, "instrument ready",
			zap.String("symbol", in.Symbol),
			zap.String("book_type", in.Variant.Name),
			zap.Int("port", in.Port),
			zap.Int("book_depth", in.Depth))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error { return safe.Run(ctx, "streamer", srv.Serve) })
	}

	// 4. 快照和成交推送
	g.Go(func() error { return safe.Run(ctx, "publisher", pub.Run) })
	g.Go(func() error {
		return safe.Run(ctx, "events", func(ctx context.Context) error {
			eng.Bus().Drain(ctx, func(ev engine.Event) { pub.OnEvent(ctx, ev) })
			return nil
		})
	})

	// 5. 读接口：HTTP 快照 + websocket 推送
	hub := feed.NewHub()
	g.Go(func() error {
		return safe.Run(ctx, "feed-bridge", func(ctx context.Context) error {
			return feed.Bridge(ctx, broker, hub, feed.Topics(eng.Symbols()))
		})
	})
	if cfg.HTTPAddr != "" {
		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		api := httpapi.NewServer(eng, httpapi.Config{
			Addr:       cfg.HTTPAddr,
			Cache:      cache,
			Feed:       feed.NewServer(ctx, hub),
			GinMetrics: true,
		})
		g.Go(func() error { return bootstrap.Serve(ctx, "http", api) })
	}
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return bootstrap.Serve(ctx, "metrics", bootstrap.MetricsServer(cfg.MetricsAddr)) })
	}
	if cfg.PprofAddr != "" {
		g.Go(func() error { return bootstrap.Serve(ctx, "pprof", bootstrap.PprofServer(cfg.PprofAddr)) })
	}

	logger.Info(ctx, "bookd started", zap.Int("instruments", len(instruments)))
	err = g.Wait()
	logger.Info(context.WithoutCancel(ctx), "bookd stopping",
		zap.Uint64("events_dropped", eng.DroppedEvents()),
		zap.Uint64("snapshots_published", pub.Published()))
	return err
}

func newBroker(cfg *config.Cfg) (marketdata.Broker, error) {
	if cfg.NatsURL == "" {
		return marketdata.NewMemBroker(0), nil
	}
	nb, err := marketdata.NewNatsBroker(cfg.NatsURL)
	if err != nil {
		return nil, err
	}
	return nb, nil
}

func closeAll(servers []*streamer.Server) {
	for _, srv := range servers {
		_ = srv.Close()
	}
}
