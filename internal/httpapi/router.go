package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"golang.org/x/time/rate"

	"gopherbook.com/internal/feed"
	"gopherbook.com/internal/marketdata"
	"gopherbook.com/internal/matching"
	"gopherbook.com/pkg/middleware"
	"gopherbook.com/pkg/ratelimit"
)

// SnapshotSource 进程内的快照来源，一般是 engine.Engine
type SnapshotSource interface {
	Snapshot(symbol string, depth int) (matching.Snapshot, error)
	Symbols() []string
}

type Config struct {
	Addr string

	// 按 IP+路由 限流
	RateLimit rate.Limit
	Burst     int
	Limiter   *ratelimit.Store // 为 nil 时按 RateLimit/Burst 新建

	// Cache 本进程没有该品种时回退到缓存
	Cache marketdata.Cache
	// Feed 挂在 /ws 上的行情推送
	Feed *feed.Server

	// GinMetrics 暴露 gin 自带的请求指标（挂在 /metrics）
	GinMetrics bool
}

func NewRouter(src SnapshotSource, cfg Config) *gin.Engine {
	limiter := cfg.Limiter
	if limiter == nil {
		if cfg.RateLimit <= 0 {
			cfg.RateLimit, cfg.Burst = 50, 100
		}
		limiter = ratelimit.NewStore(cfg.RateLimit, cfg.Burst, 10*time.Minute)
	}

	r := gin.New()
	if cfg.GinMetrics {
		p := ginprom.NewPrometheus("gopherbook")
		p.Use(r)
	}
	r.Use(
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)

	h := &handler{src: src, cache: cfg.Cache}
	r.GET("/healthz", h.health)

	api := r.Group("/api", middleware.RateLimit(limiter))
	{
		api.GET("/books", h.symbols)
		api.GET("/books/:symbol", h.book)
	}
	if cfg.Feed != nil {
		r.GET("/ws", gin.WrapF(cfg.Feed.ServeWS))
	}
	return r
}

func NewServer(src SnapshotSource, cfg Config) *http.Server {
	return &http.Server{
		Addr:           cfg.Addr,
		Handler:        NewRouter(src, cfg),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
