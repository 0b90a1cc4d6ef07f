package streamer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gopherbook.com/internal/codec"
	"gopherbook.com/internal/engine"
	"gopherbook.com/internal/matching"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/metrics"
	"gopherbook.com/pkg/ratelimit"
	"gopherbook.com/pkg/safe"
)

// Submitter 把解码后的订单交给引擎并等结果
type Submitter interface {
	Submit(ctx context.Context, symbol string, reqID uint64, o matching.Order) (engine.Result, error)
}

type Config struct {
	Symbol  string
	Addr    string
	Decoder codec.Decoder
	// Limiter 按会话 id 限流，nil 表示不限
	Limiter      *ratelimit.Store
	MaxLineBytes int
	WriteTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = 4 * 1024
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 500 * time.Millisecond
	}
	if c.Decoder == nil {
		c.Decoder = codec.Integer
	}
}

// Server 单个品种的 TCP 接入：每个连接一个会话协程
type Server struct {
	cfg    Config
	engine Submitter

	ln    net.Listener
	reqID atomic.Uint64

	mu       sync.Mutex
	sessions map[*session]struct{}
	wg       sync.WaitGroup
}

func New(cfg Config, sub Submitter) *Server {
	cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		engine:   sub,
		sessions: make(map[*session]struct{}),
	}
}

// Listen 绑定端口。在 Serve 之前调用，启动阶段就能发现端口冲突
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s for %s: %w", s.cfg.Addr, s.cfg.Symbol, err)
	}
	s.ln = ln
	return nil
}

// Close 释放已绑定但还没 Serve 的端口
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Addr 实际监听地址，端口为 0 时用它拿到系统分配的端口
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve 接受连接直到 ctx 结束；返回前关闭所有会话并等它们退出
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	logger.Info(ctx, "streamer listening",
		zap.String("symbol", s.cfg.Symbol),
		zap.String("addr", s.ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() {
		_ = s.ln.Close()
		s.closeSessions()
	})
	defer stop()

	for {
		c, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.closeSessions()
				s.wg.Wait()
				return nil
			}
			logger.Warn(ctx, "accept failed", zap.String("symbol", s.cfg.Symbol), zap.Error(err))
			continue
		}
		s.startSession(ctx, c)
	}
}

func (s *Server) startSession(ctx context.Context, c net.Conn) {
	ss := newSession(s, c)
	s.mu.Lock()
	s.sessions[ss] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	safe.GoCtx(ctx, func(ctx context.Context) {
		defer s.wg.Done()
		ss.run(ctx)
	})
}

func (s *Server) dropSession(ss *session) {
	s.mu.Lock()
	delete(s.sessions, ss)
	s.mu.Unlock()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ss := range s.sessions {
		ss.close()
	}
}

// Sessions 当前打开的连接数
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) nextReqID() uint64 { return s.reqID.Add(1) }

func (s *Server) gauge() {
	metrics.SessionsActive.WithLabelValues(s.cfg.Symbol).Set(float64(s.Sessions()))
}
