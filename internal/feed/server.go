package feed

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"gopherbook.com/pkg/common"
	"gopherbook.com/pkg/logger"
	"gopherbook.com/pkg/metrics"
)

// ClientMsg 客户端订阅指令
type ClientMsg struct {
	Type   string   `json:"type"`   // "sub" | "unsub"
	Topics []string `json:"topics"` // 例如 book:AAPL、trades:AAPL
}

const maxFlush = 256 // 单次最多写多少条

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader

	ctx context.Context

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		Hub: h,
		ctx: ctx,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 100 * time.Millisecond,
		WriteWait:  5 * time.Second,
		ReadLimit:  1 << 10,
	}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写过错误响应
		return
	}
	c := newConn(common.NewID(), ws)
	metrics.WSConns.Inc()

	ctx := logger.WithTraceID(s.ctx, c.id)
	logger.Debug(ctx, "feed conn opened", zap.String("remote", r.RemoteAddr))

	go s.writePump(ctx, c)
	go s.readPump(ctx, c)
}

func (s *Server) readPump(ctx context.Context, c *Conn) {
	defer func() {
		c.closed.Store(true)
		// 唤醒 writePump 让它退出
		select {
		case c.notify <- struct{}{}:
		default:
		}
		s.Hub.RemoveConn(c)
		_ = c.ws.Close()
		metrics.WSConns.Dec()
		logger.Debug(ctx, "feed conn closed")
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "sub":
			s.Hub.Subscribe(c, msg.Topics)
		case "unsub":
			s.Hub.Unsubscribe(c, msg.Topics)
		}
	}
}

func (s *Server) writePump(ctx context.Context, c *Conn) {
	// ping 时间打散，避免所有连接同时发 ping
	if s.PingJitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(s.PingJitter))))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			_ = c.ws.Close()
			return
		}
	}

	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.notify:
			if c.closed.Load() {
				return
			}
			batch := c.flushLatest(maxFlush)
			if len(batch) == 0 {
				continue
			}
			// 一个文本帧写完本批，多条 JSON 用换行分隔
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.WriteWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			for i, payload := range batch {
				if i > 0 {
					_, _ = w.Write([]byte("\n"))
				}
				if _, err = w.Write(payload); err != nil {
					break
				}
			}
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				logger.Debug(ctx, "feed write failed", zap.Error(err))
				return
			}
			metrics.WSMsgsOutTotal.Add(float64(len(batch)))
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(s.WriteWait))
			return
		}
	}
}
