package feed

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"gopherbook.com/pkg/metrics"
)

// Conn 一个 websocket 订阅者。每个 topic 只保留最新一条（LatestOnly）
type Conn struct {
	id string
	ws *websocket.Conn

	mu     sync.Mutex
	latest map[string][]byte
	order  []string      // topic 首次进入 latest 的顺序
	notify chan struct{} // 缓冲 1：合并唤醒
	closed atomic.Bool
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:     id,
		ws:     ws,
		latest: make(map[string][]byte, 8),
		notify: make(chan struct{}, 1),
	}
}

// Offer 覆盖该 topic 未发送的旧消息，不阻塞
func (c *Conn) Offer(topic string, payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	if _, ok := c.latest[topic]; ok {
		metrics.WSDroppedTotal.WithLabelValues("superseded").Inc()
	} else {
		c.order = append(c.order, topic)
	}
	c.latest[topic] = payload
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// flushLatest 单次最多取 max 条，剩余的留到下一轮
func (c *Conn) flushLatest(max int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return nil
	}
	n := min(len(c.order), max)
	out := make([][]byte, 0, n)
	for _, t := range c.order[:n] {
		out = append(out, c.latest[t])
		delete(c.latest, t)
	}
	c.order = append(c.order[:0], c.order[n:]...)
	if len(c.order) > 0 {
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
	return out
}
