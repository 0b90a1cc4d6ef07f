package feed

import (
	"sync"
)

// Hub topic -> 订阅连接，同时保存每个 topic 最近一条消息用于首包回放
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{}
	last map[string][]byte
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 64),
		last: make(map[string][]byte, 64),
	}
}

func (h *Hub) Subscribe(c *Conn, topics []string) {
	type snap struct {
		topic string
		data  []byte
	}

	h.mu.Lock()
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			set = make(map[*Conn]struct{}, 16)
			h.subs[t] = set
		}
		set[c] = struct{}{}
	}
	// 同一把锁里取快照，避免订阅后立刻 publish 却取不到
	snaps := make([]snap, 0, len(topics))
	for _, t := range topics {
		if b := h.last[t]; b != nil {
			snaps = append(snaps, snap{t, b})
		}
	}
	h.mu.Unlock()

	for _, s := range snaps {
		_ = c.Offer(s.topic, s.data)
	}
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		if set := h.subs[t]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, t)
			}
		}
	}
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Publish 广播给 topic 的所有订阅者。每个连接都是非阻塞 Offer，慢客户端不会卡住广播
func (h *Hub) Publish(topic string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	h.mu.Lock()
	h.last[topic] = cp
	conns := make([]*Conn, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Offer(topic, cp)
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Last topic 最近一条消息
func (h *Hub) Last(topic string) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last[topic]
}
