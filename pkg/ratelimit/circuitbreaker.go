package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"gopherbook.com/pkg/metrics"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数
	MaxRequests uint32

	// Closed 状态计数窗口
	Interval time.Duration

	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration

	// 触发熔断条件（两种之一即可）
	TripConsecutiveFailures uint32  // 连续失败阈值
	TripFailureRate         float64 // 失败率阈值（0~1）
	TripMinRequests         uint32  // 失败率计算的最小样本数

	// IsSuccessful 决定哪些错误不计入熔断失败，nil 用默认规则
	IsSuccessful func(err error) bool
}

// Manager 按名字懒创建熔断器，例如 "redis:set"、"redis:get"
type Manager struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[any]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(defaultRule Rule, perName map[string]Rule) *Manager {
	return &Manager{
		m:           make(map[string]*gobreaker.CircuitBreaker[any], 16),
		defaultRule: withDefaults(defaultRule),
		rules:       perName,
	}
}

func withDefaults(r Rule) Rule {
	if r.MaxRequests == 0 {
		r.MaxRequests = 5
	}
	if r.Timeout <= 0 {
		r.Timeout = 3 * time.Second
	}
	if r.Interval <= 0 {
		r.Interval = 10 * time.Second
	}
	if r.TripConsecutiveFailures == 0 && r.TripFailureRate == 0 {
		r.TripConsecutiveFailures = 10
	}
	if r.TripMinRequests == 0 {
		r.TripMinRequests = 20
	}
	if r.IsSuccessful == nil {
		r.IsSuccessful = isSuccessfulForBreaker
	}
	return r
}

func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[any] {
	// 快路径：读锁
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	// 慢路径：写锁双检 + 创建
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule := m.defaultRule
	if r, ok := m.rules[name]; ok {
		rule = withDefaults(r)
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: rule.MaxRequests,
		Interval:    rule.Interval,
		Timeout:     rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			// 1) 连续失败阈值优先
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			// 2) 失败率阈值
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(name, to.String()).Set(1)
		},
		IsSuccessful: rule.IsSuccessful,
	}
	cb = gobreaker.NewCircuitBreaker[any](st)
	m.m[name] = cb
	return cb
}

// Execute 经过熔断器执行 fn；熔断打开时记一次拒绝
func (m *Manager) Execute(name string, fn func() error) error {
	_, err := m.Get(name).Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CBRejectTotal.WithLabelValues(name, err.Error()).Inc()
	}
	return err
}

// 调用方主动取消不代表依赖不健康
func isSuccessfulForBreaker(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
