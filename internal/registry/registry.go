package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopherbook.com/internal/codec"
	"gopherbook.com/internal/matching"
)

const (
	Level2       = "level2"
	Level3       = "level3"
	CustomPrefix = "custom:"

	PolicyPassive  = "passive"
	PolicyStrict   = "strict"
	PolicyCrossing = "crossing"
	PolicyStop     = "stop_limit"
)

var (
	ErrUnknownVariant    = errors.New("unknown book type")
	ErrUnknownPolicy     = errors.New("unknown policy")
	ErrDuplicateVariant  = errors.New("book type already registered")
	ErrPolicyNotAllowed  = errors.New("policy not allowed for book type")
	ErrInvalidVariantDef = errors.New("invalid book type definition")
)

// Variant 一个品种用到的订单形态、订单簿和默认策略
type Variant struct {
	Name    string
	Decoder codec.Decoder
	Book    matching.Variant
	Policy  matching.MatchingPolicy
}

// NewBook 按该形态创建订单簿，policy 为 nil 时用默认策略
func (v Variant) NewBook(depth int, policy matching.MatchingPolicy) *matching.OrderBook {
	if policy == nil {
		policy = v.Policy
	}
	if v.Book == matching.Granular {
		return matching.NewGranularBook(depth, policy)
	}
	return matching.NewAggregatedBook(depth, policy)
}

// Registry book_type 标签 -> Variant。启动时填充，之后只读
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
}

func New() *Registry {
	r := &Registry{variants: make(map[string]Variant, 8)}
	r.variants[Level2] = Variant{Name: Level2, Decoder: codec.Integer, Book: matching.Aggregated, Policy: matching.PassivePolicy{}}
	r.variants[Level3] = Variant{Name: Level3, Decoder: codec.Integer, Book: matching.Granular, Policy: matching.PassivePolicy{}}
	return r
}

// Register 注册自定义形态，对外的标签是 "custom:<name>"
func (r *Registry) Register(name string, v Variant) error {
	name = strings.TrimPrefix(name, CustomPrefix)
	if name == "" || v.Decoder == nil || v.Policy == nil {
		return fmt.Errorf("%w: %q", ErrInvalidVariantDef, name)
	}
	tag := CustomPrefix + name
	v.Name = tag

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.variants[tag]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVariant, tag)
	}
	r.variants[tag] = v
	return nil
}

func (r *Registry) Lookup(tag string) (Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[tag]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, tag)
	}
	return v, nil
}

// Resolve 把配置里的 book_type + policy 解析成最终 Variant。
// policy 为空时保留该形态的默认策略
func (r *Registry) Resolve(bookType, policy string) (Variant, error) {
	if bookType == "" {
		bookType = Level2
	}
	v, err := r.Lookup(bookType)
	if err != nil {
		return Variant{}, err
	}
	if policy == "" {
		return v, nil
	}
	p, err := PolicyByName(policy)
	if err != nil {
		return Variant{}, err
	}
	if crosses(p) && v.Book != matching.Granular {
		return Variant{}, fmt.Errorf("%w: %s with %s", ErrPolicyNotAllowed, policy, bookType)
	}
	v.Policy = p
	return v, nil
}

// Names 已注册的标签，排序后返回
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.variants))
	for k := range r.variants {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func PolicyByName(name string) (matching.MatchingPolicy, error) {
	switch name {
	case PolicyPassive:
		return matching.PassivePolicy{}, nil
	case PolicyStrict:
		return matching.StrictPolicy{}, nil
	case PolicyCrossing:
		return matching.CrossingPolicy{}, nil
	case PolicyStop:
		return matching.StopLimitPolicy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// crosses 会撮合的策略只能用在逐笔簿上
func crosses(p matching.MatchingPolicy) bool {
	switch p.(type) {
	case matching.CrossingPolicy, matching.StopLimitPolicy:
		return true
	}
	return false
}

// 全局默认注册表，自定义形态在 init 里注册
var Default = New()

func Register(name string, v Variant) error            { return Default.Register(name, v) }
func Lookup(tag string) (Variant, error)               { return Default.Lookup(tag) }
func Resolve(bookType, policy string) (Variant, error) { return Default.Resolve(bookType, policy) }
