package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopherbook.com/internal/registry"
	pkgconfig "gopherbook.com/pkg/config"
	"gopherbook.com/pkg/xredis"
)

const ServiceName = "bookd"

var (
	ErrMissingPort         = errors.New("listening port is not defined")
	ErrInvalidPort         = errors.New("listening port out of range")
	ErrUnknownBookType     = errors.New("unknown book_type")
	ErrDuplicateInstrument = errors.New("instrument listed twice")
	ErrPortInUse           = errors.New("port assigned to more than one instrument")
	ErrNoInstruments       = errors.New("instruments_list is empty")
	ErrBadInstrumentEntry  = errors.New("instruments_list entry must have exactly one symbol")
)

// InstrumentSpec instruments_list 里单个品种的配置
type InstrumentSpec struct {
	Port      *int   `mapstructure:"port" yaml:"port"`
	BookDepth int    `mapstructure:"book_depth" yaml:"book_depth"`
	BookType  string `mapstructure:"book_type" yaml:"book_type"`
	Policy    string `mapstructure:"policy" yaml:"policy"`
}

type EngineConfig struct {
	MailboxSize  int `mapstructure:"mailbox_size" yaml:"mailbox_size"`
	BatchMax     int `mapstructure:"batch_max" yaml:"batch_max"`
	EventBusSize int `mapstructure:"event_bus_size" yaml:"event_bus_size"`
}

type SessionConfig struct {
	RatePerSec   float64       `mapstructure:"rate_per_sec" yaml:"rate_per_sec"` // 0 表示不限流
	Burst        int           `mapstructure:"burst" yaml:"burst"`
	MaxLineBytes int           `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Cfg 对应 config/bookd.yaml
type Cfg struct {
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	ListenHost  string `mapstructure:"listen_host" yaml:"listen_host"`
	HTTPAddr    string `mapstructure:"http_addr" yaml:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	PprofAddr   string `mapstructure:"pprof_addr" yaml:"pprof_addr"`

	// NatsURL 为空时用进程内 broker
	NatsURL string `mapstructure:"nats_url" yaml:"nats_url"`
	// Redis 为空时不缓存快照
	Redis       *xredis.Config `mapstructure:"redis" yaml:"redis"`
	SnapshotTTL time.Duration  `mapstructure:"snapshot_ttl" yaml:"snapshot_ttl"`

	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	InstrumentsList []map[string]InstrumentSpec `mapstructure:"instruments_list" yaml:"instruments_list"`
}

// Instrument 校验并解析之后的品种
type Instrument struct {
	Symbol  string
	Port    int
	Depth   int
	Variant registry.Variant
}

// Load 读取并校验配置，任何错误都应当让进程在建簿之前退出
func Load(path string) (*Cfg, []Instrument, error) {
	var c Cfg
	if _, err := pkgconfig.Load(ServiceName, path, &c); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	c.applyDefaults()
	list, err := c.Instruments(registry.Default)
	if err != nil {
		return nil, nil, err
	}
	return &c, list, nil
}

func (c *Cfg) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ListenHost == "" {
		c.ListenHost = "0.0.0.0"
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 30 * time.Second
	}
}

// Instruments 按配置顺序返回品种。
// viper 会把 map 的键转成小写，这里统一转回大写
func (c *Cfg) Instruments(reg *registry.Registry) ([]Instrument, error) {
	if len(c.InstrumentsList) == 0 {
		return nil, ErrNoInstruments
	}
	out := make([]Instrument, 0, len(c.InstrumentsList))
	seen := make(map[string]struct{}, len(c.InstrumentsList))
	ports := make(map[int]string, len(c.InstrumentsList))

	for i, entry := range c.InstrumentsList {
		if len(entry) != 1 {
			keys := make([]string, 0, len(entry))
			for k := range entry {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("%w: index %d has %v", ErrBadInstrumentEntry, i, keys)
		}
		for raw, spec := range entry {
			symbol := strings.ToUpper(strings.TrimSpace(raw))
			if _, dup := seen[symbol]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateInstrument, symbol)
			}
			seen[symbol] = struct{}{}

			if spec.Port == nil {
				return nil, fmt.Errorf("%w: %s", ErrMissingPort, symbol)
			}
			port := *spec.Port
			if port <= 0 || port > 65535 {
				return nil, fmt.Errorf("%w: %s port=%d", ErrInvalidPort, symbol, port)
			}
			if other, ok := ports[port]; ok {
				return nil, fmt.Errorf("%w: %d (%s, %s)", ErrPortInUse, port, other, symbol)
			}
			ports[port] = symbol

			v, err := reg.Resolve(spec.BookType, spec.Policy)
			if err != nil {
				if errors.Is(err, registry.ErrUnknownVariant) {
					return nil, fmt.Errorf("%w: %s: %w", ErrUnknownBookType, symbol, err)
				}
				return nil, fmt.Errorf("instrument %s: %w", symbol, err)
			}

			depth := spec.BookDepth
			if depth < 0 {
				depth = 0
			}
			out = append(out, Instrument{Symbol: symbol, Port: port, Depth: depth, Variant: v})
		}
	}
	return out, nil
}

// Addr 品种的 TCP 监听地址
func (c *Cfg) Addr(in Instrument) string {
	return fmt.Sprintf("%s:%d", c.ListenHost, in.Port)
}

// Watch 配置文件变更时回调重新解析的配置。
// 只有日志级别支持热更新，其它字段需要重启
func Watch(path string, onChange func(next Cfg, err error)) error {
	var next Cfg
	v, err := pkgconfig.Load(ServiceName, path, &next)
	if err != nil {
		return err
	}
	pkgconfig.Watch(v, &next, func(_ string, err error) {
		onChange(next, err)
	})
	return nil
}
