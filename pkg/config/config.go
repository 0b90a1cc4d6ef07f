package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load 读取配置到 out。
// path 非空时直接读该文件；否则按约定找 ./config/{service}.yaml 或 ./{service}.yaml。
// 环境变量覆盖，前缀为大写的 service，例如：
//
//	BOOKD_METRICS_ADDR 覆盖 metrics_addr
//	BOOKD_REDIS_ADDR   覆盖 redis.addr
func Load(service, path string, out interface{}) (*viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".") // 兜底，直接放当前目录也行
	}

	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

// Watch 监听文件变更，每次变更重新解析到 out 后回调 onChange。
// onChange 收到解析错误时 out 保持旧值
func Watch(v *viper.Viper, out interface{}, onChange func(file string, err error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		err := v.Unmarshal(out)
		if onChange != nil {
			onChange(e.Name, err)
		}
	})
	v.WatchConfig()
}
