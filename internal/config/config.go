package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Faults    FaultConfig     `yaml:"faults"`
	Counter   CounterConfig   `yaml:"counter"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// FaultConfig 故障注入配置
type FaultConfig struct {
	ForbiddenUsernames   []string `yaml:"forbidden_usernames"`
	UnavailableUsernames []string `yaml:"unavailable_usernames"`
	// RetryAfter 维护故障响应中 Retry-After 头的秒数
	RetryAfter int `yaml:"retry_after"`
	// MaintenancePeriod 每 N 次 maintenance 请求放行一次
	MaintenancePeriod int64 `yaml:"maintenance_period"`
	MinLength         int   `yaml:"min_length"`
}

// CounterConfig 维护计数器存储配置
type CounterConfig struct {
	Backend CounterBackend `yaml:"backend"`
	Key     string         `yaml:"key"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
}

// RateLimitConfig 限流故障配置
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	RetryAfter        int           `yaml:"retry_after"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"` // 客户端空闲多久后回收其令牌桶
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AdminConfig 管理端口配置（指标、健康检查、计数器重置）
type AdminConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// CounterBackend 计数器存储类型
type CounterBackend string

const (
	MemoryBackend CounterBackend = "memory"
	RedisBackend  CounterBackend = "redis"
)

// DefaultUnavailableUsernames 默认已被占用的用户名
var DefaultUnavailableUsernames = []string{"jmbae", "johnnyappleseed", "page", "johndoe"}

// DefaultForbiddenUsernames 默认被判定为无效的用户名
var DefaultForbiddenUsernames = []string{"admin", "superuser"}

// Load 从文件加载配置，path 为空时返回默认配置
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	// admin 默认开启，未在文件中出现时保持开启
	config.Admin.Enabled = true
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// Default 返回默认配置
func Default() *Config {
	config := &Config{Admin: AdminConfig{Enabled: true}}
	setDefaults(config)
	return config
}

// setDefaults 设置默认配置值
func setDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Server.IdleTimeout == 0 {
		config.Server.IdleTimeout = 60 * time.Second
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.Faults.ForbiddenUsernames == nil {
		config.Faults.ForbiddenUsernames = append([]string(nil), DefaultForbiddenUsernames...)
	}
	if config.Faults.UnavailableUsernames == nil {
		config.Faults.UnavailableUsernames = append([]string(nil), DefaultUnavailableUsernames...)
	}
	if config.Faults.RetryAfter == 0 {
		config.Faults.RetryAfter = 120
	}
	if config.Faults.MaintenancePeriod == 0 {
		config.Faults.MaintenancePeriod = 3
	}
	if config.Faults.MinLength == 0 {
		config.Faults.MinLength = 3
	}

	if config.Counter.Backend == "" {
		config.Counter.Backend = MemoryBackend
	}
	if config.Counter.Key == "" {
		config.Counter.Key = "username-checker:maintenance_counter"
	}

	if config.Redis.Addr == "" {
		config.Redis.Addr = "localhost:6379"
	}
	if config.Redis.PoolSize == 0 {
		config.Redis.PoolSize = 10
	}
	if config.Redis.MinIdleConns == 0 {
		config.Redis.MinIdleConns = 2
	}

	if config.RateLimit.RequestsPerSecond == 0 {
		config.RateLimit.RequestsPerSecond = 10
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 20
	}
	if config.RateLimit.RetryAfter == 0 {
		config.RateLimit.RetryAfter = 1
	}
	if config.RateLimit.IdleTimeout == 0 {
		config.RateLimit.IdleTimeout = 5 * time.Minute
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	if config.Admin.Host == "" {
		config.Admin.Host = "127.0.0.1"
	}
	if config.Admin.Port == 0 {
		config.Admin.Port = 9090
	}
	if config.Admin.MetricsPath == "" {
		config.Admin.MetricsPath = "/metrics"
	}
}

// validate 验证配置
func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("无效的服务器端口: %d", config.Server.Port)
	}

	if config.Admin.Enabled {
		if config.Admin.Port < 1 || config.Admin.Port > 65535 {
			return fmt.Errorf("无效的管理端口: %d", config.Admin.Port)
		}
		if config.Admin.Port == config.Server.Port && config.Admin.Host == config.Server.Host {
			return fmt.Errorf("管理端口不能与服务端口相同: %d", config.Admin.Port)
		}
	}

	if config.Faults.MaintenancePeriod < 1 {
		return fmt.Errorf("无效的维护周期: %d", config.Faults.MaintenancePeriod)
	}
	if config.Faults.RetryAfter < 0 {
		return fmt.Errorf("无效的 Retry-After 秒数: %d", config.Faults.RetryAfter)
	}
	if config.Faults.MinLength < 0 {
		return fmt.Errorf("无效的最小长度: %d", config.Faults.MinLength)
	}

	switch config.Counter.Backend {
	case MemoryBackend, RedisBackend:
	default:
		return fmt.Errorf("未知的计数器存储类型: %s", config.Counter.Backend)
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond < 0 {
			return fmt.Errorf("无效的限流速率: %v", config.RateLimit.RequestsPerSecond)
		}
		if config.RateLimit.Burst < 1 {
			return fmt.Errorf("无效的限流突发容量: %d", config.RateLimit.Burst)
		}
		if config.RateLimit.IdleTimeout < 0 {
			return fmt.Errorf("无效的限流空闲回收时间: %v", config.RateLimit.IdleTimeout)
		}
	}

	return nil
}

// Addr 返回服务监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Addr 返回管理端口监听地址
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
