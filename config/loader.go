// =============================================================================
// 📦 编排器配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FLIGHTSCOUT").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config is the complete configuration surface for the fan-out orchestrator
// (spec §6's environment table), loaded default → YAML → env.
type Config struct {
	// Server HTTP/SSE 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Provider 远程浏览器会话提供方配置
	Provider ProviderConfig `yaml:"provider" env:"PROVIDER"`

	// Proxy 外部代理配置（优先于 provider 自带代理）
	Proxy ProxyConfig `yaml:"proxy" env:"PROXY"`

	// Orchestrator 并发与重试配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Worker 单个 worker 的超时与迭代上限配置
	Worker WorkerConfig `yaml:"worker" env:"WORKER"`

	// Captcha 验证码委托配置
	Captcha CaptchaConfig `yaml:"captcha" env:"CAPTCHA"`

	// LLM 视觉模型配置（就绪探测/提取驱动/渐进分析共用）
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Redis 可选的多进程用户上下文缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口（承载 SSE 流式接口）
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 允许的跨域来源；为空则拒绝带 Origin 头的跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 有效的 X-API-Key 值；为空则不启用 API Key 校验
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 每秒请求数限流（按来源 IP）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流令牌桶突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// ProviderConfig 远程浏览器会话提供方鉴权与指纹配置（spec §4.B）
type ProviderConfig struct {
	// 会话提供方 API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 会话提供方 Project ID
	ProjectID string `yaml:"project_id" env:"PROJECT_ID"`
	// 会话提供方基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 国家代码，驱动指纹 locale（默认 "US"）
	CountryCode string `yaml:"country_code" env:"COUNTRY_CODE"`
	// 视口宽度（默认 1440）
	ViewportWidth int `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	// 视口高度（默认 900）
	ViewportHeight int `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`
}

// ProxyConfig 外部代理凭据；非空 Host 即启用外部代理路径（spec §4.B 解析顺序第一项）
type ProxyConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// OrchestratorConfig 批次并发与外层重试配置（spec §4.H）
type OrchestratorConfig struct {
	// 每批次并发 worker 数（默认 3）
	ConcurrencyLimit int `yaml:"concurrency_limit" env:"CONCURRENCY_LIMIT"`
	// worker 最多重试次数，0 或 1（默认 1）
	MaxWorkerRetries int `yaml:"max_worker_retries" env:"MAX_WORKER_RETRIES"`
	// 重试模式："off" 或 "bounded"
	RetryMode string `yaml:"retry_mode" env:"RETRY_MODE"`
}

// WorkerConfig 单个 worker 的超时与迭代上限配置
type WorkerConfig struct {
	// 单次尝试的墙钟期限（默认 60000ms）
	DeadlineMS int `yaml:"deadline_ms" env:"DEADLINE_MS"`
	// 提取驱动最大迭代次数（默认 10）
	MaxIterExtract int `yaml:"max_iter_extract" env:"MAX_ITER_EXTRACT"`
}

// CaptchaConfig 验证码委托配置（spec §4.F）
type CaptchaConfig struct {
	// "ai"（sidecar）或 "human"
	Mode string `yaml:"mode" env:"MODE"`
	// sidecar 服务基础 URL
	SidecarURL string `yaml:"sidecar_url" env:"SIDECAR_URL"`
	// sidecar 模式最大迭代次数（默认 15）
	MaxIterCaptcha int `yaml:"max_iter_captcha" env:"MAX_ITER_CAPTCHA"`
	// human 模式等待超时
	HumanSolveTimeout time.Duration `yaml:"human_solve_timeout" env:"HUMAN_SOLVE_TIMEOUT"`
	// sidecar 出站请求每秒上限（<= 0 表示不限流）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
}

// LLMConfig 视觉模型配置
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型 ID
	Model string `yaml:"model" env:"MODEL"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 出站请求每秒上限（<= 0 表示不限流）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
}

// RedisConfig 可选的多进程用户上下文缓存配置（internal/usercache.RedisStore）
type RedisConfig struct {
	// 地址；为空时使用进程内默认缓存
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FLIGHTSCOUT",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置（spec §7: missing credentials is a fatal Configuration error）
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "provider api key is required")
	}
	if c.Provider.ProjectID == "" {
		errs = append(errs, "provider project id is required")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "llm api key is required")
	}
	if c.Orchestrator.ConcurrencyLimit <= 0 {
		errs = append(errs, "concurrency_limit must be positive")
	}
	if c.Orchestrator.RetryMode != "off" && c.Orchestrator.RetryMode != "bounded" {
		errs = append(errs, "retry_mode must be \"off\" or \"bounded\"")
	}
	if c.Captcha.Mode != "ai" && c.Captcha.Mode != "human" {
		errs = append(errs, "captcha mode must be \"ai\" or \"human\"")
	}
	if c.Captcha.Mode == "ai" && c.Captcha.SidecarURL == "" {
		errs = append(errs, "sidecar_url is required when captcha mode is \"ai\"")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// HasExternalProxy reports whether explicit external proxy credentials were
// configured, which take priority over the session provider's own proxy
// resolution (spec §4.B resolution order, step 1).
func (p *ProxyConfig) HasExternalProxy() bool {
	return p.Host != ""
}
