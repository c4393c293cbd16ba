// =============================================================================
// 📦 编排器默认配置
// =============================================================================
// 提供所有配置项的合理默认值，对应 spec §6 环境变量表的 default 列
// =============================================================================
package config

import (
	"time"

	"github.com/flightscout/orchestrator/internal/captcha"
	"github.com/flightscout/orchestrator/internal/visionmodel"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Provider:     DefaultProviderConfig(),
		Proxy:        ProxyConfig{},
		Orchestrator: DefaultOrchestratorConfig(),
		Worker:       DefaultWorkerConfig(),
		Captcha:      DefaultCaptchaConfig(),
		LLM:          DefaultLLMConfig(),
		Redis:        DefaultRedisConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute, // generous: covers long-lived SSE streams
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultProviderConfig 返回默认会话提供方配置
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		CountryCode:    "US",
		ViewportWidth:  1440,
		ViewportHeight: 900,
	}
}

// DefaultOrchestratorConfig 返回默认编排配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ConcurrencyLimit: 3,
		MaxWorkerRetries: 1,
		RetryMode:        "bounded",
	}
}

// DefaultWorkerConfig 返回默认 worker 配置
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		DeadlineMS:     60000,
		MaxIterExtract: 10,
	}
}

// DefaultCaptchaConfig 返回默认验证码委托配置
func DefaultCaptchaConfig() CaptchaConfig {
	return CaptchaConfig{
		Mode:              "ai",
		MaxIterCaptcha:    15,
		HumanSolveTimeout: 3 * time.Minute,
		RateLimitRPS:      captcha.DefaultSidecarRateLimitRPS,
	}
}

// DefaultLLMConfig 返回默认视觉模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:        "claude-sonnet-4-5",
		Timeout:      2 * time.Minute,
		MaxRetries:   3,
		RateLimitRPS: visionmodel.DefaultRateLimitRPS,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置（用户上下文缓存，可选）
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "",
		Password: "",
		DB:       0,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flightscout-orchestrator",
		SampleRate:   0.1,
	}
}
