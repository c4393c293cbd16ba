package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, ProviderConfig{}, cfg.Provider)
	assert.NotEqual(t, OrchestratorConfig{}, cfg.Orchestrator)
	assert.NotEqual(t, WorkerConfig{}, cfg.Worker)
	assert.NotEqual(t, CaptchaConfig{}, cfg.Captcha)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	// Proxy and Redis are intentionally zero-valued by default: both are
	// opt-in (no external proxy, no multi-process cache) per spec §6.
	assert.Equal(t, ProxyConfig{}, cfg.Proxy)
	assert.False(t, cfg.Proxy.HasExternalProxy())
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	assert.Equal(t, "US", cfg.CountryCode)
	assert.Equal(t, 1440, cfg.ViewportWidth)
	assert.Equal(t, 900, cfg.ViewportHeight)
	assert.Empty(t, cfg.APIKey)
	assert.Empty(t, cfg.ProjectID)
}

func TestDefaultOrchestratorConfig(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	assert.Equal(t, 3, cfg.ConcurrencyLimit)
	assert.Equal(t, 1, cfg.MaxWorkerRetries)
	assert.Equal(t, "bounded", cfg.RetryMode)
}

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig()
	assert.Equal(t, 60000, cfg.DeadlineMS)
	assert.Equal(t, 10, cfg.MaxIterExtract)
}

func TestDefaultCaptchaConfig(t *testing.T) {
	cfg := DefaultCaptchaConfig()
	assert.Equal(t, "ai", cfg.Mode)
	assert.Equal(t, 15, cfg.MaxIterCaptcha)
	assert.Equal(t, 3*time.Minute, cfg.HumanSolveTimeout)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Empty(t, cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.NotEmpty(t, cfg.Model)
	assert.Empty(t, cfg.APIKey)
	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "flightscout-orchestrator", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
