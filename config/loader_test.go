// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "US", cfg.Provider.CountryCode)
	assert.Equal(t, 1440, cfg.Provider.ViewportWidth)
	assert.Equal(t, 900, cfg.Provider.ViewportHeight)

	assert.Equal(t, 3, cfg.Orchestrator.ConcurrencyLimit)
	assert.Equal(t, 1, cfg.Orchestrator.MaxWorkerRetries)
	assert.Equal(t, "bounded", cfg.Orchestrator.RetryMode)

	assert.Equal(t, 60000, cfg.Worker.DeadlineMS)
	assert.Equal(t, 10, cfg.Worker.MaxIterExtract)

	assert.Equal(t, "ai", cfg.Captcha.Mode)
	assert.Equal(t, 15, cfg.Captcha.MaxIterCaptcha)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Orchestrator.ConcurrencyLimit)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

provider:
  api_key: "prov-key"
  project_id: "proj-1"
  country_code: "GB"
  viewport_width: 1920
  viewport_height: 1080

orchestrator:
  concurrency_limit: 5
  max_worker_retries: 0
  retry_mode: "off"

captcha:
  mode: "human"
  human_solve_timeout: 90s

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "prov-key", cfg.Provider.APIKey)
	assert.Equal(t, "proj-1", cfg.Provider.ProjectID)
	assert.Equal(t, "GB", cfg.Provider.CountryCode)
	assert.Equal(t, 1920, cfg.Provider.ViewportWidth)

	assert.Equal(t, 5, cfg.Orchestrator.ConcurrencyLimit)
	assert.Equal(t, 0, cfg.Orchestrator.MaxWorkerRetries)
	assert.Equal(t, "off", cfg.Orchestrator.RetryMode)

	assert.Equal(t, "human", cfg.Captcha.Mode)
	assert.Equal(t, 90*time.Second, cfg.Captcha.HumanSolveTimeout)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"FLIGHTSCOUT_SERVER_HTTP_PORT":             "7777",
		"FLIGHTSCOUT_PROVIDER_API_KEY":             "env-key",
		"FLIGHTSCOUT_PROVIDER_COUNTRY_CODE":        "FR",
		"FLIGHTSCOUT_ORCHESTRATOR_CONCURRENCY_LIMIT": "6",
		"FLIGHTSCOUT_CAPTCHA_MODE":                 "human",
		"FLIGHTSCOUT_LOG_LEVEL":                    "warn",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "env-key", cfg.Provider.APIKey)
	assert.Equal(t, "FR", cfg.Provider.CountryCode)
	assert.Equal(t, 6, cfg.Orchestrator.ConcurrencyLimit)
	assert.Equal(t, "human", cfg.Captcha.Mode)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
provider:
  country_code: "GB"
  api_key: "yaml-key"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("FLIGHTSCOUT_SERVER_HTTP_PORT", "9999")
	os.Setenv("FLIGHTSCOUT_PROVIDER_COUNTRY_CODE", "DE")
	defer func() {
		os.Unsetenv("FLIGHTSCOUT_SERVER_HTTP_PORT")
		os.Unsetenv("FLIGHTSCOUT_PROVIDER_COUNTRY_CODE")
	}()

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "DE", cfg.Provider.CountryCode)
	// YAML value survives where env didn't override it.
	assert.Equal(t, "yaml-key", cfg.Provider.APIKey)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	os.Setenv("MYAPP_PROVIDER_COUNTRY_CODE", "JP")
	defer func() {
		os.Unsetenv("MYAPP_SERVER_HTTP_PORT")
		os.Unsetenv("MYAPP_PROVIDER_COUNTRY_CODE")
	}()

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "JP", cfg.Provider.CountryCode)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	os.Setenv("FLIGHTSCOUT_SERVER_HTTP_PORT", "80")
	os.Setenv("FLIGHTSCOUT_PROVIDER_API_KEY", "k")
	os.Setenv("FLIGHTSCOUT_PROVIDER_PROJECT_ID", "p")
	os.Setenv("FLIGHTSCOUT_LLM_API_KEY", "l")
	defer func() {
		os.Unsetenv("FLIGHTSCOUT_SERVER_HTTP_PORT")
		os.Unsetenv("FLIGHTSCOUT_PROVIDER_API_KEY")
		os.Unsetenv("FLIGHTSCOUT_PROVIDER_PROJECT_ID")
		os.Unsetenv("FLIGHTSCOUT_LLM_API_KEY")
	}()

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func validConfigForValidation() *Config {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "k"
	cfg.Provider.ProjectID = "p"
	cfg.LLM.APIKey = "l"
	cfg.Captcha.SidecarURL = "http://sidecar.local"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid HTTP port (negative)",
			modify: func(c *Config) {
				c.Server.HTTPPort = -1
			},
			wantErr: true,
		},
		{
			name: "invalid HTTP port (too large)",
			modify: func(c *Config) {
				c.Server.HTTPPort = 70000
			},
			wantErr: true,
		},
		{
			name: "missing provider api key",
			modify: func(c *Config) {
				c.Provider.APIKey = ""
			},
			wantErr: true,
		},
		{
			name: "missing llm api key",
			modify: func(c *Config) {
				c.LLM.APIKey = ""
			},
			wantErr: true,
		},
		{
			name: "invalid retry mode",
			modify: func(c *Config) {
				c.Orchestrator.RetryMode = "always"
			},
			wantErr: true,
		},
		{
			name: "invalid concurrency limit",
			modify: func(c *Config) {
				c.Orchestrator.ConcurrencyLimit = 0
			},
			wantErr: true,
		},
		{
			name: "ai captcha mode without sidecar url",
			modify: func(c *Config) {
				c.Captcha.SidecarURL = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfigForValidation()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProxyConfig_HasExternalProxy(t *testing.T) {
	assert.False(t, (&ProxyConfig{}).HasExternalProxy())
	assert.True(t, (&ProxyConfig{Host: "proxy.example.com"}).HasExternalProxy())
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8080
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("FLIGHTSCOUT_PROVIDER_COUNTRY_CODE", "IT")
	defer os.Unsetenv("FLIGHTSCOUT_PROVIDER_COUNTRY_CODE")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "IT", cfg.Provider.CountryCode)
}
