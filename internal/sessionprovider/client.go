// Package sessionprovider creates and tears down remote-browser sessions
// against the (opaque) third-party session provider's HTTP API, applying
// fingerprint/geolocation/proxy configuration and the retry+breaker
// discipline from internal/reliability.
package sessionprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/reliability"
	"github.com/flightscout/orchestrator/internal/tlsutil"
	"github.com/flightscout/orchestrator/types"
)

// Metrics is the subset of internal/metrics.Collector the session provider
// client reports against. Satisfied by *metrics.Collector; nil disables
// recording.
type Metrics interface {
	RecordSessionCreated(status string)
}

// ProxyCreds is a set of proxy dial credentials.
type ProxyCreds struct {
	Host     string
	Port     string
	Username string
	Password string
}

func (c *ProxyCreds) empty() bool { return c == nil || c.Host == "" }

// Config configures session creation.
type Config struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	CountryCode string // default "US"

	ViewportWidth  int // default 1440
	ViewportHeight int // default 900

	ExternalProxy  *ProxyCreds
	AlternateProxy *ProxyCreds
	ProviderProxy  bool // provider's own built-in proxy, used only if no external proxy is configured
}

// DefaultConfig fills in the documented defaults.
func DefaultConfig() Config {
	return Config{CountryCode: "US", ViewportWidth: 1440, ViewportHeight: 900}
}

// proxySelection is the resolved outcome of the four-step resolution order.
type proxySelection struct {
	Mode  string // "external", "alternate", "provider_builtin", "none"
	Creds *ProxyCreds
}

// resolveProxy applies the resolution order from spec §4.B: explicit
// external creds, then alternate external creds, then the provider's own
// built-in proxy if enabled, else no proxy.
func resolveProxy(cfg Config) proxySelection {
	if !cfg.ExternalProxy.empty() {
		return proxySelection{Mode: "external", Creds: cfg.ExternalProxy}
	}
	if !cfg.AlternateProxy.empty() {
		return proxySelection{Mode: "alternate", Creds: cfg.AlternateProxy}
	}
	if cfg.ProviderProxy {
		return proxySelection{Mode: "provider_builtin"}
	}
	return proxySelection{Mode: "none"}
}

// Client creates, introspects, and tears down remote-browser sessions. It is
// a thin decorator: retry-with-backoff + the process-wide circuit breaker
// wrap CreateSession exactly as llm/resilient_provider.go composes a
// Provider call with its own retryer and breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	retryer *reliability.Retryer
	breaker *reliability.Breaker
	logger  *zap.Logger
	metrics Metrics
}

// NewClient creates a session provider client. breaker is the process-wide
// singleton shared across all session creations. metrics may be nil, in
// which case recording is a no-op.
func NewClient(cfg Config, breaker *reliability.Breaker, logger *zap.Logger, metrics Metrics) *Client {
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = 1440
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = 900
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "US"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient, err := proxyHTTPClient(resolveProxy(cfg), 30*time.Second)
	if err != nil {
		logger.Warn("failed to build proxy-aware client, falling back to direct", zap.Error(err))
		httpClient = tlsutil.SecureHTTPClient(30 * time.Second)
	}
	policy := reliability.DefaultRetryPolicy()
	policy.Retryable = func(err error) bool {
		return types.IsRetryable(err) || reliability.DefaultRetryable(err)
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		retryer: reliability.NewRetryer(policy, logger),
		breaker: breaker,
		logger:  logger.With(zap.String("component", "sessionprovider")),
		metrics: metrics,
	}
}

type createSessionRequest struct {
	ProjectID    string                 `json:"project_id"`
	APIKey       string                 `json:"api_key"`
	CountryCode  string                 `json:"country_code"`
	Viewport     viewport               `json:"viewport"`
	Fingerprint  fingerprint            `json:"fingerprint"`
	Proxy        map[string]any         `json:"proxy,omitempty"`
	SolveCaptcha bool                   `json:"solve_captchas_provider_side"`
	Extra        map[string]interface{} `json:"-"`
}

type viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type fingerprint struct {
	Locales    []string `json:"locales"`
	MaxScreenW int      `json:"max_screen_width"`
	MaxScreenH int      `json:"max_screen_height"`
}

type createSessionResponse struct {
	SessionID  string `json:"session_id"`
	ControlURL string `json:"control_url"`
}

// CreateSession creates a remote-browser session. It is gated by the
// circuit breaker and retried with reliability.DefaultRetryPolicy's attempts
// and delays, for errors marked retryable (transport failures and 5xx) or
// matched by reliability.DefaultRetryable; every
// terminal outcome (success or exhausted retry) is recorded into the
// breaker exactly once.
func (c *Client) CreateSession(ctx context.Context) (*types.SessionHandle, error) {
	if !c.breaker.Allow() {
		return nil, types.NewError(types.ErrBreakerOpen, "circuit breaker open, refusing session creation")
	}

	var handle *types.SessionHandle
	err := c.retryer.Do(ctx, func() error {
		h, err := c.createSessionOnce(ctx)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		if c.metrics != nil {
			c.metrics.RecordSessionCreated("failed")
		}
		return nil, err
	}
	c.breaker.RecordSuccess()
	if c.metrics != nil {
		c.metrics.RecordSessionCreated("success")
	}
	return handle, nil
}

func (c *Client) createSessionOnce(ctx context.Context) (*types.SessionHandle, error) {
	sel := resolveProxy(c.cfg)

	body := createSessionRequest{
		ProjectID:   c.cfg.ProjectID,
		APIKey:      c.cfg.APIKey,
		CountryCode: c.cfg.CountryCode,
		Viewport:    viewport{Width: c.cfg.ViewportWidth, Height: c.cfg.ViewportHeight},
		Fingerprint: fingerprint{
			Locales:    []string{"en-" + c.cfg.CountryCode},
			MaxScreenW: 1920,
			MaxScreenH: 1080,
		},
		SolveCaptcha: false, // orchestrator always controls the CAPTCHA path
	}
	if sel.Mode == "external" || sel.Mode == "alternate" {
		body.Proxy = map[string]any{
			"mode":     sel.Mode,
			"host":     sel.Creds.Host,
			"port":     sel.Creds.Port,
			"username": sel.Creds.Username,
			"password": sel.Creds.Password,
		}
	} else if sel.Mode == "provider_builtin" {
		body.Proxy = map[string]any{"mode": "provider_builtin"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrProviderPermanent, "failed to encode session request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrProviderPermanent, "failed to build session request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrProviderTransient, "session create request failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, types.NewError(types.ErrProviderTransient, fmt.Sprintf("provider returned %d", resp.StatusCode)).WithRetryable(true)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, types.NewError(types.ErrProviderPermanent, fmt.Sprintf("provider rejected session: %d %s", resp.StatusCode, string(b)))
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrProviderPermanent, "malformed session response").WithCause(err)
	}
	if out.SessionID == "" || out.ControlURL == "" {
		return nil, types.NewError(types.ErrProviderPermanent, "provider response missing session_id/control_url")
	}

	handle := &types.SessionHandle{
		SessionID:  out.SessionID,
		ControlURL: out.ControlURL,
		CreatedAt:  time.Now(),
	}
	if liveView, err := c.fetchLiveViewURLOnce(ctx, out.SessionID); err == nil {
		handle.LiveViewURL = liveView
	}
	return handle, nil
}

type liveViewResponse struct {
	EmbeddableURL string `json:"embeddable_url"`
	DebuggerURL   string `json:"debugger_url"`
}

// FetchLiveViewURL performs a follow-up GET to obtain the embeddable
// fullscreen URL, falling back to the plain debugger URL. On any failure it
// returns an empty string and a nil error: this call is non-fatal.
func (c *Client) FetchLiveViewURL(ctx context.Context, sessionID string) string {
	url, err := c.fetchLiveViewURLOnce(ctx, sessionID)
	if err != nil {
		c.logger.Debug("fetch live view url failed, continuing without it", zap.String("session_id", sessionID), zap.Error(err))
		return ""
	}
	return url
}

func (c *Client) fetchLiveViewURLOnce(ctx context.Context, sessionID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/sessions/"+sessionID+"/live-view", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("live view fetch returned %d", resp.StatusCode)
	}
	var out liveViewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.EmbeddableURL != "" {
		return out.EmbeddableURL, nil
	}
	return out.DebuggerURL, nil
}

// CloseSession tears down a session. It is best-effort: failures are logged
// and never surfaced to the caller.
func (c *Client) CloseSession(ctx context.Context, sessionID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/sessions/"+sessionID, nil)
	if err != nil {
		c.logger.Debug("close session request build failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("close session failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer resp.Body.Close()
}
