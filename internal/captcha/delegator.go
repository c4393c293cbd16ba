// Package captcha implements the sidecar-delegated and human-in-the-loop
// CAPTCHA resolution strategies (spec §4.F). The sidecar HTTP loop is
// grounded on the request/response shape of
// internal/sessionprovider/client.go's resty-backed calls; the human-mode
// signal channel is grounded on agent/streaming/ws_adapter.go's connection
// abstraction, adapted from a bidirectional stream to a one-shot
// keyed-notification channel.
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/browseraction"
	"github.com/flightscout/orchestrator/internal/reliability"
	"github.com/flightscout/orchestrator/internal/tlsutil"
	"github.com/flightscout/orchestrator/types"
)

// DefaultMaxIterations is MAX_ITER_CAPTCHA.
const DefaultMaxIterations = 15

// DefaultSidecarRateLimitRPS throttles outbound calls to the CAPTCHA
// sidecar; a wide batch of concurrently-solving workers would otherwise
// hammer a single sidecar instance with /solve and /assess calls.
const DefaultSidecarRateLimitRPS = 3.0

// Mode selects how CAPTCHAs are resolved.
type Mode string

const (
	ModeSidecar Mode = "sidecar"
	ModeHuman   Mode = "human"
)

// Config configures a Delegator.
type Config struct {
	Mode              Mode
	SidecarURL        string
	MaxIterations     int
	HumanSolveTimeout time.Duration
	RateLimitRPS      float64
}

// DefaultConfig returns the sidecar-mode default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeSidecar,
		MaxIterations:     DefaultMaxIterations,
		HumanSolveTimeout: 3 * time.Minute,
		RateLimitRPS:      DefaultSidecarRateLimitRPS,
	}
}

// Page is the subset of browseraction.Adapter the delegator needs.
type Page interface {
	Screenshot(ctx context.Context) ([]byte, string, error)
	Execute(ctx context.Context, act types.Action) browseraction.ActionResult
}

// EventFunc emits one observability event; payload shapes follow spec §6.
type EventFunc func(kind string, payload map[string]any)

// Metrics is the subset of internal/metrics.Collector the delegator
// reports against. Satisfied by *metrics.Collector; nil disables recording.
type Metrics interface {
	RecordCaptchaSolve(mode string, resolved bool, iterations int)
}

// Delegator resolves CAPTCHAs blocking a driven page.
type Delegator struct {
	cfg      Config
	http     *http.Client
	limiter  *reliability.RateLimiter
	signaler *Signaler
	logger   *zap.Logger
	metrics  Metrics
}

// New creates a Delegator. cfg.MaxIterations <= 0 uses DefaultMaxIterations.
// metrics may be nil, in which case recording is a no-op.
func New(cfg Config, signaler *Signaler, logger *zap.Logger, metrics Metrics) *Delegator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Delegator{
		cfg:      cfg,
		http:     tlsutil.SecureHTTPClient(35 * time.Second),
		limiter:  reliability.NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS)+1),
		signaler: signaler,
		logger:   logger.With(zap.String("component", "captcha")),
		metrics:  metrics,
	}
}

// Solve resolves the CAPTCHA currently blocking page for the given pair,
// dispatching to sidecar or human mode per configuration.
func (d *Delegator) Solve(ctx context.Context, pairID int, page Page, screenWidth, screenHeight int, currentURL string, emit EventFunc) bool {
	var resolved bool
	var iterations int
	if d.cfg.Mode == ModeHuman {
		resolved = d.solveHuman(ctx, pairID, emit)
		iterations = 1
	} else {
		resolved, iterations = d.solveSidecar(ctx, page, screenWidth, screenHeight, currentURL, emit)
	}
	if d.metrics != nil {
		d.metrics.RecordCaptchaSolve(string(d.cfg.Mode), resolved, iterations)
	}
	return resolved
}

func (d *Delegator) solveSidecar(ctx context.Context, page Page, screenWidth, screenHeight int, currentURL string, emit EventFunc) (bool, int) {
	if !d.healthCheck(ctx) {
		d.logger.Warn("captcha sidecar unreachable, skipping")
		return false, 0
	}

	screenshot, url, _ := page.Screenshot(ctx)
	if url != "" {
		currentURL = url
	}

	if plan, err := d.strategy(ctx, screenshot, currentURL); err != nil {
		d.logger.Warn("captcha strategy call failed, proceeding without a plan", zap.Error(err))
	} else if emit != nil {
		emit("strategy_ready", map[string]any{"plan": plan})
	}

	for iter := 0; iter < d.cfg.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return false, iter + 1
		default:
		}

		resp, err := d.solveStep(ctx, screenshot, "solve the captcha challenge", screenWidth, screenHeight, currentURL)
		if err != nil {
			d.logger.Warn("captcha solve call failed", zap.Int("iteration", iter), zap.Error(err))
			continue
		}
		if emit != nil {
			emit("captcha_progress", map[string]any{"iteration": iter, "screenshot": screenshot, "message": resp.Message})
		}
		if resp.Complete || len(resp.Actions) == 0 {
			return true, iter + 1
		}

		page.Execute(ctx, resp.Actions[0])
		time.Sleep(1 * time.Second)
		screenshot, url, _ = page.Screenshot(ctx)
		if url != "" {
			currentURL = url
		}

		assessed, err := d.assess(ctx, screenshot, resp.Actions[0], currentURL)
		if err != nil {
			d.logger.Warn("captcha assess call failed, continuing", zap.Error(err))
			continue
		}
		if assessed {
			return true, iter + 1
		}
	}
	return false, d.cfg.MaxIterations
}

func (d *Delegator) healthCheck(ctx context.Context) bool {
	hctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(hctx, http.MethodGet, d.cfg.SidecarURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type strategyResponse struct {
	Plan map[string]any `json:"plan"`
}

func (d *Delegator) strategy(ctx context.Context, screenshot []byte, currentURL string) (map[string]any, error) {
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var out strategyResponse
	err := d.post(sctx, "/strategy", map[string]any{
		"screenshot": screenshot, "current_url": currentURL,
	}, &out)
	return out.Plan, err
}

type solveResponse struct {
	Success  bool           `json:"success"`
	Actions  []types.Action `json:"actions"`
	Message  string         `json:"message"`
	Complete bool           `json:"complete"`
}

func (d *Delegator) solveStep(ctx context.Context, screenshot []byte, task string, screenWidth, screenHeight int, currentURL string) (solveResponse, error) {
	var out solveResponse
	err := d.post(ctx, "/solve", map[string]any{
		"screenshot": screenshot, "task": task,
		"screen_width": screenWidth, "screen_height": screenHeight,
		"current_url": currentURL,
	}, &out)
	return out, err
}

type assessResponse struct {
	Complete bool `json:"complete"`
}

func (d *Delegator) assess(ctx context.Context, screenshot []byte, previousAction types.Action, currentURL string) (bool, error) {
	actx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()
	var out assessResponse
	err := d.post(actx, "/assess", map[string]any{
		"screenshot": screenshot, "previous_action": previousAction, "current_url": currentURL,
	}, &out)
	return out.Complete, err
}

func (d *Delegator) post(ctx context.Context, path string, body any, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("captcha: rate limit wait: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("captcha: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.SidecarURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("captcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("captcha: %s request: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("captcha: read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("captcha: %s returned status %d", path, resp.StatusCode)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("captcha: decode %s response: %w", path, err)
	}
	return nil
}
