// Package worker implements the per-date-pair state machine (spec §4.G):
// NEW → SESSION_CREATING → CONNECTED → NAVIGATING → PROBING ⇄ SOLVING_CAPTCHA
// → EXTRACTING → DONE/FAILED. Grounded on agent/browser/agentic_browser.go's
// ExecuteTask loop structure (screenshot → decide → act → repeat), expanded
// into the spec's explicit named states and decision table.
package worker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/browseraction"
	"github.com/flightscout/orchestrator/internal/captcha"
	"github.com/flightscout/orchestrator/internal/events"
	"github.com/flightscout/orchestrator/internal/extraction"
	"github.com/flightscout/orchestrator/internal/telemetry"
	"github.com/flightscout/orchestrator/types"
)

// Metrics is the subset of internal/metrics.Collector the worker reports
// against. Satisfied by *metrics.Collector; nil disables recording.
type Metrics interface {
	RecordWorkerExecution(status string, duration time.Duration)
	RecordWorkerStateTransition(fromState, toState string)
}

// DefaultDeadline is WORKER_DEADLINE.
const DefaultDeadline = 60 * time.Second

const probeInterval = 30 * time.Second
const probeBackoff = 10 * time.Second
const navigationDeadline = 5 * time.Minute
const extractionStabilizationBuffer = 3 * time.Second

// State names the worker's current node in the state machine.
type State string

const (
	StateNew             State = "NEW"
	StateSessionCreating State = "SESSION_CREATING"
	StateConnected       State = "CONNECTED"
	StateNavigating      State = "NAVIGATING"
	StateProbing         State = "PROBING"
	StateSolvingCaptcha  State = "SOLVING_CAPTCHA"
	StateExtracting      State = "EXTRACTING"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

// SessionProvider creates and closes remote-browser sessions.
type SessionProvider interface {
	CreateSession(ctx context.Context) (types.SessionHandle, error)
	CloseSession(ctx context.Context, sessionID string)
}

// Page is the page surface the worker drives, satisfied by
// *browseraction.Adapter.
type Page interface {
	Close()
	Viewport() (width, height int)
	Screenshot(ctx context.Context) ([]byte, string, error)
	Navigate(ctx context.Context, url string, deadline time.Duration) error
	Execute(ctx context.Context, act types.Action) browseraction.ActionResult
	InstallRequestInterception(opts browseraction.InterceptionOptions) error
}

// Attacher opens a Page against a remote session's control URL.
type Attacher func(ctx context.Context, controlURL string, viewportWidth, viewportHeight int, logger *zap.Logger) (Page, error)

// Prober classifies the current page.
type Prober interface {
	Probe(ctx context.Context, screenshot []byte, currentURL string) (types.PageState, error)
}

// Extractor drives the extraction vision-action loop.
type Extractor interface {
	Run(ctx context.Context, task string, onProgress extraction.ProgressFunc) extraction.Result
}

// CaptchaSolver resolves a blocking CAPTCHA.
type CaptchaSolver interface {
	Solve(ctx context.Context, pairID int, page captcha.Page, screenWidth, screenHeight int, currentURL string, emit captcha.EventFunc) bool
}

// URLBuilder constructs the target search URL for a date pair.
type URLBuilder func(from, to, depDate, retDate string) string

// DefaultURLBuilder builds a Google Flights-shaped search URL.
func DefaultURLBuilder(from, to, depDate, retDate string) string {
	return fmt.Sprintf("https://www.google.com/travel/flights?q=Flights%%20from%%20%s%%20to%%20%s%%20on%%20%s%%20through%%20%s",
		from, to, depDate, retDate)
}

// Config configures a single worker run.
type Config struct {
	PairID     int
	DepDate    string
	RetDate    string
	From       string
	To         string
	Deadline   time.Duration
	ViewportW  int
	ViewportH  int
	URLBuilder URLBuilder
}

// Worker drives one date pair through the full state machine exactly once.
type Worker struct {
	cfg      Config
	sessions SessionProvider
	attach   Attacher
	prober   Prober
	extractF func(page Page) Extractor
	captchaD CaptchaSolver
	sink     events.Sink
	logger   *zap.Logger
	metrics  Metrics

	state       State
	currentSpan trace.Span
}

// New creates a Worker. extractorFactory builds an Extractor bound to the
// page just attached (extraction needs the Page as its driving surface).
// metrics may be nil, in which case recording is a no-op.
func New(cfg Config, sessions SessionProvider, attach Attacher, prober Prober, extractorFactory func(Page) Extractor, captchaD CaptchaSolver, sink events.Sink, logger *zap.Logger, metrics Metrics) *Worker {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.ViewportW == 0 {
		cfg.ViewportW = browseraction.DefaultViewportWidth
	}
	if cfg.ViewportH == 0 {
		cfg.ViewportH = browseraction.DefaultViewportHeight
	}
	if cfg.URLBuilder == nil {
		cfg.URLBuilder = DefaultURLBuilder
	}
	if sink == nil {
		sink = events.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		cfg: cfg, sessions: sessions, attach: attach, prober: prober,
		extractF: extractorFactory, captchaD: captchaD, sink: sink,
		logger:  logger.With(zap.Int("pair_id", cfg.PairID)),
		metrics: metrics,
		state:   StateNew,
	}
}

// transition moves the worker to newState, ending the span for whatever
// state it was previously in, recording the transition as a metric and as
// a span event, and starting a new span scoped to newState.
func (w *Worker) transition(ctx context.Context, newState State) context.Context {
	from := w.state
	w.state = newState
	if w.metrics != nil {
		w.metrics.RecordWorkerStateTransition(string(from), string(newState))
	}
	if w.currentSpan != nil {
		w.currentSpan.End()
	}
	spanCtx, span := telemetry.StartWorkerSpan(ctx, w.cfg.PairID, string(newState))
	telemetry.RecordStateTransition(span, string(from), string(newState))
	w.currentSpan = span
	return spanCtx
}

// Run executes the state machine to completion, returning a WorkerResult on
// success or an error on terminal failure. Exactly one of a non-nil result
// or a non-nil error is ever produced; the worker always closes its session
// on every exit path.
func (w *Worker) Run(ctx context.Context) (result types.WorkerResult, runErr error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Deadline)
	defer cancel()

	started := time.Now()
	var page Page
	var session types.SessionHandle
	closeResources := func() {
		if page != nil {
			page.Close()
			page = nil
		}
		if session.SessionID != "" {
			w.sessions.CloseSession(context.Background(), session.SessionID)
			session.SessionID = ""
		}
	}
	defer func() {
		closeResources()
		if rec := recover(); rec != nil {
			ctx = w.transition(ctx, StateFailed)
			runErr = synthesizeFailure(fmt.Sprintf("panic: %v", rec))
			w.sink.Emit(events.MinionFailedFinal(w.cfg.PairID, w.cfg.DepDate, w.cfg.RetDate, runErr.Error()))
		}
		if w.currentSpan != nil {
			w.currentSpan.End()
		}
		status := "success"
		if runErr != nil {
			status = "failed"
		}
		if w.metrics != nil {
			w.metrics.RecordWorkerExecution(status, time.Since(started))
		}
	}()

	ctx = w.transition(ctx, StateSessionCreating)
	var err error
	session, err = w.sessions.CreateSession(ctx)
	if err != nil {
		ctx = w.transition(ctx, StateFailed)
		runErr = err
		closeResources()
		w.sink.Emit(events.MinionFailedFinal(w.cfg.PairID, w.cfg.DepDate, w.cfg.RetDate, err.Error()))
		return types.WorkerResult{}, runErr
	}

	ctx = w.transition(ctx, StateConnected)
	page, err = w.attach(ctx, session.ControlURL, w.cfg.ViewportW, w.cfg.ViewportH, w.logger)
	if err != nil {
		ctx = w.transition(ctx, StateFailed)
		runErr = fmt.Errorf("attach to session: %w", err)
		closeResources()
		w.sink.Emit(events.MinionFailedFinal(w.cfg.PairID, w.cfg.DepDate, w.cfg.RetDate, runErr.Error()))
		return types.WorkerResult{}, runErr
	}
	_ = page.InstallRequestInterception(browseraction.InterceptionOptions{BlockAds: true, BlockAnalytics: true, BlockImages: false})
	w.sink.Emit(events.SessionCreated(w.cfg.PairID, session.SessionID, session.LiveViewURL, w.cfg.DepDate, w.cfg.RetDate))

	ctx = w.transition(ctx, StateNavigating)
	targetURL := w.cfg.URLBuilder(w.cfg.From, w.cfg.To, w.cfg.DepDate, w.cfg.RetDate)
	if navErr := page.Navigate(ctx, targetURL, navigationDeadline); navErr != nil {
		w.logger.Warn("navigation did not settle before its deadline, proceeding to probing anyway", zap.Error(navErr))
	}

	ctx = w.transition(ctx, StateProbing)
probeLoop:
	for {
		select {
		case <-ctx.Done():
			ctx = w.transition(ctx, StateFailed)
			runErr = types.NewError(types.ErrWorkerTimeout, "worker exceeded its deadline").WithCause(ctx.Err())
			closeResources()
			w.sink.Emit(events.MinionFailedFinal(w.cfg.PairID, w.cfg.DepDate, w.cfg.RetDate, runErr.Error()))
			return types.WorkerResult{}, runErr
		default:
		}

		shot, url, shotErr := page.Screenshot(ctx)
		if shotErr != nil {
			w.logger.Warn("screenshot failed during probing, backing off", zap.Error(shotErr))
			time.Sleep(probeBackoff)
			continue
		}

		state, probeErr := w.prober.Probe(ctx, shot, url)
		if probeErr != nil {
			w.logger.Warn("readiness probe failed, backing off", zap.Error(probeErr))
			time.Sleep(probeBackoff)
			continue
		}

		switch state.Kind {
		case types.PageResultsReady:
			if state.IsReady {
				break probeLoop
			}
			w.sleepOrDone(ctx, probeInterval)
		case types.PageLoading, types.PageUnknown:
			w.sink.Emit(events.Loading("waiting for results to render"))
			w.sleepOrDone(ctx, probeInterval)
		case types.PageCaptcha:
			ctx = w.transition(ctx, StateSolvingCaptcha)
			vw, vh := page.Viewport()
			solved := w.captchaD.Solve(ctx, w.cfg.PairID, page, vw, vh, url, func(kind string, payload map[string]any) {
				w.sink.Emit(events.Event{Kind: kind, Payload: payload})
			})
			w.logger.Info("captcha resolution attempted", zap.Bool("solved", solved))
			ctx = w.transition(ctx, StateProbing)
		case types.PageError:
			break probeLoop
		case types.PageNoResults:
			ctx = w.transition(ctx, StateDone)
			closeResources()
			w.sink.Emit(events.MinionCompleted(w.cfg.PairID, w.cfg.DepDate, w.cfg.RetDate, nil))
			return types.WorkerResult{PairID: w.cfg.PairID, DepDate: w.cfg.DepDate, RetDate: w.cfg.RetDate, Flights: nil}, nil
		default:
			w.sleepOrDone(ctx, probeInterval)
		}
	}

	ctx = w.transition(ctx, StateExtracting)
	extractor := w.extractF(page)
	task := fmt.Sprintf("Extract every round-trip flight option shown on this results page for %s to %s, departing %s and returning %s. Return flights as a JSON array of {airline, price, duration, route, stops, type} plus a short summary.",
		w.cfg.From, w.cfg.To, w.cfg.DepDate, w.cfg.RetDate)
	extracted := extractor.Run(ctx, task, func(iter int, act types.Action, res browseraction.ActionResult, shot []byte) {
		w.sink.Emit(events.GeminiAction(w.cfg.PairID, string(act.Kind), map[string]float64{"x": act.X, "y": act.Y}, res.Error, shot))
	})
	time.Sleep(extractionStabilizationBuffer)

	for i := range extracted.Flights {
		if extracted.Flights[i].Type == "" {
			extracted.Flights[i].Type = "round_trip"
		}
	}
	cheapest := cheapestPrice(extracted.Flights)

	ctx = w.transition(ctx, StateDone)
	wr := types.WorkerResult{
		PairID: w.cfg.PairID, DepDate: w.cfg.DepDate, RetDate: w.cfg.RetDate,
		Flights: extracted.Flights, CheapestPrice: cheapest,
	}
	closeResources()
	w.sink.Emit(events.MinionCompleted(w.cfg.PairID, w.cfg.DepDate, w.cfg.RetDate, flightsToAny(extracted.Flights)))
	return wr, nil
}

func (w *Worker) sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func synthesizeFailure(reason string) error {
	return types.NewError(types.ErrOrchestratorFailure, reason)
}

func flightsToAny(flights []types.Flight) []any {
	out := make([]any, len(flights))
	for i, f := range flights {
		out[i] = f
	}
	return out
}

// cheapestPrice picks the numerically-parsed minimum price, preserving the
// original string; falls back to lexicographic ordering when no candidate
// parses as a number (spec §4.G allows either, implementation-defined).
func cheapestPrice(flights []types.Flight) *string {
	if len(flights) == 0 {
		return nil
	}
	type candidate struct {
		raw   string
		value float64
		valid bool
	}
	candidates := make([]candidate, 0, len(flights))
	for _, f := range flights {
		v, err := strconv.ParseFloat(stripNonNumeric(f.Price), 64)
		candidates = append(candidates, candidate{raw: f.Price, value: v, valid: err == nil})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.valid && cj.valid {
			return ci.value < cj.value
		}
		if ci.valid != cj.valid {
			return ci.valid
		}
		return ci.raw < cj.raw
	})
	return &candidates[0].raw
}

func stripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
