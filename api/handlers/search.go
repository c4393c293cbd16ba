// Package handlers' search surface accepts a flight-search request, builds a
// brand-new per-request orchestrator and worker fleet bound to the caller's
// From/To/date parameters, and returns either a single JSON response or a
// streamed sequence of progress events. Grounded on the now-superseded
// chat handler's SSE framing (Content-Type: text/event-stream, explicit
// flush per frame) generalized from chat deltas to orchestrator events.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/api"
	"github.com/flightscout/orchestrator/config"
	"github.com/flightscout/orchestrator/internal/analyzer"
	"github.com/flightscout/orchestrator/internal/browseraction"
	"github.com/flightscout/orchestrator/internal/captcha"
	"github.com/flightscout/orchestrator/internal/events"
	"github.com/flightscout/orchestrator/internal/extraction"
	"github.com/flightscout/orchestrator/internal/orchestrator"
	"github.com/flightscout/orchestrator/internal/readiness"
	"github.com/flightscout/orchestrator/internal/usercache"
	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/internal/worker"
	"github.com/flightscout/orchestrator/types"
)

// SearchDependencies are the long-lived collaborators a SearchHandler is
// built from once at startup. Every field is shared by every request;
// request-scoped state (the WorkerFactory closure, the event Sink) is built
// fresh inside HandleSearch/HandleSearchStream.
type SearchDependencies struct {
	Sessions       worker.SessionProvider
	VisionModel    visionmodel.VisionModel
	Signaler       *captcha.Signaler
	UserCache      usercache.Store
	Metrics        searchMetrics
	Logger         *zap.Logger
	Orchestrator   config.OrchestratorConfig
	Worker         config.WorkerConfig
	Captcha        config.CaptchaConfig
	ViewportWidth  int
	ViewportHeight int
}

// searchMetrics is the subset of internal/metrics.Collector every wired
// component reports against; *metrics.Collector satisfies it structurally.
type searchMetrics interface {
	worker.Metrics
	orchestrator.Metrics
	captcha.Metrics
	visionmodel.Metrics
}

// SearchHandler serves /api/v1/search and /api/v1/search/stream.
type SearchHandler struct {
	sessions  worker.SessionProvider
	attach    worker.Attacher
	prober    *readiness.Prober
	extractF  func(worker.Page) worker.Extractor
	captchaD  *captcha.Delegator
	analyzer  *analyzer.Analyzer
	userCache usercache.Store
	metrics   searchMetrics
	logger    *zap.Logger

	orchCfg        config.OrchestratorConfig
	workerDeadline time.Duration
	viewportW      int
	viewportH      int
}

// NewSearchHandler builds the shared components (readiness prober, captcha
// delegator, progressive analyzer) once, binding the per-request worker
// fleet factory to them.
func NewSearchHandler(deps SearchDependencies) (*SearchHandler, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	prober, err := readiness.NewProber(deps.VisionModel, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("init readiness prober: %w", err)
	}

	an, err := analyzer.New(deps.VisionModel, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("init analyzer: %w", err)
	}

	captchaMode := captcha.ModeSidecar
	if deps.Captcha.Mode == "human" {
		captchaMode = captcha.ModeHuman
	}
	captchaCfg := captcha.Config{
		Mode:              captchaMode,
		SidecarURL:        deps.Captcha.SidecarURL,
		MaxIterations:     deps.Captcha.MaxIterCaptcha,
		HumanSolveTimeout: deps.Captcha.HumanSolveTimeout,
		RateLimitRPS:      deps.Captcha.RateLimitRPS,
	}
	captchaD := captcha.New(captchaCfg, deps.Signaler, deps.Logger, deps.Metrics)

	viewportW := deps.ViewportWidth
	if viewportW <= 0 {
		viewportW = browseraction.DefaultViewportWidth
	}
	viewportH := deps.ViewportHeight
	if viewportH <= 0 {
		viewportH = browseraction.DefaultViewportHeight
	}

	maxIterExtract := deps.Worker.MaxIterExtract
	extractF := func(page worker.Page) worker.Extractor {
		return extraction.New(deps.VisionModel, page, maxIterExtract, deps.Logger)
	}

	deadline := time.Duration(deps.Worker.DeadlineMS) * time.Millisecond
	if deadline <= 0 {
		deadline = worker.DefaultDeadline
	}

	return &SearchHandler{
		sessions:       deps.Sessions,
		attach:         attachPage,
		prober:         prober,
		extractF:       extractF,
		captchaD:       captchaD,
		analyzer:       an,
		userCache:      deps.UserCache,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		orchCfg:        deps.Orchestrator,
		workerDeadline: deadline,
		viewportW:      viewportW,
		viewportH:      viewportH,
	}, nil
}

// attachPage adapts browseraction.Attach's concrete *Adapter return to the
// worker.Page interface the worker state machine is written against.
func attachPage(ctx context.Context, controlURL string, viewportWidth, viewportHeight int, logger *zap.Logger) (worker.Page, error) {
	return browseraction.Attach(ctx, controlURL, viewportWidth, viewportHeight, logger)
}

// newOrchestrator builds a fresh orchestrator (and its worker-factory
// closure) bound to sink — the request's own event channel — and req, whose
// From/To every worker in this request's fleet shares. Every worker attempt
// gets a brand-new remote session via h.sessions, per spec.
func (h *SearchHandler) newOrchestrator(sink events.Sink, req types.SearchRequest) *orchestrator.Orchestrator {
	factory := func(pair types.DatePair) orchestrator.WorkerRunner {
		cfg := worker.Config{
			PairID:    pair.PairID,
			DepDate:   pair.DepDate,
			RetDate:   pair.RetDate,
			From:      req.From,
			To:        req.To,
			Deadline:  h.workerDeadline,
			ViewportW: h.viewportW,
			ViewportH: h.viewportH,
		}
		return worker.New(cfg, h.sessions, h.attach, h.prober, h.extractF, h.captchaD, sink, h.logger, h.metrics)
	}

	orchCfg := orchestrator.Config{
		ConcurrencyLimit: h.orchCfg.ConcurrencyLimit,
		MaxWorkerRetries: h.orchCfg.MaxWorkerRetries,
		RetryMode:        orchestrator.RetryMode(h.orchCfg.RetryMode),
	}
	return orchestrator.New(orchCfg, factory, h.analyzer, sink, h.logger, h.metrics)
}

// fromWireRequest converts the wire SearchRequest to the domain type.
func fromWireRequest(in api.SearchRequest) types.SearchRequest {
	mode := types.SearchModeFixed
	if in.SearchMode == string(types.SearchModeFlexible) {
		mode = types.SearchModeFlexible
	}
	return types.SearchRequest{
		Mode:             mode,
		From:             in.From,
		To:               in.To,
		DepDate:          in.DepDate,
		RetDate:          in.RetDate,
		Month:            in.Month,
		Year:             in.Year,
		TripDurationDays: in.TripDurationDays,
	}
}

// HandleSearch runs a full search synchronously and returns the final
// aggregate plus analysis as a single JSON body. If the request expanded to
// at least one date pair and none of them completed, it responds with an
// ORCHESTRATOR_FAILURE error instead.
//
// @Summary Run a flight-date-matrix search
// @Description Fans out a worker per date pair and returns the full result set with analysis
// @Tags search
// @Accept json
// @Produce json
// @Param request body api.SearchRequest true "search request"
// @Success 200 {object} api.SearchResultResponse
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/search [post]
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var wireReq api.SearchRequest
	if err := DecodeJSONBody(w, r, &wireReq, h.logger); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	req := fromWireRequest(wireReq)
	if err := req.Validate(); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	h.withUserContext(r, req)

	o := h.newOrchestrator(events.Nop, req)
	agg, err := o.Run(r.Context(), req)
	if err != nil {
		WriteError(w, types.NewError(types.ErrOrchestratorFailure, err.Error()), h.logger)
		return
	}
	if agg.Total > 0 && agg.Completed == 0 {
		WriteError(w, types.NewError(types.ErrOrchestratorFailure, "every date pair failed"), h.logger)
		return
	}

	analysis := h.analyzer.Analyze(r.Context(), agg, req)
	WriteSuccess(w, api.SearchResultResponse{
		Results:  toWireResults(agg.Results),
		Analysis: toWireAnalysis(analysis),
	})
}

// HandleSearchStream runs a search and streams each orchestrator event as a
// Server-Sent Event frame, so a client can render progressive results as
// date pairs settle.
//
// @Summary Stream a flight-date-matrix search
// @Description Fans out a worker per date pair, streaming progress via SSE
// @Tags search
// @Accept json
// @Produce text/event-stream
// @Param request body api.SearchRequest true "search request"
// @Success 200 {string} string "text/event-stream"
// @Failure 400 {object} Response
// @Router /api/v1/search/stream [post]
func (h *SearchHandler) HandleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var wireReq api.SearchRequest
	if err := DecodeJSONBody(w, r, &wireReq, h.logger); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	req := fromWireRequest(wireReq)
	if err := req.Validate(); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming unsupported"), h.logger)
		return
	}

	h.withUserContext(r, req)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, flusher: flusher}
	o := h.newOrchestrator(sink, req)

	_, err := o.Run(r.Context(), req)
	if err != nil {
		sink.Emit(events.Error(err.Error()))
	}
}

// withUserContext looks up the caller's cached provider context id, keyed by
// their API key, as a best-effort hint; absence is not an error. This is the
// opt-in per-user context cache's sole current consumer.
func (h *SearchHandler) withUserContext(r *http.Request, req types.SearchRequest) {
	if h.userCache == nil {
		return
	}
	userID := r.Header.Get("X-API-Key")
	if userID == "" {
		return
	}
	if _, err := h.userCache.Get(r.Context(), userID); err != nil {
		_ = h.userCache.Set(r.Context(), userID, fmt.Sprintf("%s-%s:%d", req.From, req.To, time.Now().Unix()))
	}
}

// sseSink writes each emitted event as one "data: {...}\n\n" SSE frame,
// flushing immediately so a client observes progress in real time. The
// orchestrator emits from multiple goroutines during a batch, so writes are
// serialized with a mutex.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Emit(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func toWireResults(results []types.WorkerResult) []api.FlightResult {
	out := make([]api.FlightResult, 0, len(results))
	for _, r := range results {
		out = append(out, api.FlightResult{
			PairID:        r.PairID,
			DepDate:       r.DepDate,
			RetDate:       r.RetDate,
			Flights:       toWireFlights(r.Flights),
			CheapestPrice: r.CheapestPrice,
			Failure:       toWireFailure(r.Failure),
		})
	}
	return out
}

func toWireFlights(flights []types.Flight) []api.Flight {
	out := make([]api.Flight, 0, len(flights))
	for _, f := range flights {
		out = append(out, api.Flight{
			Airline:  f.Airline,
			Price:    f.Price,
			Duration: f.Duration,
			Route:    f.Route,
			Stops:    f.Stops,
			Type:     f.Type,
		})
	}
	return out
}

func toWireFailure(f *types.Failure) *api.Failure {
	if f == nil {
		return nil
	}
	return &api.Failure{Kind: f.Kind, Message: f.Message}
}

func toWireAnalysis(a types.Analysis) api.AnalysisView {
	view := api.AnalysisView{
		Trends:          make([]api.Trend, 0, len(a.Trends)),
		Recommendations: a.Recommendations,
		Summary:         a.Summary,
		IsPartial:       a.IsPartial,
	}
	if a.Cheapest != nil {
		view.Cheapest = &api.CheapestOption{
			DepDate:   a.Cheapest.DepDate,
			RetDate:   a.Cheapest.RetDate,
			Price:     a.Cheapest.Price,
			Airline:   a.Cheapest.Airline,
			Reasoning: a.Cheapest.Reasoning,
		}
	}
	for _, t := range a.Trends {
		view.Trends = append(view.Trends, api.Trend{Observation: t.Observation, Impact: t.Impact})
	}
	return view
}
