package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/api"
	"github.com/flightscout/orchestrator/config"
	"github.com/flightscout/orchestrator/internal/usercache"
	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/internal/worker"
	"github.com/flightscout/orchestrator/types"
)

// fakeVisionModel never drives a real browser; the readiness prober,
// analyzer, and extraction factory all hold a reference to it but this
// suite never invokes Complete directly (HandleSearch fails at session
// creation first, before any page exists to show the model).
type fakeVisionModel struct{}

func (fakeVisionModel) Complete(ctx context.Context, messages []types.Message, opts visionmodel.CompletionOptions) (visionmodel.Completion, error) {
	return visionmodel.Completion{Text: "{}"}, nil
}

type fakeSessionProvider struct {
	err error
}

func (f fakeSessionProvider) CreateSession(ctx context.Context) (types.SessionHandle, error) {
	if f.err != nil {
		return types.SessionHandle{}, f.err
	}
	return types.SessionHandle{SessionID: "sess-1", ControlURL: "ws://example.invalid/cdp"}, nil
}

func (f fakeSessionProvider) CloseSession(ctx context.Context, sessionID string) {}

type noopSearchMetrics struct{}

func (noopSearchMetrics) RecordWorkerExecution(status string, duration time.Duration)  {}
func (noopSearchMetrics) RecordWorkerStateTransition(fromState, toState string)         {}
func (noopSearchMetrics) RecordBatchDuration(searchMode string, duration time.Duration) {}
func (noopSearchMetrics) RecordCaptchaSolve(mode string, resolved bool, iterations int) {}
func (noopSearchMetrics) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
}

func newTestSearchHandler(t *testing.T, sessions worker.SessionProvider) *SearchHandler {
	t.Helper()

	deps := SearchDependencies{
		Sessions:    sessions,
		VisionModel: fakeVisionModel{},
		Signaler:    nil,
		UserCache:   usercache.NewInMemoryStore(time.Minute),
		Metrics:     noopSearchMetrics{},
		Logger:      zap.NewNop(),
		Orchestrator: config.OrchestratorConfig{
			ConcurrencyLimit: 2,
			MaxWorkerRetries: 0,
			RetryMode:        "off",
		},
		Worker: config.WorkerConfig{
			DeadlineMS:     50,
			MaxIterExtract: 1,
		},
		Captcha: config.CaptchaConfig{
			Mode:           "ai",
			SidecarURL:     "http://sidecar.invalid",
			MaxIterCaptcha: 1,
		},
		ViewportWidth:  1024,
		ViewportHeight: 768,
	}

	h, err := NewSearchHandler(deps)
	require.NoError(t, err)
	return h
}

func TestNewSearchHandler_KeepsConfiguredValues(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{})
	assert.Equal(t, 1024, h.viewportW)
	assert.Equal(t, 768, h.viewportH)
	assert.Equal(t, 50*time.Millisecond, h.workerDeadline)
}

func TestNewSearchHandler_ZeroViewportUsesDefault(t *testing.T) {
	deps := SearchDependencies{
		Sessions:    fakeSessionProvider{},
		VisionModel: fakeVisionModel{},
		UserCache:   usercache.NewInMemoryStore(time.Minute),
		Metrics:     noopSearchMetrics{},
		Logger:      zap.NewNop(),
		Captcha:     config.CaptchaConfig{Mode: "human", HumanSolveTimeout: time.Second},
	}
	h, err := NewSearchHandler(deps)
	require.NoError(t, err)
	assert.Greater(t, h.viewportW, 0)
	assert.Greater(t, h.viewportH, 0)
	assert.Equal(t, worker.DefaultDeadline, h.workerDeadline)
}

func TestHandleSearch_RejectsNonPost(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)

	h.HandleSearch(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleSearch_InvalidBody(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewBufferString(`{"from":}`))

	h.HandleSearch(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
}

func TestHandleSearch_InvalidRequest_FailsValidation(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{})
	body, err := json.Marshal(api.SearchRequest{SearchMode: "fixed"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))

	h.HandleSearch(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearch_SessionFailurePropagatesAsOrchestratorError(t *testing.T) {
	boom := assert.AnError
	h := newTestSearchHandler(t, fakeSessionProvider{err: boom})

	body, err := json.Marshal(api.SearchRequest{
		SearchMode: "fixed",
		From:       "NYC",
		To:         "LAX",
		DepDate:    "2025-11-01",
		RetDate:    "2025-11-08",
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))

	h.HandleSearch(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrOrchestratorFailure), resp.Error.Code)
}

func TestHandleSearchStream_RejectsNonPost(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/search/stream", nil)

	h.HandleSearchStream(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleSearchStream_StreamsEventsOnSessionFailure(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{err: assert.AnError})

	body, err := json.Marshal(api.SearchRequest{
		SearchMode: "fixed",
		From:       "NYC",
		To:         "LAX",
		DepDate:    "2025-11-01",
		RetDate:    "2025-11-08",
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search/stream", bytes.NewReader(body))

	h.HandleSearchStream(w, r)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "\"kind\"")
}

func TestWithUserContext_SkipsWithoutAPIKey(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)

	h.withUserContext(r, types.SearchRequest{From: "NYC", To: "LAX"})

	_, err := h.userCache.Get(r.Context(), "")
	assert.ErrorIs(t, err, usercache.ErrMiss)
}

func TestWithUserContext_StoresOnMiss(t *testing.T) {
	h := newTestSearchHandler(t, fakeSessionProvider{})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
	r.Header.Set("X-API-Key", "user-123")

	h.withUserContext(r, types.SearchRequest{From: "NYC", To: "LAX"})

	val, err := h.userCache.Get(r.Context(), "user-123")
	require.NoError(t, err)
	assert.Contains(t, val, "NYC-LAX")
}

func TestFromWireRequest_DefaultsToFixedMode(t *testing.T) {
	req := fromWireRequest(api.SearchRequest{From: "NYC", To: "LAX", DepDate: "2025-11-01", RetDate: "2025-11-08"})
	assert.Equal(t, types.SearchModeFixed, req.Mode)
}

func TestFromWireRequest_FlexibleMode(t *testing.T) {
	req := fromWireRequest(api.SearchRequest{SearchMode: "flexible", From: "NYC", To: "LAX", Month: 11, Year: 2025, TripDurationDays: 7})
	assert.Equal(t, types.SearchModeFlexible, req.Mode)
	assert.Equal(t, 11, req.Month)
}

func TestToWireResults_MapsFailureAndFlights(t *testing.T) {
	stops := 1
	price := "$420"
	results := []types.WorkerResult{
		{
			PairID:        1,
			DepDate:       "2025-11-01",
			RetDate:       "2025-11-08",
			CheapestPrice: &price,
			Flights: []types.Flight{
				{Airline: "Delta", Price: "$420", Duration: "5h", Route: "NYC-LAX", Stops: &stops, Type: "economy"},
			},
		},
		{
			PairID:  2,
			DepDate: "2025-11-02",
			RetDate: "2025-11-09",
			Failure: &types.Failure{Kind: "navigation_timeout", Message: "deadline exceeded"},
		},
	}

	wire := toWireResults(results)

	require.Len(t, wire, 2)
	assert.Equal(t, "$420", *wire[0].CheapestPrice)
	require.Len(t, wire[0].Flights, 1)
	assert.Equal(t, "Delta", wire[0].Flights[0].Airline)
	require.NotNil(t, wire[1].Failure)
	assert.Equal(t, "navigation_timeout", wire[1].Failure.Kind)
}

func TestToWireAnalysis_NilCheapestOmitted(t *testing.T) {
	view := toWireAnalysis(types.Analysis{Summary: "no results", IsPartial: true})
	assert.Nil(t, view.Cheapest)
	assert.True(t, view.IsPartial)
	assert.Equal(t, "no results", view.Summary)
}

func TestToWireAnalysis_MapsCheapestAndTrends(t *testing.T) {
	analysis := types.Analysis{
		Cheapest: &types.CheapestOption{DepDate: "2025-11-01", RetDate: "2025-11-08", Price: "$420", Airline: "Delta", Reasoning: "lowest fare found"},
		Trends:   []types.Trend{{Observation: "midweek is cheaper", Impact: "save ~15%"}},
		Summary:  "one clear winner",
	}

	view := toWireAnalysis(analysis)

	require.NotNil(t, view.Cheapest)
	assert.Equal(t, "Delta", view.Cheapest.Airline)
	require.Len(t, view.Trends, 1)
	assert.Equal(t, "midweek is cheaper", view.Trends[0].Observation)
}
