package readiness

import (
	"context"
	"testing"

	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

func TestProber_Probe_ResultsReady(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{
		Text: `{"is_ready":true,"page_state":"results_ready","confidence":0.95,"reasoning":"cards visible"}`,
	})
	prober, err := NewProber(mock, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := prober.Probe(context.Background(), []byte("fake-png"), "https://example.com/search")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Kind != types.PageResultsReady || !state.IsReady {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Confidence != 0.95 {
		t.Fatalf("unexpected confidence: %v", state.Confidence)
	}
}

func TestProber_Probe_UnknownPageStateFallsBackToUnknown(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{
		Text: `{"is_ready":false,"page_state":"something_new","confidence":0.1,"reasoning":"n/a"}`,
	})
	prober, err := NewProber(mock, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := prober.Probe(context.Background(), []byte("fake-png"), "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Kind != types.PageUnknown {
		t.Fatalf("expected fallback to unknown, got %v", state.Kind)
	}
}

func TestProber_Probe_ModelErrorSurfacesAsProbeError(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithError(errBoom)
	prober, err := NewProber(mock, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = prober.Probe(context.Background(), []byte("fake-png"), "https://example.com")
	if err == nil {
		t.Fatal("expected an error")
	}
	if types.GetErrorCode(err) != types.ErrProbeError {
		t.Fatalf("expected ErrProbeError, got %v", types.GetErrorCode(err))
	}
	if !types.IsRetryable(err) {
		t.Fatalf("expected probe errors to be retryable")
	}
}

func TestProber_Probe_UnparseableResponseSurfacesAsProbeError(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{
		Text: `{"is_ready":true}`,
	})
	prober, err := NewProber(mock, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = prober.Probe(context.Background(), []byte("fake-png"), "https://example.com")
	if err == nil {
		t.Fatal("expected an error")
	}
	if types.GetErrorCode(err) != types.ErrProbeError {
		t.Fatalf("expected ErrProbeError, got %v", types.GetErrorCode(err))
	}
}

var errBoom = boomErr("simulated transport failure")

type boomErr string

func (e boomErr) Error() string { return string(e) }
