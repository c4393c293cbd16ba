package extraction

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/flightscout/orchestrator/internal/browseraction"
	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

type fakePage struct {
	shots [][]byte
	urls  []string
	idx   int
	execs []types.Action
}

func (f *fakePage) Screenshot(ctx context.Context) ([]byte, string, error) {
	if f.idx >= len(f.shots) {
		return f.shots[len(f.shots)-1], f.urls[len(f.urls)-1], nil
	}
	shot, url := f.shots[f.idx], f.urls[f.idx]
	return shot, url, nil
}

func (f *fakePage) Execute(ctx context.Context, act types.Action) browseraction.ActionResult {
	f.execs = append(f.execs, act)
	f.idx++
	return browseraction.ActionResult{OK: true, URL: "https://example.com/after"}
}

func TestDriver_Run_NoToolCallsParsesTextExtraction(t *testing.T) {
	t.Parallel()

	page := &fakePage{shots: [][]byte{[]byte("shot1")}, urls: []string{"https://example.com"}}
	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{
		Text: `{"flights":[{"airline":"Delta","price":"$412","type":"round_trip"}],"summary":"one option found"}`,
	})

	driver := New(mock, page, 3, nil)
	result := driver.Run(context.Background(), "extract flights", nil)

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.Flights) != 1 || result.Flights[0].Airline != "Delta" {
		t.Fatalf("unexpected flights: %+v", result.Flights)
	}
}

func TestDriver_Run_UnparseableTextReturnsParseErrorSummary(t *testing.T) {
	t.Parallel()

	page := &fakePage{shots: [][]byte{[]byte("shot1")}, urls: []string{"https://example.com"}}
	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{Text: "not json at all without braces"})

	driver := New(mock, page, 3, nil)
	result := driver.Run(context.Background(), "extract flights", nil)

	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.Summary != "parse error" {
		t.Fatalf("expected parse error summary, got %q", result.Summary)
	}
	if len(result.Flights) != 0 {
		t.Fatalf("expected no flights, got %+v", result.Flights)
	}
}

func TestDriver_Run_ExecutesToolCallsThenExtracts(t *testing.T) {
	t.Parallel()

	page := &fakePage{
		shots: [][]byte{[]byte("shot1"), []byte("shot2")},
		urls:  []string{"https://example.com", "https://example.com/after"},
	}
	args, _ := json.Marshal(map[string]any{"x": 500.0, "y": 500.0})
	mock := visionmodel.NewMockModel().
		WithResponse(visionmodel.Completion{ToolCalls: []types.ToolCall{{ID: "1", Name: "click", Arguments: args}}}).
		WithResponse(visionmodel.Completion{Text: `{"flights":[],"summary":"no flights yet"}`})

	var progressed int
	driver := New(mock, page, 5, nil)
	result := driver.Run(context.Background(), "extract flights", func(iter int, act types.Action, res browseraction.ActionResult, shot []byte) {
		progressed++
	})

	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if progressed != 1 {
		t.Fatalf("expected one progress callback, got %d", progressed)
	}
	if len(page.execs) != 1 || page.execs[0].Kind != types.ActionClick {
		t.Fatalf("expected one click action executed, got %+v", page.execs)
	}
}

func TestDriver_Run_ModelErrorsDoNotAbortLoop(t *testing.T) {
	t.Parallel()

	page := &fakePage{shots: [][]byte{[]byte("shot1")}, urls: []string{"https://example.com"}}
	mock := visionmodel.NewMockModel().
		WithError(errSimulated).
		WithResponse(visionmodel.Completion{Text: `{"flights":[],"summary":"recovered"}`})

	driver := New(mock, page, 5, nil)
	result := driver.Run(context.Background(), "extract flights", nil)

	if !result.Success || result.Summary != "recovered" {
		t.Fatalf("expected recovery after transient model error, got %+v", result)
	}
}

func TestDriver_Run_IterationCapReachedWithoutExtraction(t *testing.T) {
	t.Parallel()

	page := &fakePage{shots: [][]byte{[]byte("shot1")}, urls: []string{"https://example.com"}}
	args, _ := json.Marshal(map[string]any{"x": 500.0, "y": 500.0})
	mock := visionmodel.NewMockModel()
	for i := 0; i < 3; i++ {
		mock = mock.WithResponse(visionmodel.Completion{ToolCalls: []types.ToolCall{{ID: "1", Name: "move", Arguments: args}}})
	}

	driver := New(mock, page, 3, nil)
	result := driver.Run(context.Background(), "extract flights", nil)

	if result.Success {
		t.Fatalf("expected no success within the iteration cap")
	}
	if result.Summary != "iteration cap reached" {
		t.Fatalf("unexpected summary: %q", result.Summary)
	}
}

type simulatedErr string

func (e simulatedErr) Error() string { return string(e) }

var errSimulated = simulatedErr("transient model failure")
