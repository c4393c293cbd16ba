package structured

import (
	"context"
	"testing"

	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

type readinessVerdict struct {
	IsReady    bool    `json:"is_ready"`
	PageState  string  `json:"page_state"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func TestOutput_Generate_ParsesFencedJSON(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{
		Text: "```json\n{\"is_ready\":true,\"page_state\":\"results_ready\",\"confidence\":0.92,\"reasoning\":\"cards visible\"}\n```",
	})

	out, err := New[readinessVerdict](mock)
	if err != nil {
		t.Fatalf("unexpected error building Output: %v", err)
	}
	result, err := out.Generate(context.Background(), []types.Message{types.NewUserMessage("classify the page")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsValid() {
		t.Fatalf("expected valid result, err=%v raw=%q", result.Err, result.Raw)
	}
	if !result.Value.IsReady || result.Value.PageState != "results_ready" {
		t.Fatalf("unexpected parsed value: %+v", result.Value)
	}
}

func TestOutput_Generate_MissingRequiredField(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{
		Text: `{"is_ready":true}`,
	})
	out, err := New[readinessVerdict](mock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := out.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if result.IsValid() {
		t.Fatalf("expected invalid result due to missing required fields")
	}
}

func TestExtractJSON_PlainBraces(t *testing.T) {
	t.Parallel()

	raw := "here is the answer: {\"a\":1} thanks"
	got := extractJSON(raw)
	if got != `{"a":1}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}
