package analyzer

import (
	"context"
	"testing"

	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

func sampleAggregate(complete bool) types.Aggregate {
	agg := types.Aggregate{Total: 2}
	agg.Append(types.WorkerResult{
		PairID: 1, DepDate: "2025-11-01", RetDate: "2025-11-26",
		Flights: []types.Flight{{Airline: "Delta", Price: "$412"}, {Airline: "United", Price: "$389"}},
	})
	if complete {
		agg.Append(types.WorkerResult{PairID: 2, DepDate: "2025-11-02", RetDate: "2025-11-27", Flights: []types.Flight{{Airline: "JetBlue", Price: "$450"}}})
	}
	return agg
}

func TestAnalyzer_Analyze_UsesModelOutputWhenValid(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithResponse(visionmodel.Completion{
		Text: `{"cheapest_option":{"dep_date":"2025-11-01","ret_date":"2025-11-26","price":"$389","airline":"United","reasoning":"lowest so far"},"trends":[{"observation":"prices dip midweek","impact":"book Tuesday departures"}],"recommendations":["wait for more data"],"summary":"so far, United is cheapest"}`,
	})
	a, err := New(mock, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agg := sampleAggregate(false)
	analysis := a.Analyze(context.Background(), agg, types.SearchRequest{From: "NYC", To: "LAX"})

	if !analysis.IsPartial {
		t.Fatal("expected partial analysis for an incomplete aggregate")
	}
	if analysis.Cheapest == nil || analysis.Cheapest.Price != "$389" {
		t.Fatalf("unexpected cheapest: %+v", analysis.Cheapest)
	}
	if len(analysis.Trends) != 1 {
		t.Fatalf("expected 1 trend, got %+v", analysis.Trends)
	}
}

func TestAnalyzer_Analyze_FallsBackOnModelError(t *testing.T) {
	t.Parallel()

	mock := visionmodel.NewMockModel().WithError(errSimulated)
	a, err := New(mock, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agg := sampleAggregate(true)
	analysis := a.Analyze(context.Background(), agg, types.SearchRequest{From: "NYC", To: "LAX"})

	if analysis.IsPartial {
		t.Fatal("expected non-partial for a complete aggregate")
	}
	if analysis.Cheapest == nil || analysis.Cheapest.Price != "$389" {
		t.Fatalf("expected fallback to pick the numerically-cheapest row, got %+v", analysis.Cheapest)
	}
	if len(analysis.Trends) != 0 || len(analysis.Recommendations) != 0 {
		t.Fatalf("expected empty trends/recommendations in fallback, got %+v", analysis)
	}
}

func TestAnalyzer_Analyze_EmptyAggregateReturnsPlaceholder(t *testing.T) {
	t.Parallel()

	a, err := New(visionmodel.NewMockModel(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	analysis := a.Analyze(context.Background(), types.Aggregate{Total: 3}, types.SearchRequest{})
	if analysis.Summary != "no results yet" {
		t.Fatalf("unexpected summary: %q", analysis.Summary)
	}
	if analysis.Cheapest != nil {
		t.Fatalf("expected no cheapest option yet, got %+v", analysis.Cheapest)
	}
}

type simulatedErr string

func (e simulatedErr) Error() string { return string(e) }

var errSimulated = simulatedErr("model failure")
