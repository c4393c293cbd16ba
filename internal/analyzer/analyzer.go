// Package analyzer implements the progressive analysis digest (spec §4.I):
// a schema-constrained LLM call over the current Aggregate, with a
// deterministic fallback when the call fails. Grounded on
// internal/structured's generic Output[T] processor, the same pattern used
// by internal/readiness.
package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/structured"
	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

type cheapestOption struct {
	DepDate   string `json:"dep_date"`
	RetDate   string `json:"ret_date"`
	Price     string `json:"price"`
	Airline   string `json:"airline"`
	Reasoning string `json:"reasoning"`
}

type trend struct {
	Observation string `json:"observation"`
	Impact      string `json:"impact"`
}

type digest struct {
	CheapestOption cheapestOption `json:"cheapest_option"`
	Trends         []trend        `json:"trends"`
	Recommendations []string      `json:"recommendations"`
	Summary        string         `json:"summary"`
}

// Analyzer produces an Analysis over the current Aggregate.
type Analyzer struct {
	out    *structured.Output[digest]
	logger *zap.Logger
}

// New creates an Analyzer.
func New(model visionmodel.VisionModel, logger *zap.Logger) (*Analyzer, error) {
	out, err := structured.New[digest](model)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{out: out, logger: logger.With(zap.String("component", "analyzer"))}, nil
}

// Analyze produces a progressive Analysis. It never errors — an LLM
// failure degrades to the deterministic fallback per spec §4.I.
func (a *Analyzer) Analyze(ctx context.Context, agg types.Aggregate, req types.SearchRequest) types.Analysis {
	if len(agg.Results) == 0 {
		return types.Analysis{Trends: []types.Trend{}, Recommendations: []string{}, Summary: "no results yet", IsPartial: !agg.IsComplete()}
	}

	isPartial := !agg.IsComplete()
	result, err := a.out.Generate(ctx, []types.Message{types.NewUserMessage(prompt(agg, req, isPartial))})
	if err != nil || !result.IsValid() {
		a.logger.Warn("progressive analysis LLM call failed, using deterministic fallback", zap.Error(err))
		return fallback(agg, isPartial)
	}

	v := result.Value
	trends := make([]types.Trend, 0, len(v.Trends))
	for _, t := range v.Trends {
		trends = append(trends, types.Trend{Observation: t.Observation, Impact: t.Impact})
	}
	return types.Analysis{
		Cheapest: &types.CheapestOption{
			DepDate: v.CheapestOption.DepDate, RetDate: v.CheapestOption.RetDate,
			Price: v.CheapestOption.Price, Airline: v.CheapestOption.Airline, Reasoning: v.CheapestOption.Reasoning,
		},
		Trends:          trends,
		Recommendations: v.Recommendations,
		Summary:         v.Summary,
		IsPartial:       isPartial,
	}
}

func prompt(agg types.Aggregate, req types.SearchRequest, isPartial bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze %d flight search result(s) out of %d expected for a trip from %s to %s.\n", len(agg.Results), agg.Total, req.From, req.To)
	if isPartial {
		b.WriteString("Results are still arriving: use hedging language such as \"so far\" or \"based on current data\".\n")
	} else {
		b.WriteString("All results are in: write definitive language, not hedged.\n")
	}
	for _, r := range agg.Results {
		fmt.Fprintf(&b, "- pair %d: dep=%s ret=%s cheapest=%v flights=%d\n", r.PairID, r.DepDate, r.RetDate, r.CheapestPrice, len(r.Flights))
	}
	b.WriteString("Respond with cheapest_option, trends, recommendations, and summary.")
	return b.String()
}

// fallback picks the numerically-minimum parsed price across every row in
// every result as cheapest_option, leaves trends/recommendations empty, and
// synthesizes a count-based summary.
func fallback(agg types.Aggregate, isPartial bool) types.Analysis {
	type candidate struct {
		result types.WorkerResult
		flight types.Flight
		value  float64
		valid  bool
	}
	var best *candidate
	for _, r := range agg.Results {
		for _, f := range r.Flights {
			v, err := strconv.ParseFloat(stripNonNumeric(f.Price), 64)
			c := candidate{result: r, flight: f, value: v, valid: err == nil}
			if best == nil || betterCandidate(c, *best) {
				cc := c
				best = &cc
			}
		}
	}

	summary := fmt.Sprintf("%d of %d pairs processed so far.", agg.Completed, agg.Total)
	if !isPartial {
		summary = fmt.Sprintf("%d of %d pairs completed.", agg.Completed, agg.Total)
	}

	analysis := types.Analysis{Trends: []types.Trend{}, Recommendations: []string{}, Summary: summary, IsPartial: isPartial}
	if best != nil {
		analysis.Cheapest = &types.CheapestOption{
			DepDate: best.result.DepDate, RetDate: best.result.RetDate,
			Price: best.flight.Price, Airline: best.flight.Airline,
			Reasoning: "lowest parsed price across results collected so far",
		}
	}
	return analysis
}

func betterCandidate(c, best candidate) bool {
	if c.valid && best.valid {
		return c.value < best.value
	}
	if c.valid != best.valid {
		return c.valid
	}
	return c.flight.Price < best.flight.Price
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
