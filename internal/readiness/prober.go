// Package readiness implements the single-shot vision call that classifies
// the currently driven page (spec §4.E), grounded on
// agent/structured/output.go's schema-constrained generation pattern.
package readiness

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/structured"
	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

type verdict struct {
	IsReady    bool    `json:"is_ready"`
	PageState  string  `json:"page_state"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

const prompt = `You are classifying the current state of a flight-search results page.
Respond with page_state as one of: loading, captcha, error, results_ready, no_results, unknown.
Criteria for results_ready: multiple flight cards visible, each with an airline, price, and time,
no loading indicators, no CAPTCHA challenge, and the rendering appears stable.
Set is_ready=true only when page_state=results_ready.`

// Prober asks the vision model to classify the current page.
type Prober struct {
	out    *structured.Output[verdict]
	logger *zap.Logger
}

// NewProber creates a Prober.
func NewProber(model visionmodel.VisionModel, logger *zap.Logger) (*Prober, error) {
	out, err := structured.New[verdict](model)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{out: out, logger: logger.With(zap.String("component", "readiness"))}, nil
}

// Probe classifies the current screenshot. It returns an error only for
// infrastructure failures (model call failure or unparseable structured
// output); spec §4.E's worker-level 10s-backoff-and-retry policy is the
// caller's responsibility.
func (p *Prober) Probe(ctx context.Context, screenshot []byte, currentURL string) (types.PageState, error) {
	msg := types.NewUserMessage(fmt.Sprintf("%s\ncurrent url: %s", prompt, currentURL))
	msg = msg.WithImages([]types.ImageContent{{
		Type: "base64",
		Data: base64.StdEncoding.EncodeToString(screenshot),
	}})

	result, err := p.out.Generate(ctx, []types.Message{msg})
	if err != nil {
		return types.PageState{}, types.NewError(types.ErrProbeError, "readiness model call failed").WithCause(err).WithRetryable(true)
	}
	if !result.IsValid() {
		return types.PageState{}, types.NewError(types.ErrProbeError, "readiness response did not parse").WithCause(result.Err).WithRetryable(true)
	}

	v := result.Value
	kind := types.PageStateKind(v.PageState)
	switch kind {
	case types.PageLoading, types.PageCaptcha, types.PageResultsReady, types.PageNoResults, types.PageError:
	default:
		kind = types.PageUnknown
	}

	return types.PageState{
		Kind:       kind,
		IsReady:    v.IsReady,
		Confidence: v.Confidence,
		Reasoning:  v.Reasoning,
	}, nil
}
