package visionmodel

import (
	"context"
	"time"

	"github.com/flightscout/orchestrator/types"
)

// Metrics is the subset of internal/metrics.Collector a VisionModel call
// reports against. Satisfied by *metrics.Collector; nil disables recording.
type Metrics interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64)
}

// InstrumentedModel wraps a VisionModel, recording call duration and
// success/failure status on every Complete. Per-call token usage isn't
// part of the Completion contract (callers across readiness, extraction,
// and analysis only consume Text/ToolCalls), so prompt/completion tokens
// and cost are reported as zero here.
type InstrumentedModel struct {
	VisionModel
	provider string
	model    string
	metrics  Metrics
}

// Instrument wraps model so every Complete call is recorded against
// metrics, labeled with provider and model. metrics may be nil, in which
// case recording is a no-op and model is returned unwrapped.
func Instrument(model VisionModel, provider, modelName string, metrics Metrics) VisionModel {
	if metrics == nil {
		return model
	}
	return &InstrumentedModel{VisionModel: model, provider: provider, model: modelName, metrics: metrics}
}

func (m *InstrumentedModel) Complete(ctx context.Context, messages []types.Message, opts CompletionOptions) (Completion, error) {
	started := time.Now()
	completion, err := m.VisionModel.Complete(ctx, messages, opts)
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.metrics.RecordLLMRequest(m.provider, m.model, status, time.Since(started), 0, 0, 0)
	return completion, err
}
