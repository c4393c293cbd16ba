// Package visionmodel declares the opaque vision/action LLM contract used by
// the readiness prober, extraction driver, and progressive analyzer, plus a
// default binding onto Anthropic's multimodal API. The interface is the
// load-bearing artifact; callers depend only on VisionModel.
package visionmodel

import (
	"context"

	"github.com/flightscout/orchestrator/types"
)

// ToolSpec describes one callable action surfaced to the model, built from
// the Action variant set.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema for the tool's arguments
}

// CompletionOptions configures a single vision/action call.
type CompletionOptions struct {
	Tools          []ToolSpec
	ResponseSchema map[string]any // optional; no caller in this module sets it and AnthropicModel ignores it
	MaxTokens      int
}

// Completion is the model's reply: either free text (possibly schema-
// constrained JSON) or a sequence of tool calls to execute in order.
type Completion struct {
	Text      string
	ToolCalls []types.ToolCall
}

// VisionModel is the opaque vision/action LLM collaborator. It is specified
// only by this interface; correctness of any concrete binding is the
// external model provider's responsibility.
type VisionModel interface {
	// Complete sends the accumulated message history (which may include
	// ImageContent screenshots) and returns the model's next turn.
	Complete(ctx context.Context, messages []types.Message, opts CompletionOptions) (Completion, error)
}
