package visionmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/reliability"
	"github.com/flightscout/orchestrator/internal/tlsutil"
	"github.com/flightscout/orchestrator/types"
)

// DefaultRateLimitRPS throttles outbound Anthropic calls; one worker
// goroutine per in-flight date pair can otherwise burst past the API's
// per-minute quota during a wide flexible-month search.
const DefaultRateLimitRPS = 4.0

// AnthropicModel is the default VisionModel binding, backed by Anthropic's
// multimodal messages API.
type AnthropicModel struct {
	client  *anthropic.Client
	model   anthropic.Model
	limiter *reliability.RateLimiter
	logger  *zap.Logger
}

// NewAnthropicModel creates a VisionModel backed by Anthropic. model is the
// configured model ID (LLM_MODEL). rps <= 0 disables outbound throttling.
func NewAnthropicModel(apiKey, model string, rps float64, logger *zap.Logger) *AnthropicModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithHTTPClient(tlsutil.SecureHTTPClient(60*time.Second)))
	return &AnthropicModel{
		client:  &client,
		model:   anthropic.Model(model),
		limiter: reliability.NewRateLimiter(rps, int(rps)+1),
		logger:  logger.With(zap.String("component", "visionmodel")),
	}
}

func (m *AnthropicModel) Complete(ctx context.Context, messages []types.Message, opts CompletionOptions) (Completion, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("anthropic completion: rate limit wait: %w", err)
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 2048
	}

	params := anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(messages),
	}

	for _, tool := range opts.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: toInputSchema(tool.Parameters),
			},
		})
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic completion: %w", err)
	}

	var out Completion
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += v.Text
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(v.Input)
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

func toInputSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{Type: "object"}
	if props, ok := params["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := params["required"].([]string); ok {
		schema.ExtraFields = map[string]any{"required": req}
	}
	return schema
}

func toAnthropicMessages(messages []types.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, img := range msg.Images {
			if img.Type == "base64" {
				blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", img.Data))
			}
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			_ = json.Unmarshal(tc.Arguments, &input)
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if msg.Role == types.RoleTool {
			blocks = append(blocks, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}

		switch msg.Role {
		case types.RoleUser, types.RoleTool:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case types.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}
