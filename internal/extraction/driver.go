// Package extraction drives the vision model in an agent loop over a single
// page (spec §4.D), grounded on agent/browser/agentic_browser.go's
// Vision-Action Loop: screenshot → model turn → execute returned actions →
// repeat, bounded by a fixed iteration cap rather than a goal-achieved
// heuristic.
package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/internal/browseraction"
	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

// DefaultMaxIterations is MAX_ITER_EXTRACT.
const DefaultMaxIterations = 10

// Page is the subset of browseraction.Adapter the driver needs, so tests can
// substitute a fake without a real chromedp attachment.
type Page interface {
	Screenshot(ctx context.Context) ([]byte, string, error)
	Execute(ctx context.Context, act types.Action) browseraction.ActionResult
}

// Result is the extraction driver's terminal output.
type Result struct {
	Success  bool
	FinalURL string
	Flights  []types.Flight
	Summary  string
}

// ProgressFunc receives a progress notification for one executed action,
// with its resulting screenshot, for UI observability. It never blocks the
// driver's decisions — failures in the callback are not possible by
// construction (it returns nothing).
type ProgressFunc func(iteration int, act types.Action, res browseraction.ActionResult, screenshot []byte)

// textExtraction is the fallback shape parsed from the model's free text
// when it returns no tool calls.
type textExtraction struct {
	Flights []types.Flight `json:"flights"`
	Summary string         `json:"summary"`
}

var actionTools = buildActionTools()

// Driver runs the extraction vision-action loop for one page.
type Driver struct {
	model         visionmodel.VisionModel
	page          Page
	maxIterations int
	budget        *tokenBudget
	logger        *zap.Logger
}

// New creates a Driver. maxIterations <= 0 uses DefaultMaxIterations.
func New(model visionmodel.VisionModel, page Page, maxIterations int, logger *zap.Logger) *Driver {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		model:         model,
		page:          page,
		maxIterations: maxIterations,
		budget:        newTokenBudget(defaultTokenBudget),
		logger:        logger.With(zap.String("component", "extraction")),
	}
}

// Run drives the loop for the given task description, reporting progress via
// onProgress (may be nil). It returns no error: a failed model call is logged
// and the loop moves on to its next iteration, an unparseable final reply
// yields Success=false with Summary "parse error", and a context cancelled
// between iterations yields Success=false with Summary "cancelled".
func (d *Driver) Run(ctx context.Context, task string, onProgress ProgressFunc) Result {
	screenshot, currentURL, err := d.page.Screenshot(ctx)
	if err != nil {
		d.logger.Warn("initial screenshot failed", zap.Error(err))
	}

	messages := []types.Message{firstTurnMessage(task, screenshot)}

	for iter := 0; iter < d.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return Result{Summary: "cancelled", FinalURL: currentURL}
		default:
		}

		completion, err := d.model.Complete(ctx, messages, visionmodel.CompletionOptions{Tools: actionTools})
		if err != nil {
			d.logger.Warn("extraction model call failed, continuing", zap.Int("iteration", iter), zap.Error(err))
			continue
		}

		if len(completion.ToolCalls) == 0 {
			extraction, parseErr := parseTextExtraction(completion.Text)
			if parseErr != nil {
				d.logger.Warn("extraction text did not parse", zap.Error(parseErr))
				return Result{Success: false, FinalURL: currentURL, Flights: nil, Summary: "parse error"}
			}
			return Result{Success: true, FinalURL: currentURL, Flights: extraction.Flights, Summary: extraction.Summary}
		}

		assistantMsg := types.NewAssistantMessage(completion.Text).WithToolCalls(completion.ToolCalls)
		messages = append(messages, assistantMsg)

		for _, call := range completion.ToolCalls {
			act, err := actionFromToolCall(call)
			if err != nil {
				d.logger.Warn("could not decode tool call, skipping", zap.String("tool", call.Name), zap.Error(err))
				messages = append(messages, types.NewToolMessage(call.ID, call.Name, `{"ok":false,"error":"undecodable action"}`))
				continue
			}

			res := d.page.Execute(ctx, act)
			shot, url, shotErr := d.page.Screenshot(ctx)
			if shotErr == nil {
				screenshot = shot
			}
			if url != "" {
				currentURL = url
			}
			if onProgress != nil {
				onProgress(iter, act, res, screenshot)
			}

			payload, _ := json.Marshal(map[string]any{"ok": res.OK, "error": res.Error, "url": res.URL})
			toolMsg := types.NewToolMessage(call.ID, call.Name, string(payload))
			if len(screenshot) > 0 {
				toolMsg = toolMsg.WithImages([]types.ImageContent{{Type: "base64", Data: base64.StdEncoding.EncodeToString(screenshot)}})
			}
			messages = append(messages, toolMsg)
		}

		messages = d.budget.trim(messages)
	}

	return Result{Success: false, FinalURL: currentURL, Summary: "iteration cap reached"}
}

func firstTurnMessage(task string, screenshot []byte) types.Message {
	msg := types.NewUserMessage(task)
	if len(screenshot) > 0 {
		msg = msg.WithImages([]types.ImageContent{{Type: "base64", Data: base64.StdEncoding.EncodeToString(screenshot)}})
	}
	return msg
}

func parseTextExtraction(raw string) (textExtraction, error) {
	candidate := raw
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidate = raw[start : end+1]
		}
	}
	var out textExtraction
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return textExtraction{}, fmt.Errorf("extraction: parse text fallback: %w", err)
	}
	return out, nil
}
