// Package events defines the orchestrator's outbound event stream (spec §6):
// an explicit Sink capability threaded through workers and the orchestrator,
// rather than a shared mutable log, so that request-scoped subscribers never
// cross-talk. Grounded on workflow/parallel.go's callback-based progress
// reporting, generalized from a single Aggregator callback to a typed Sink
// interface.
package events

// Event is one outbound occurrence; Payload shapes follow spec §6's
// per-kind sketches. Consumers must ignore unrecognized fields.
type Event struct {
	Kind    string         `json:"event"`
	Payload map[string]any `json:"data"`
}

// Sink receives events in the exact order they are emitted.
type Sink interface {
	Emit(e Event)
}

// Func adapts a plain function to a Sink.
type Func func(Event)

// Emit implements Sink.
func (f Func) Emit(e Event) { f(e) }

// Nop discards every event; useful as a default in tests.
var Nop Sink = Func(func(Event) {})

func CombinationsGenerated(total int) Event {
	return Event{Kind: "combinations_generated", Payload: map[string]any{"total": total}}
}

func SessionCreated(pairID int, sessionID, liveViewURL, depDate, retDate string) Event {
	return Event{Kind: "session_created", Payload: map[string]any{
		"pair_id": pairID, "session_id": sessionID, "live_view_url": liveViewURL,
		"dep_date": depDate, "ret_date": retDate,
	}}
}

func Loading(message string) Event {
	return Event{Kind: "loading", Payload: map[string]any{"message": message}}
}

func CaptchaDetected(pairID int, liveViewURL, captchaType string) Event {
	payload := map[string]any{"pair_id": pairID, "live_view_url": liveViewURL}
	if captchaType != "" {
		payload["captcha_type"] = captchaType
	}
	return Event{Kind: "captcha_detected", Payload: payload}
}

func StrategyReady(pairID int, reasoning string, screenshot []byte) Event {
	return Event{Kind: "strategy_ready", Payload: map[string]any{
		"pair_id": pairID, "reasoning": reasoning, "screenshot": screenshot,
	}}
}

func GeminiAction(pairID int, action string, coordinates map[string]float64, reasoning string, screenshot []byte) Event {
	return Event{Kind: "gemini_action", Payload: map[string]any{
		"pair_id": pairID, "action": action, "coordinates": coordinates,
		"reasoning": reasoning, "screenshot": screenshot,
	}}
}

func MinionCompleted(pairID int, depDate, retDate string, flights []any) Event {
	return Event{Kind: "minion_completed", Payload: map[string]any{
		"pair_id": pairID, "dep_date": depDate, "ret_date": retDate, "flights": flights,
	}}
}

func MinionFailedFinal(pairID int, depDate, retDate, errMsg string) Event {
	return Event{Kind: "minion_failed_final", Payload: map[string]any{
		"pair_id": pairID, "dep_date": depDate, "ret_date": retDate, "error": errMsg,
	}}
}

func ProgressiveResults(total, completed, failed int, allResults any, analysis any, isComplete bool) Event {
	return Event{Kind: "progressive_results", Payload: map[string]any{
		"total": total, "completed": completed, "failed": failed,
		"all_results": allResults, "analysis": analysis, "is_complete": isComplete,
	}}
}

func Error(message string) Event {
	return Event{Kind: "error", Payload: map[string]any{"error": message}}
}
