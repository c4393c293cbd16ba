package types

import (
	"fmt"
	"time"
)

// SearchMode selects how a SearchRequest expands into DatePairs.
type SearchMode string

const (
	SearchModeFixed    SearchMode = "fixed"
	SearchModeFlexible SearchMode = "flexible"
)

// SearchRequest is the inbound client request. In fixed mode From/To/DepDate/
// RetDate are used directly. In flexible mode Month/Year/TripDurationDays
// drive date-pair expansion.
type SearchRequest struct {
	Mode             SearchMode `json:"search_mode"`
	From             string     `json:"from"`
	To               string     `json:"to"`
	DepDate          string     `json:"dep_date,omitempty"`
	RetDate          string     `json:"ret_date,omitempty"`
	Month            int        `json:"month,omitempty"` // 0-indexed, January=0
	Year             int        `json:"year,omitempty"`
	TripDurationDays int        `json:"trip_duration,omitempty"`
}

// Validate enforces the invariants for the request's mode.
func (r SearchRequest) Validate() error {
	if r.From == "" || r.To == "" {
		return fmt.Errorf("from/to are required")
	}
	switch r.Mode {
	case SearchModeFixed:
		if r.DepDate == "" || r.RetDate == "" {
			return fmt.Errorf("fixed mode requires dep_date and ret_date")
		}
	case SearchModeFlexible:
		if r.Month < 0 || r.Month > 11 {
			return fmt.Errorf("month must be in [0,11], got %d", r.Month)
		}
		days := daysInMonth(r.Month, r.Year)
		if r.TripDurationDays < 1 || r.TripDurationDays >= days {
			return fmt.Errorf("trip_duration must satisfy 1 <= trip_duration < %d, got %d", days, r.TripDurationDays)
		}
	default:
		return fmt.Errorf("unknown search_mode %q", r.Mode)
	}
	return nil
}

// DatePair is one (departure, return) combination to search, with a stable
// 1-based index for the request.
type DatePair struct {
	PairID  int    `json:"pair_id"`
	DepDate string `json:"dep_date"`
	RetDate string `json:"ret_date"`
}

const dateLayout = "2006-01-02"

// daysInMonth returns the number of days in the given 0-indexed month/year.
func daysInMonth(month0, year int) int {
	return time.Date(year, time.Month(month0+2), 0, 0, 0, 0, 0, time.UTC).Day()
}

// ExpandDatePairs enumerates DatePairs for a flexible SearchRequest. Each
// start day in [1, daysInMonth-tripDuration+1] yields one pair; the return
// date is tripDuration days after the departure date and may roll into the
// following month. For a fixed-mode request, ExpandDatePairs returns the
// single configured pair.
func ExpandDatePairs(req SearchRequest) ([]DatePair, error) {
	if req.Mode == SearchModeFixed {
		return []DatePair{{PairID: 1, DepDate: req.DepDate, RetDate: req.RetDate}}, nil
	}
	if req.Mode != SearchModeFlexible {
		return nil, fmt.Errorf("unknown search_mode %q", req.Mode)
	}

	days := daysInMonth(req.Month, req.Year)
	count := days - req.TripDurationDays + 1
	if count < 0 {
		count = 0
	}

	pairs := make([]DatePair, 0, count)
	first := time.Date(req.Year, time.Month(req.Month+1), 1, 0, 0, 0, 0, time.UTC)
	for startDay := 1; startDay <= count; startDay++ {
		dep := first.AddDate(0, 0, startDay-1)
		ret := dep.AddDate(0, 0, req.TripDurationDays)
		pairs = append(pairs, DatePair{
			PairID:  startDay,
			DepDate: dep.Format(dateLayout),
			RetDate: ret.Format(dateLayout),
		})
	}
	return pairs, nil
}

// WorkerID identifies a worker by its pair's 1-based index.
type WorkerID = int

// SessionHandle is a remote-browser session owned exclusively by the worker
// that created it.
type SessionHandle struct {
	SessionID   string    `json:"session_id"`
	ControlURL  string    `json:"control_url"`
	LiveViewURL string    `json:"live_view_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PageStateKind is the readiness classification of the currently driven page.
type PageStateKind string

const (
	PageLoading      PageStateKind = "loading"
	PageCaptcha      PageStateKind = "captcha"
	PageResultsReady PageStateKind = "results_ready"
	PageNoResults    PageStateKind = "no_results"
	PageError        PageStateKind = "error"
	PageUnknown      PageStateKind = "unknown"
)

// PageState is the readiness prober's structured verdict.
type PageState struct {
	Kind       PageStateKind `json:"page_state"`
	IsReady    bool          `json:"is_ready"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}

// ActionKind discriminates the Action tagged variant.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionDrag     ActionKind = "drag"
	ActionScroll   ActionKind = "scroll"
	ActionKey      ActionKind = "key"
	ActionNavigate ActionKind = "navigate"
	ActionWait     ActionKind = "wait"
	ActionHover    ActionKind = "hover"
	ActionMove     ActionKind = "move"
)

// Action is a closed tagged variant of browser actions. Coordinates are in
// the normalized 0..999 space; the adapter denormalizes them to viewport
// pixels. Only the fields relevant to Kind are populated; the rest are zero.
type Action struct {
	Kind ActionKind `json:"kind"`

	X, Y       float64 `json:"x,omitempty"`
	X0, Y0     float64 `json:"x0,omitempty"`
	X1, Y1     float64 `json:"x1,omitempty"`
	Text       string  `json:"text,omitempty"`
	PressEnter bool    `json:"press_enter,omitempty"`
	ClearFirst bool    `json:"clear_first,omitempty"`
	Direction  string  `json:"direction,omitempty"`
	Magnitude  float64 `json:"magnitude,omitempty"`
	Chord      string  `json:"chord,omitempty"`
	URL        string  `json:"url,omitempty"`
	Seconds    float64 `json:"seconds,omitempty"`
}

// Flight is one extracted flight row.
type Flight struct {
	Airline  string `json:"airline"`
	Price    string `json:"price"`
	Duration string `json:"duration,omitempty"`
	Route    string `json:"route,omitempty"`
	Stops    *int   `json:"stops,omitempty"`
	Type     string `json:"type"`
}

// Failure describes why a worker produced no result.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WorkerResult is the single terminal output of a worker for its pair. A
// worker produces at most one WorkerResult in its lifetime.
type WorkerResult struct {
	PairID        int      `json:"pair_id"`
	DepDate       string   `json:"dep_date"`
	RetDate       string   `json:"ret_date"`
	Flights       []Flight `json:"flights"`
	CheapestPrice *string  `json:"cheapest_price,omitempty"`
	Failure       *Failure `json:"failure,omitempty"`
}

// Aggregate is the orchestrator's ordered, append-only record of successful
// WorkerResults, plus completion counters. Insertion order equals completion
// order; it carries no synchronization of its own — the orchestrator is its
// sole mutator and serializes access.
type Aggregate struct {
	Results   []WorkerResult `json:"all_results"`
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Processed int            `json:"processed"`
}

// Append records a successful result, preserving insertion order.
func (a *Aggregate) Append(r WorkerResult) {
	a.Results = append(a.Results, r)
	a.Completed++
	a.Processed++
}

// MarkFailed records a terminal failure without an associated result.
func (a *Aggregate) MarkFailed() {
	a.Processed++
}

// IsComplete reports whether every pair has reached a terminal outcome.
func (a *Aggregate) IsComplete() bool {
	return a.Processed >= a.Total
}

// CheapestOption is the analyzer's pick of the lowest-price row.
type CheapestOption struct {
	DepDate   string `json:"dep_date"`
	RetDate   string `json:"ret_date"`
	Price     string `json:"price"`
	Airline   string `json:"airline"`
	Reasoning string `json:"reasoning"`
}

// Trend is one observed pattern across the current result set.
type Trend struct {
	Observation string `json:"observation"`
	Impact      string `json:"impact"`
}

// Analysis is the progressive analyzer's structured digest over the current
// Aggregate.
type Analysis struct {
	Cheapest        *CheapestOption `json:"cheapest,omitempty"`
	Trends          []Trend         `json:"trends"`
	Recommendations []string        `json:"recommendations"`
	Summary         string          `json:"summary"`
	IsPartial       bool            `json:"is_partial"`
}

// BreakerState names a circuit breaker's discrete state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitState is a point-in-time snapshot of a circuit breaker, exposed for
// introspection and metrics; the live, mutex-guarded breaker lives in
// internal/reliability.
type CircuitState struct {
	State      BreakerState `json:"state"`
	Failures   int          `json:"failures"`
	OpensUntil time.Time    `json:"opens_until,omitempty"`
}
