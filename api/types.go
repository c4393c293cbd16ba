// Package api defines the wire-level request/response envelopes for the
// flight-search HTTP surface. Grounded on the teacher's api/types.go envelope
// shape (Response/ErrorInfo), narrowed to the fan-out orchestrator's domain:
// a search request, its streamed progress events, and the final analysis.
package api

import "time"

// Response is the canonical JSON envelope every handler responds with.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the canonical error shape nested in a failed Response.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status,omitempty" example:"400"`
}

// SearchRequest is the wire shape POSTed to /api/v1/search. Its fields map
// 1:1 onto types.SearchRequest; kept as a distinct wire type so the JSON
// contract can evolve independently of the domain type's Go shape.
type SearchRequest struct {
	SearchMode       string `json:"search_mode"`
	From             string `json:"from"`
	To               string `json:"to"`
	DepDate          string `json:"dep_date,omitempty"`
	RetDate          string `json:"ret_date,omitempty"`
	Month            int    `json:"month,omitempty"`
	Year             int    `json:"year,omitempty"`
	TripDurationDays int    `json:"trip_duration,omitempty"`
}

// SearchResultResponse is the synchronous (non-streaming) search response
// body: the full aggregate plus its analysis.
type SearchResultResponse struct {
	Results  []FlightResult `json:"results"`
	Analysis AnalysisView   `json:"analysis"`
}

// FlightResult mirrors types.WorkerResult for the wire.
type FlightResult struct {
	PairID        int      `json:"pair_id"`
	DepDate       string   `json:"dep_date"`
	RetDate       string   `json:"ret_date"`
	Flights       []Flight `json:"flights"`
	CheapestPrice *string  `json:"cheapest_price,omitempty"`
	Failure       *Failure `json:"failure,omitempty"`
}

// Flight mirrors types.Flight for the wire.
type Flight struct {
	Airline  string `json:"airline"`
	Price    string `json:"price"`
	Duration string `json:"duration"`
	Route    string `json:"route"`
	Stops    *int   `json:"stops,omitempty"`
	Type     string `json:"type"`
}

// Failure mirrors types.Failure for the wire.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AnalysisView mirrors types.Analysis for the wire.
type AnalysisView struct {
	Cheapest        *CheapestOption `json:"cheapest,omitempty"`
	Trends          []Trend         `json:"trends,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Summary         string          `json:"summary"`
	IsPartial       bool            `json:"is_partial"`
}

// CheapestOption mirrors types.CheapestOption for the wire.
type CheapestOption struct {
	DepDate   string `json:"dep_date"`
	RetDate   string `json:"ret_date"`
	Price     string `json:"price"`
	Airline   string `json:"airline"`
	Reasoning string `json:"reasoning"`
}

// Trend mirrors types.Trend for the wire.
type Trend struct {
	Observation string `json:"observation"`
	Impact      string `json:"impact"`
}

// VersionInfo is the body of GET /version.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}
