// Package types provides the core domain and messaging types shared across
// the orchestrator: the search request, date-pair expansion, worker/session
// handles, page state, the browser action variant, flight rows, and the
// aggregate/analysis shapes emitted to subscribers.
package types
