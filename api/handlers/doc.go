// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers implements the HTTP request handlers for the flight-search
orchestrator's API surface.

# Core types

  - SearchHandler   — accepts a search request and streams progressive
    results over SSE (or returns the final aggregate synchronously)
  - HealthHandler   — service health checks (/health, /healthz, /ready)
  - Response        — the unified JSON envelope (success + data + error + timestamp)
  - ErrorInfo       — structured error info: code, message, retryable
  - ResponseWriter  — wraps http.ResponseWriter to capture the status code
  - HealthCheck     — pluggable health check interface (e.g. Redis)

# Capabilities

  - Unified response helpers: WriteSuccess / WriteError / WriteJSON
  - Request validation: DecodeJSONBody (1 MB limit, strict mode), ValidateContentType
  - ErrorCode -> HTTP status mapping
  - SSE streaming: SearchHandler.HandleSearchStream emits text/event-stream frames
    mirroring internal/events.Event as they're produced by the orchestrator
  - Extensible health checks via RegisterCheck
*/
package handlers
