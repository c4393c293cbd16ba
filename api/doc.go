// Package api provides OpenAPI/Swagger documentation for the flight-search
// orchestrator API.
//
// # API Overview
//
// The service exposes a RESTful API for:
//   - Submitting a flight-search request and streaming its progressive
//     results over SSE
//   - Health monitoring and metrics
//   - Runtime configuration management (hot reload, history)
//
// # Authentication
//
// When server.api_keys is configured, endpoints require the X-API-Key
// header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/flightscout/main.go -o api --parseDependency --parseInternal
package api
