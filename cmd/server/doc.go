// Package main is the entry point for the challengebox MCP server.
//
// The server exposes the challenge engine over the Model Context Protocol so
// that an assistant can run a challenge's test cases, profile a solution and
// estimate its complexity. Solutions run in the same sandboxes the
// challenge CLI uses. The server supports both stdio and HTTP transports;
// over HTTP it also serves Prometheus metrics.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
