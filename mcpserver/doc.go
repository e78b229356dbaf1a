// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The server exposes the challenge engine as MCP tools using the
// mark3labs/mcp-go library: run_tests, profile_solution, analyze_complexity
// and list_languages. Every tool answers with a JSON text result; failed
// test cases and engine errors set IsError on the result.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration. The HTTP transport also serves Prometheus
// metrics at server.metrics_path.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, engine, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
