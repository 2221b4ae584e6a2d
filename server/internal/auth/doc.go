// Package auth enforces API-key authentication for driftlog-server.
//
// NewChecker(mode, header, key) returns a Checker shared by both transports:
// Checker.UnaryInterceptor() for the gRPC LogService and Checker.Middleware
// for the HTTP routes. When mode != "apikey" or key == "", every request
// passes through (local development with auth disabled).
package auth
