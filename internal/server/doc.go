// Package server exposes the operations HTTP surface of the control plane:
// liveness and readiness probes, Prometheus metrics and a thin admin API.
//
// The admin API is protected by a static bearer token and is only mounted
// when a token is configured. Handlers validate input and translate engine
// errors into status codes; lifecycle semantics live in the engine.
package server
