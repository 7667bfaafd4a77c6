// Package config defines the runtime configuration of the control plane.
//
// [Load] layers defaults, an optional YAML file and LEASEHOLD_* environment
// variables (a local .env file is honoured) into a validated [Config].
// Per-phase deadlines live separately in [Timeouts], loaded with [LoadTimeouts].
package config
