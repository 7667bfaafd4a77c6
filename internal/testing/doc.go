// Package testing provides shared builders, fixtures and helpers for unit tests.
//
// This package centralizes the setup that engine, server and store tests repeat:
//   - ConfigBuilder: fluent builder for test configurations
//   - NewStore: an in-memory sqlite datastore with all tables migrated
//   - SeedAccount / SeedResource: row fixtures
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithTemplate("small", 9000, 1440).
//	    WithRetention(3, 3).
//	    Build()
//
//	st := testing.NewStore(t)
//	acct := testing.SeedAccount(t, st, "1000")
package testing
