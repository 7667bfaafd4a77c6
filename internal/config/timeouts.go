package config

import "time"

// Timeouts bounds how long each hypervisor-facing phase may run.
type Timeouts struct {
	Clone     time.Duration // Clone request plus clone task completion
	Task      time.Duration // Generic hypervisor task wait (start, stop, snapshot)
	Backup    time.Duration // Backup task completion
	Bootstrap time.Duration // Remote shell bootstrap including connection retries
	Delete    time.Duration // Teardown of a single resource
	Sweep     time.Duration // One full consumption sweep
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - LEASEHOLD_TIMEOUT_CLONE (default: 10m)
//   - LEASEHOLD_TIMEOUT_TASK (default: 5m)
//   - LEASEHOLD_TIMEOUT_BACKUP (default: 30m)
//   - LEASEHOLD_TIMEOUT_BOOTSTRAP (default: 5m)
//   - LEASEHOLD_TIMEOUT_DELETE (default: 5m)
//   - LEASEHOLD_TIMEOUT_SWEEP (default: 50s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		Clone:     parseDuration("LEASEHOLD_TIMEOUT_CLONE", 10*time.Minute),
		Task:      parseDuration("LEASEHOLD_TIMEOUT_TASK", 5*time.Minute),
		Backup:    parseDuration("LEASEHOLD_TIMEOUT_BACKUP", 30*time.Minute),
		Bootstrap: parseDuration("LEASEHOLD_TIMEOUT_BOOTSTRAP", 5*time.Minute),
		Delete:    parseDuration("LEASEHOLD_TIMEOUT_DELETE", 5*time.Minute),
		Sweep:     parseDuration("LEASEHOLD_TIMEOUT_SWEEP", 50*time.Second),
	}
}
