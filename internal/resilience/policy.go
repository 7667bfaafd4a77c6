package resilience

import "time"

// Policy tunes one breaker.
type Policy struct {
	Name                  string
	Timeout               time.Duration
	ErrorThresholdPercent uint32
	VolumeThreshold       uint32
	RollingWindow         time.Duration
	CoolDown              time.Duration
	HalfOpenMaxCalls      uint32

	// Ignore reports errors that must not count as failures, such as a
	// not-found answer on a delete.
	Ignore func(error) bool
}

// HypervisorPolicy tolerates slow calls and needs more volume before tripping.
func HypervisorPolicy() Policy {
	return Policy{
		Name:                  "hypervisor",
		Timeout:               60 * time.Second,
		ErrorThresholdPercent: 50,
		VolumeThreshold:       10,
		RollingWindow:         60 * time.Second,
		CoolDown:              30 * time.Second,
		HalfOpenMaxCalls:      1,
	}
}

// ProviderPolicy is used for the VPN and ingress providers.
func ProviderPolicy(name string) Policy {
	return Policy{
		Name:                  name,
		Timeout:               15 * time.Second,
		ErrorThresholdPercent: 50,
		VolumeThreshold:       5,
		RollingWindow:         60 * time.Second,
		CoolDown:              30 * time.Second,
		HalfOpenMaxCalls:      1,
	}
}

// ShellPolicy bounds a single remote shell command.
func ShellPolicy() Policy {
	return Policy{
		Name:                  "shell",
		Timeout:               2 * time.Minute,
		ErrorThresholdPercent: 50,
		VolumeThreshold:       5,
		RollingWindow:         5 * time.Minute,
		CoolDown:              30 * time.Second,
		HalfOpenMaxCalls:      1,
	}
}

// NotificationPolicy tolerates a high failure rate; notifications are non-critical.
func NotificationPolicy() Policy {
	return Policy{
		Name:                  "notification",
		Timeout:               5 * time.Second,
		ErrorThresholdPercent: 90,
		VolumeThreshold:       5,
		RollingWindow:         60 * time.Second,
		CoolDown:              60 * time.Second,
		HalfOpenMaxCalls:      1,
	}
}
