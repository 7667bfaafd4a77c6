package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ResourceStatus is the lifecycle state of a resource.
type ResourceStatus string

const (
	StatusProvisioning ResourceStatus = "provisioning"
	StatusOnline       ResourceStatus = "online"
	StatusStopped      ResourceStatus = "stopped"
	StatusError        ResourceStatus = "error"
)

var transitions = map[ResourceStatus][]ResourceStatus{
	StatusProvisioning: {StatusOnline, StatusError},
	StatusOnline:       {StatusStopped},
	StatusStopped:      {StatusOnline},
}

// Valid reports whether s is a known status.
func (s ResourceStatus) Valid() bool {
	switch s {
	case StatusProvisioning, StatusOnline, StatusStopped, StatusError:
		return true
	}
	return false
}

// CanTransitionTo reports whether a resource in status s may move to next.
// Writing the current status again is always allowed.
func (s ResourceStatus) CanTransitionTo(next ResourceStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when s cannot move to next.
func (s ResourceStatus) CheckTransition(next ResourceStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}
