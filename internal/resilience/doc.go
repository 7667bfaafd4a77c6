// Package resilience wraps calls to external collaborators with an execution
// timeout and a circuit breaker.
//
// Each collaborator gets its own [Breaker] built from a [Policy]. A breaker
// starts closed; once the rolling window holds at least VolumeThreshold calls
// and the failure share reaches ErrorThresholdPercent it opens and rejects
// calls with [ErrOpen] until CoolDown elapses. It then admits up to
// HalfOpenMaxCalls trial calls before closing again or re-opening.
package resilience
