// Package hypervisor is a typed adapter for the Proxmox-style REST API that
// hosts the leased containers.
//
// All calls go through a [resilience.Breaker]. Operations that the hypervisor
// runs asynchronously return a [Task] handle, awaited with [Client.WaitForTask].
// Errors returned by the API are [*APIError] values and can be classified with
// [IsNotFound] and [IsNotRunning].
package hypervisor
