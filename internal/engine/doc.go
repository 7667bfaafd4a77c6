// Package engine orchestrates the lifecycle of leased containers.
//
// It owns the identifier allocator, the asynchronous provisioning pipeline,
// the deprovisioning workflows, the per-minute consumption sweep and the
// snapshot and backup rotation. External systems (hypervisor, VPN provider,
// ingress provider, remote shell, notification broker, manifest archive) are
// injected as interfaces so every workflow can be exercised against fakes.
//
// Allocation and provisioning each run on their own single-worker FIFO
// [Executor]: at most one allocation and one provisioning run are in flight at
// any time, system-wide. Request handlers enqueue and return immediately.
package engine
