package server

import (
	"context"
	"sync"

	"github.com/imamik/leasehold/internal/engine"
	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/store"
)

// MockEngine is a function-field implementation of Engine. Unset functions
// succeed with zero values.
type MockEngine struct {
	mu sync.Mutex

	LaunchFunc           func(ctx context.Context, req engine.AllocateRequest) (*engine.Allocation, error)
	DeleteResourceFunc   func(ctx context.Context, id string) error
	StartResourceFunc    func(ctx context.Context, id string) error
	StopResourceFunc     func(ctx context.Context, id string) error
	CreateSnapshotFunc   func(ctx context.Context, id, description string) (*model.SnapshotRecord, error)
	ListSnapshotsFunc    func(ctx context.Context, id string) ([]model.SnapshotRecord, error)
	AddIngressFunc       func(ctx context.Context, req engine.IngressRequest) (*model.IngressBinding, error)
	ResourceStatsFunc    func(ctx context.Context, id string) (hypervisor.ContainerStatus, error)
	PlatformStatsFunc    func(ctx context.Context) (store.Stats, error)
	DeleteAccountFunc    func(ctx context.Context, id string) error
	RemoveIngressFunc    func(ctx context.Context, hostname string) error
	RollbackSnapshotFunc func(ctx context.Context, id, name string) error

	Calls []string
}

func (m *MockEngine) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

func (m *MockEngine) Launch(ctx context.Context, req engine.AllocateRequest) (*engine.Allocation, error) {
	m.record("Launch")
	if m.LaunchFunc != nil {
		return m.LaunchFunc(ctx, req)
	}
	return &engine.Allocation{}, nil
}

func (m *MockEngine) DeleteResource(ctx context.Context, id string) error {
	m.record("DeleteResource:" + id)
	if m.DeleteResourceFunc != nil {
		return m.DeleteResourceFunc(ctx, id)
	}
	return nil
}

func (m *MockEngine) StartResource(ctx context.Context, id string) error {
	m.record("StartResource:" + id)
	if m.StartResourceFunc != nil {
		return m.StartResourceFunc(ctx, id)
	}
	return nil
}

func (m *MockEngine) StopResource(ctx context.Context, id string) error {
	m.record("StopResource:" + id)
	if m.StopResourceFunc != nil {
		return m.StopResourceFunc(ctx, id)
	}
	return nil
}

func (m *MockEngine) CreateSnapshot(ctx context.Context, id, description string) (*model.SnapshotRecord, error) {
	m.record("CreateSnapshot:" + id)
	if m.CreateSnapshotFunc != nil {
		return m.CreateSnapshotFunc(ctx, id, description)
	}
	return &model.SnapshotRecord{ResourceID: id}, nil
}

func (m *MockEngine) ListSnapshots(ctx context.Context, id string) ([]model.SnapshotRecord, error) {
	m.record("ListSnapshots:" + id)
	if m.ListSnapshotsFunc != nil {
		return m.ListSnapshotsFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockEngine) DeleteSnapshot(_ context.Context, id, name string) error {
	m.record("DeleteSnapshot:" + id + "/" + name)
	return nil
}

func (m *MockEngine) RollbackSnapshot(ctx context.Context, id, name string) error {
	m.record("RollbackSnapshot:" + id + "/" + name)
	if m.RollbackSnapshotFunc != nil {
		return m.RollbackSnapshotFunc(ctx, id, name)
	}
	return nil
}

func (m *MockEngine) AddIngressBinding(ctx context.Context, req engine.IngressRequest) (*model.IngressBinding, error) {
	m.record("AddIngressBinding:" + req.ResourceID)
	if m.AddIngressFunc != nil {
		return m.AddIngressFunc(ctx, req)
	}
	return &model.IngressBinding{ResourceID: req.ResourceID, Hostname: req.Hostname, Port: req.Port, Paid: req.Paid}, nil
}

func (m *MockEngine) RemoveIngressBinding(ctx context.Context, hostname string) error {
	m.record("RemoveIngressBinding:" + hostname)
	if m.RemoveIngressFunc != nil {
		return m.RemoveIngressFunc(ctx, hostname)
	}
	return nil
}

func (m *MockEngine) ResourceStats(ctx context.Context, id string) (hypervisor.ContainerStatus, error) {
	m.record("ResourceStats:" + id)
	if m.ResourceStatsFunc != nil {
		return m.ResourceStatsFunc(ctx, id)
	}
	return hypervisor.ContainerStatus{}, nil
}

func (m *MockEngine) PlatformStats(ctx context.Context) (store.Stats, error) {
	m.record("PlatformStats")
	if m.PlatformStatsFunc != nil {
		return m.PlatformStatsFunc(ctx)
	}
	return store.Stats{}, nil
}

func (m *MockEngine) DeleteAccount(ctx context.Context, id string) error {
	m.record("DeleteAccount:" + id)
	if m.DeleteAccountFunc != nil {
		return m.DeleteAccountFunc(ctx, id)
	}
	return nil
}

// MockJobs is a function-field implementation of Jobs. Unset RunNowFunc
// reports a completed run.
type MockJobs struct {
	mu sync.Mutex

	RunNowFunc func(job string) (bool, error)

	Calls []string
}

func (m *MockJobs) RunNow(job string) (bool, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, job)
	m.mu.Unlock()
	if m.RunNowFunc != nil {
		return m.RunNowFunc(job)
	}
	return true, nil
}
