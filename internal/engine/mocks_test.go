package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/platform/notify"
	"github.com/imamik/leasehold/internal/platform/s3"
	"github.com/imamik/leasehold/internal/platform/ssh"
)

// MockHypervisor is a mock implementation of Hypervisor for testing. Unless a
// function is configured, snapshots and backups are kept in memory so
// rotation can be observed end to end.
type MockHypervisor struct {
	mu sync.Mutex

	// Configurable responses
	NextIDFunc            func(ctx context.Context) (int, error)
	CloneContainerFunc    func(ctx context.Context, templateID, newID int, hostname string) (hypervisor.Task, error)
	WaitForTaskFunc       func(ctx context.Context, task hypervisor.Task) error
	ConfigureFunc         func(ctx context.Context, vmid int, cfg hypervisor.ContainerConfig) error
	StartFunc             func(ctx context.Context, vmid int) (hypervisor.Task, error)
	StopFunc              func(ctx context.Context, vmid int) (hypervisor.Task, error)
	DeleteFunc            func(ctx context.Context, vmid int) (hypervisor.Task, error)
	StatusFunc            func(ctx context.Context, vmid int) (*hypervisor.ContainerStatus, error)
	NetworkInterfacesFunc func(ctx context.Context, vmid int) ([]hypervisor.NetworkInterface, error)
	AddFirewallRuleFunc   func(ctx context.Context, vmid int, rule hypervisor.FirewallRule) error
	DeleteSnapshotFunc    func(ctx context.Context, vmid int, name string) (hypervisor.Task, error)
	CreateBackupFunc      func(ctx context.Context, vmid int) (hypervisor.Task, error)
	DeleteBackupFunc      func(ctx context.Context, volID string) error

	// In-memory state
	Snapshots map[int][]hypervisor.Snapshot
	Backups   map[int][]hypervisor.Backup
	clock     int64

	// Call tracking
	CloneCalls          []CloneCall
	ConfigureCalls      []hypervisor.ContainerConfig
	StartCalls          []int
	StopCalls           []int
	DeleteCalls         []int
	StatusCalls         []int
	FirewallRules       []hypervisor.FirewallRule
	FirewallOptions     []hypervisor.FirewallOptions
	SnapshotCreateCalls []string
	SnapshotDeleteCalls []string
	RollbackCalls       []string
	BackupCreateCalls   []int
	BackupDeleteCalls   []string
	Calls               []string
}

// CloneCall tracks arguments to CloneContainer.
type CloneCall struct {
	TemplateID int
	NewID      int
	Hostname   string
}

func newMockHypervisor() *MockHypervisor {
	return &MockHypervisor{
		Snapshots: make(map[int][]hypervisor.Snapshot),
		Backups:   make(map[int][]hypervisor.Backup),
		clock:     1_700_000_000,
	}
}

func (m *MockHypervisor) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MockHypervisor) tick() int64 {
	m.clock += 60
	return m.clock
}

func (m *MockHypervisor) NextID(ctx context.Context) (int, error) {
	m.mu.Lock()
	m.record("NextID")
	m.mu.Unlock()
	if m.NextIDFunc != nil {
		return m.NextIDFunc(ctx)
	}
	return 100, nil
}

func (m *MockHypervisor) CloneContainer(ctx context.Context, templateID, newID int, hostname string) (hypervisor.Task, error) {
	m.mu.Lock()
	m.record("CloneContainer")
	m.CloneCalls = append(m.CloneCalls, CloneCall{TemplateID: templateID, NewID: newID, Hostname: hostname})
	m.mu.Unlock()
	if m.CloneContainerFunc != nil {
		return m.CloneContainerFunc(ctx, templateID, newID, hostname)
	}
	return hypervisor.Task(fmt.Sprintf("UPID:clone:%d", newID)), nil
}

func (m *MockHypervisor) WaitForTask(ctx context.Context, task hypervisor.Task) error {
	m.mu.Lock()
	m.record("WaitForTask")
	m.mu.Unlock()
	if m.WaitForTaskFunc != nil {
		return m.WaitForTaskFunc(ctx, task)
	}
	return nil
}

func (m *MockHypervisor) Configure(ctx context.Context, vmid int, cfg hypervisor.ContainerConfig) error {
	m.mu.Lock()
	m.record("Configure")
	m.ConfigureCalls = append(m.ConfigureCalls, cfg)
	m.mu.Unlock()
	if m.ConfigureFunc != nil {
		return m.ConfigureFunc(ctx, vmid, cfg)
	}
	return nil
}

func (m *MockHypervisor) Start(ctx context.Context, vmid int) (hypervisor.Task, error) {
	m.mu.Lock()
	m.record("Start")
	m.StartCalls = append(m.StartCalls, vmid)
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, vmid)
	}
	return hypervisor.Task(fmt.Sprintf("UPID:start:%d", vmid)), nil
}

func (m *MockHypervisor) Stop(ctx context.Context, vmid int) (hypervisor.Task, error) {
	m.mu.Lock()
	m.record("Stop")
	m.StopCalls = append(m.StopCalls, vmid)
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc(ctx, vmid)
	}
	return hypervisor.Task(fmt.Sprintf("UPID:stop:%d", vmid)), nil
}

func (m *MockHypervisor) Delete(ctx context.Context, vmid int) (hypervisor.Task, error) {
	m.mu.Lock()
	m.record("Delete")
	m.DeleteCalls = append(m.DeleteCalls, vmid)
	m.mu.Unlock()
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, vmid)
	}
	return hypervisor.Task(fmt.Sprintf("UPID:delete:%d", vmid)), nil
}

func (m *MockHypervisor) Status(ctx context.Context, vmid int) (*hypervisor.ContainerStatus, error) {
	m.mu.Lock()
	m.record("Status")
	m.StatusCalls = append(m.StatusCalls, vmid)
	m.mu.Unlock()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, vmid)
	}
	return &hypervisor.ContainerStatus{VMID: vmid, Status: "running", CPUs: 1, MaxMem: 1 << 30}, nil
}

func (m *MockHypervisor) NetworkInterfaces(ctx context.Context, vmid int) ([]hypervisor.NetworkInterface, error) {
	m.mu.Lock()
	m.record("NetworkInterfaces")
	m.mu.Unlock()
	if m.NetworkInterfacesFunc != nil {
		return m.NetworkInterfacesFunc(ctx, vmid)
	}
	return []hypervisor.NetworkInterface{
		{Name: "lo", Inet: "127.0.0.1/8"},
		{Name: "eth0", Inet: "10.0.0.5/24"},
	}, nil
}

func (m *MockHypervisor) AddFirewallRule(ctx context.Context, vmid int, rule hypervisor.FirewallRule) error {
	m.mu.Lock()
	m.record("AddFirewallRule")
	m.FirewallRules = append(m.FirewallRules, rule)
	m.mu.Unlock()
	if m.AddFirewallRuleFunc != nil {
		return m.AddFirewallRuleFunc(ctx, vmid, rule)
	}
	return nil
}

func (m *MockHypervisor) SetFirewallOptions(_ context.Context, _ int, opts hypervisor.FirewallOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetFirewallOptions")
	m.FirewallOptions = append(m.FirewallOptions, opts)
	return nil
}

func (m *MockHypervisor) CreateSnapshot(_ context.Context, vmid int, name, description string) (hypervisor.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateSnapshot")
	m.SnapshotCreateCalls = append(m.SnapshotCreateCalls, name)
	m.Snapshots[vmid] = append(m.Snapshots[vmid], hypervisor.Snapshot{Name: name, Description: description, SnapTime: m.tick()})
	return hypervisor.Task("UPID:snapshot:" + name), nil
}

func (m *MockHypervisor) ListSnapshots(_ context.Context, vmid int) ([]hypervisor.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListSnapshots")
	return append([]hypervisor.Snapshot(nil), m.Snapshots[vmid]...), nil
}

func (m *MockHypervisor) DeleteSnapshot(ctx context.Context, vmid int, name string) (hypervisor.Task, error) {
	m.mu.Lock()
	m.record("DeleteSnapshot")
	m.SnapshotDeleteCalls = append(m.SnapshotDeleteCalls, name)
	m.mu.Unlock()
	if m.DeleteSnapshotFunc != nil {
		return m.DeleteSnapshotFunc(ctx, vmid, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Snapshots[vmid][:0]
	for _, s := range m.Snapshots[vmid] {
		if s.Name != name {
			kept = append(kept, s)
		}
	}
	m.Snapshots[vmid] = kept
	return hypervisor.Task("UPID:delsnapshot:" + name), nil
}

func (m *MockHypervisor) RollbackSnapshot(_ context.Context, _ int, name string) (hypervisor.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RollbackSnapshot")
	m.RollbackCalls = append(m.RollbackCalls, name)
	return hypervisor.Task("UPID:rollback:" + name), nil
}

func (m *MockHypervisor) CreateBackup(ctx context.Context, vmid int) (hypervisor.Task, error) {
	m.mu.Lock()
	m.record("CreateBackup")
	m.BackupCreateCalls = append(m.BackupCreateCalls, vmid)
	m.mu.Unlock()
	if m.CreateBackupFunc != nil {
		return m.CreateBackupFunc(ctx, vmid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.tick()
	m.Backups[vmid] = append(m.Backups[vmid], hypervisor.Backup{
		VolID: fmt.Sprintf("local:backup/vzdump-lxc-%d-%d.tar.zst", vmid, ts),
		VMID:  vmid,
		CTime: ts,
		Size:  1 << 20,
	})
	return hypervisor.Task(fmt.Sprintf("UPID:vzdump:%d", vmid)), nil
}

func (m *MockHypervisor) ListBackups(_ context.Context, vmid int) ([]hypervisor.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListBackups")
	return append([]hypervisor.Backup(nil), m.Backups[vmid]...), nil
}

func (m *MockHypervisor) DeleteBackup(ctx context.Context, volID string) error {
	m.mu.Lock()
	m.record("DeleteBackup")
	m.BackupDeleteCalls = append(m.BackupDeleteCalls, volID)
	m.mu.Unlock()
	if m.DeleteBackupFunc != nil {
		return m.DeleteBackupFunc(ctx, volID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for vmid, backups := range m.Backups {
		kept := backups[:0]
		for _, b := range backups {
			if b.VolID != volID {
				kept = append(kept, b)
			}
		}
		m.Backups[vmid] = kept
	}
	return nil
}

// seedBackups places n backups for vmid, oldest first.
func (m *MockHypervisor) seedBackups(vmid, n int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for range n {
		ts := m.tick()
		id := fmt.Sprintf("local:backup/vzdump-lxc-%d-%d.tar.zst", vmid, ts)
		m.Backups[vmid] = append(m.Backups[vmid], hypervisor.Backup{VolID: id, VMID: vmid, CTime: ts})
		ids = append(ids, id)
	}
	return ids
}

// MockVPN is a mock implementation of VPNProvider.
type MockVPN struct {
	mu sync.Mutex

	CreateClientFunc func(ctx context.Context, name, address string) (string, error)
	DeleteClientFunc func(ctx context.Context, config string) error

	CreateCalls []string
	DeleteCalls []string
}

func (m *MockVPN) CreateClient(ctx context.Context, name, address string) (string, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, address)
	m.mu.Unlock()
	if m.CreateClientFunc != nil {
		return m.CreateClientFunc(ctx, name, address)
	}
	return "[Interface]\nAddress = 10.8.0.2/32\n", nil
}

func (m *MockVPN) DeleteClient(ctx context.Context, config string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, config)
	m.mu.Unlock()
	if m.DeleteClientFunc != nil {
		return m.DeleteClientFunc(ctx, config)
	}
	return nil
}

// MockIngress is a mock implementation of IngressProvider.
type MockIngress struct {
	mu sync.Mutex

	AddIngressFunc            func(ctx context.Context, hostname, targetURL string) error
	RemoveMultipleIngressFunc func(ctx context.Context, hostnames []string) error

	AddCalls         []AddIngressCall
	RemoveCalls      []string
	RemoveBatchCalls [][]string
}

// AddIngressCall tracks arguments to AddIngress.
type AddIngressCall struct {
	Hostname  string
	TargetURL string
}

func (m *MockIngress) AddIngress(ctx context.Context, hostname, targetURL string) error {
	m.mu.Lock()
	m.AddCalls = append(m.AddCalls, AddIngressCall{Hostname: hostname, TargetURL: targetURL})
	m.mu.Unlock()
	if m.AddIngressFunc != nil {
		return m.AddIngressFunc(ctx, hostname, targetURL)
	}
	return nil
}

func (m *MockIngress) RemoveIngress(_ context.Context, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls = append(m.RemoveCalls, hostname)
	return nil
}

func (m *MockIngress) RemoveMultipleIngress(ctx context.Context, hostnames []string) error {
	m.mu.Lock()
	m.RemoveBatchCalls = append(m.RemoveBatchCalls, append([]string(nil), hostnames...))
	m.mu.Unlock()
	if m.RemoveMultipleIngressFunc != nil {
		return m.RemoveMultipleIngressFunc(ctx, hostnames)
	}
	return nil
}

// MockShell is a mock implementation of Shell.
type MockShell struct {
	mu sync.Mutex

	RunFunc func(ctx context.Context, host string, creds ssh.Credentials, commands ...string) ([]string, error)

	Hosts    []string
	Creds    []ssh.Credentials
	Commands [][]string
}

func (m *MockShell) Run(ctx context.Context, host string, creds ssh.Credentials, commands ...string) ([]string, error) {
	m.mu.Lock()
	m.Hosts = append(m.Hosts, host)
	m.Creds = append(m.Creds, creds)
	m.Commands = append(m.Commands, commands)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, host, creds, commands...)
	}
	return make([]string, len(commands)), nil
}

// MockNotifier is a mock implementation of Notifier.
type MockNotifier struct {
	mu sync.Mutex

	IdleReminderFunc func(ctx context.Context, to notify.Recipient, resourceName string, idleDays int) error

	IdleReminders []IdleReminderCall
	Depleted      []DepletedCall
}

// IdleReminderCall tracks arguments to IdleReminder.
type IdleReminderCall struct {
	To       notify.Recipient
	Resource string
	Days     int
}

// DepletedCall tracks arguments to BalanceDepleted.
type DepletedCall struct {
	To      notify.Recipient
	Stopped []string
}

func (m *MockNotifier) IdleReminder(ctx context.Context, to notify.Recipient, resourceName string, idleDays int) error {
	m.mu.Lock()
	m.IdleReminders = append(m.IdleReminders, IdleReminderCall{To: to, Resource: resourceName, Days: idleDays})
	m.mu.Unlock()
	if m.IdleReminderFunc != nil {
		return m.IdleReminderFunc(ctx, to, resourceName, idleDays)
	}
	return nil
}

func (m *MockNotifier) BalanceDepleted(_ context.Context, to notify.Recipient, stopped []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Depleted = append(m.Depleted, DepletedCall{To: to, Stopped: stopped})
	return nil
}

// MockArchive is a mock implementation of Archive.
type MockArchive struct {
	mu        sync.Mutex
	Manifests []s3.Manifest
}

func (m *MockArchive) PutManifest(_ context.Context, manifest s3.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Manifests = append(m.Manifests, manifest)
	return nil
}
