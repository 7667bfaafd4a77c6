package engine

import (
	"context"

	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/platform/ingress"
	"github.com/imamik/leasehold/internal/platform/notify"
	"github.com/imamik/leasehold/internal/platform/s3"
	"github.com/imamik/leasehold/internal/platform/ssh"
	"github.com/imamik/leasehold/internal/platform/vpn"
)

// Hypervisor is the subset of the hypervisor API the engine drives.
type Hypervisor interface {
	NextID(ctx context.Context) (int, error)
	CloneContainer(ctx context.Context, templateID, newID int, hostname string) (hypervisor.Task, error)
	WaitForTask(ctx context.Context, task hypervisor.Task) error
	Configure(ctx context.Context, vmid int, cfg hypervisor.ContainerConfig) error
	Start(ctx context.Context, vmid int) (hypervisor.Task, error)
	Stop(ctx context.Context, vmid int) (hypervisor.Task, error)
	Delete(ctx context.Context, vmid int) (hypervisor.Task, error)
	Status(ctx context.Context, vmid int) (*hypervisor.ContainerStatus, error)
	NetworkInterfaces(ctx context.Context, vmid int) ([]hypervisor.NetworkInterface, error)

	AddFirewallRule(ctx context.Context, vmid int, rule hypervisor.FirewallRule) error
	SetFirewallOptions(ctx context.Context, vmid int, opts hypervisor.FirewallOptions) error

	CreateSnapshot(ctx context.Context, vmid int, name, description string) (hypervisor.Task, error)
	ListSnapshots(ctx context.Context, vmid int) ([]hypervisor.Snapshot, error)
	DeleteSnapshot(ctx context.Context, vmid int, name string) (hypervisor.Task, error)
	RollbackSnapshot(ctx context.Context, vmid int, name string) (hypervisor.Task, error)

	CreateBackup(ctx context.Context, vmid int) (hypervisor.Task, error)
	ListBackups(ctx context.Context, vmid int) ([]hypervisor.Backup, error)
	DeleteBackup(ctx context.Context, volID string) error
}

// VPNProvider issues and revokes VPN client configurations.
type VPNProvider interface {
	CreateClient(ctx context.Context, name, address string) (string, error)
	DeleteClient(ctx context.Context, config string) error
}

// IngressProvider publishes hostnames through the tunnel.
type IngressProvider interface {
	AddIngress(ctx context.Context, hostname, targetURL string) error
	RemoveIngress(ctx context.Context, hostname string) error
	RemoveMultipleIngress(ctx context.Context, hostnames []string) error
}

// Shell runs one-shot commands on a container.
type Shell interface {
	Run(ctx context.Context, host string, creds ssh.Credentials, commands ...string) ([]string, error)
}

// Notifier publishes email jobs.
type Notifier interface {
	IdleReminder(ctx context.Context, to notify.Recipient, resourceName string, idleDays int) error
	BalanceDepleted(ctx context.Context, to notify.Recipient, stopped []string) error
}

// Archive stores backup rotation manifests.
type Archive interface {
	PutManifest(ctx context.Context, m s3.Manifest) error
}

var (
	_ Hypervisor      = (*hypervisor.Client)(nil)
	_ VPNProvider     = (*vpn.Client)(nil)
	_ IngressProvider = (*ingress.Client)(nil)
	_ Shell           = (*ssh.Client)(nil)
	_ Notifier        = (*notify.Publisher)(nil)
	_ Archive         = (*s3.Client)(nil)
)
