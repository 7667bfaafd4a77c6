package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/platform/ssh"
	testutil "github.com/imamik/leasehold/internal/testing"
	"github.com/imamik/leasehold/internal/util/naming"
)

func allocateFor(t *testing.T, te *testEngine, owner *model.Account) *Allocation {
	t.Helper()
	alloc, err := te.Allocate(testutil.TestContext(t), AllocateRequest{OwnerID: owner.ID, Name: "web", Template: "small"})
	require.NoError(t, err)
	return alloc
}

func statusReasons(t *testing.T, te *testEngine, resourceID string) []string {
	t.Helper()
	events, err := te.store.StatusHistory(testutil.TestContext(t), resourceID)
	require.NoError(t, err)
	reasons := make([]string, len(events))
	for i, ev := range events {
		reasons[i] = string(ev.To) + ":" + ev.Reason
	}
	return reasons
}

func TestProvision_HappyPath(t *testing.T) {
	te := newTestEngine(t, nil).started(t)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	alloc := allocateFor(t, te, owner)

	require.NoError(t, te.Provision(ctx, alloc.ResourceID))

	res, err := te.store.GetResource(ctx, alloc.ResourceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, res.Status)
	assert.Equal(t, "10.0.0.5", res.IPAddress)
	assert.Equal(t, naming.Hostname(owner.ID, owner.Name, "small", res.ID), res.Hostname)
	assert.Contains(t, res.VPNConfig, "[Interface]")
	assert.Equal(t, []string{"provisioning:created", "online:provisioned"}, statusReasons(t, te, res.ID))

	t.Run("clones the template under the allocated id", func(t *testing.T) {
		require.Len(t, te.hv.CloneCalls, 1)
		assert.Equal(t, CloneCall{TemplateID: 9000, NewID: alloc.HypervisorID, Hostname: res.Hostname}, te.hv.CloneCalls[0])
	})

	t.Run("tags the container with its owner", func(t *testing.T) {
		require.Len(t, te.hv.ConfigureCalls, 1)
		assert.Contains(t, te.hv.ConfigureCalls[0].Tags, owner.ID)
		assert.Equal(t, 1024, te.hv.ConfigureCalls[0].MemoryMB)
	})

	t.Run("bootstraps with template credentials and rotates root last", func(t *testing.T) {
		require.Len(t, te.shell.Commands, 1)
		assert.Equal(t, "10.0.0.5", te.shell.Hosts[0])
		assert.Equal(t, ssh.Credentials{User: "root", Password: "template-pass"}, te.shell.Creds[0])

		cmds := te.shell.Commands[0]
		require.Len(t, cmds, 5)
		assert.Contains(t, cmds[0], "PasswordAuthentication yes")
		assert.Contains(t, cmds[1], "useradd -m -s /bin/bash admin")
		assert.Contains(t, cmds[3], "admin:"+alloc.Credential)
		assert.Equal(t, "echo 'root:"+alloc.Credential+"' | chpasswd", cmds[len(cmds)-1])
	})

	t.Run("isolates the container from host management", func(t *testing.T) {
		require.Len(t, te.hv.FirewallRules, 4)
		var ports []string
		for _, r := range te.hv.FirewallRules[:3] {
			assert.Equal(t, "out", r.Direction)
			assert.Equal(t, "DROP", r.Action)
			ports = append(ports, r.DPort)
		}
		assert.Equal(t, []string{"8006", "3128", "111"}, ports)
		assert.Equal(t, "10.0.0.1", te.hv.FirewallRules[3].Dest)
		assert.Equal(t, []hypervisor.FirewallOptions{{Enable: true, PolicyIn: "ACCEPT", PolicyOut: "ACCEPT"}}, te.hv.FirewallOptions)
	})

	t.Run("publishes the management panel", func(t *testing.T) {
		require.Len(t, te.ingress.AddCalls, 1)
		assert.Equal(t, AddIngressCall{
			Hostname:  naming.PanelSubdomain(res.ID, "example.test"),
			TargetURL: "https://10.0.0.5:8443",
		}, te.ingress.AddCalls[0])
	})
}

func TestProvision_CloneFailureMarksError(t *testing.T) {
	te := newTestEngine(t, nil).started(t)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	alloc := allocateFor(t, te, owner)
	te.hv.CloneContainerFunc = func(context.Context, int, int, string) (hypervisor.Task, error) {
		return "", errors.New("storage full")
	}

	err := te.Provision(ctx, alloc.ResourceID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clone step failed")

	res, err := te.store.GetResource(ctx, alloc.ResourceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, res.Status)
	assert.Empty(t, te.hv.StartCalls)
	assert.Empty(t, te.shell.Commands)

	reasons := statusReasons(t, te, res.ID)
	require.Len(t, reasons, 2)
	assert.True(t, strings.HasPrefix(reasons[1], "error:clone step failed"), reasons[1])
}

func TestProvision_BootstrapFailureMarksError(t *testing.T) {
	te := newTestEngine(t, nil).started(t)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	alloc := allocateFor(t, te, owner)
	te.shell.RunFunc = func(context.Context, string, ssh.Credentials, ...string) ([]string, error) {
		return nil, errors.New("auth failed")
	}

	require.Error(t, te.Provision(ctx, alloc.ResourceID))

	res, err := te.store.GetResource(ctx, alloc.ResourceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, res.Status)
	assert.Empty(t, te.hv.FirewallRules)
	assert.Empty(t, te.vpn.CreateCalls)
}

func TestProvision_NoAddressGoesOnlineDegraded(t *testing.T) {
	cfg := testutil.NewConfigBuilder().WithAddressAttempts(2).Build()
	te := newTestEngine(t, cfg).started(t)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	alloc := allocateFor(t, te, owner)
	te.hv.NetworkInterfacesFunc = func(context.Context, int) ([]hypervisor.NetworkInterface, error) {
		return []hypervisor.NetworkInterface{{Name: "lo", Inet: "127.0.0.1/8"}}, nil
	}

	require.NoError(t, te.Provision(ctx, alloc.ResourceID))

	res, err := te.store.GetResource(ctx, alloc.ResourceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, res.Status)
	assert.Empty(t, res.IPAddress)
	assert.Equal(t, "online:provisioned without network address", statusReasons(t, te, res.ID)[1])

	// Address-dependent stages are skipped.
	assert.Empty(t, te.shell.Commands)
	assert.Empty(t, te.hv.FirewallRules)
	assert.Empty(t, te.vpn.CreateCalls)
	assert.Empty(t, te.ingress.AddCalls)
}

func TestProvision_BestEffortFailuresStillGoOnline(t *testing.T) {
	te := newTestEngine(t, nil).started(t)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	alloc := allocateFor(t, te, owner)
	te.hv.ConfigureFunc = func(context.Context, int, hypervisor.ContainerConfig) error { return errors.New("tag rejected") }
	te.hv.AddFirewallRuleFunc = func(context.Context, int, hypervisor.FirewallRule) error { return errors.New("firewall busy") }
	te.vpn.CreateClientFunc = func(context.Context, string, string) (string, error) { return "", errors.New("vpn down") }
	te.ingress.AddIngressFunc = func(context.Context, string, string) error { return errors.New("dns down") }

	require.NoError(t, te.Provision(ctx, alloc.ResourceID))

	res, err := te.store.GetResource(ctx, alloc.ResourceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, res.Status)
	assert.Equal(t, "10.0.0.5", res.IPAddress)
	assert.Empty(t, res.VPNConfig)
	// Every rule is still attempted.
	assert.Len(t, te.hv.FirewallRules, 4)
}

func TestProvision_RequiresProvisioningStatus(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	res := testutil.SeedResource(t, te.store, owner, model.StatusOnline, 200)

	err := te.Provision(ctx, res.ID)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, te.hv.CloneCalls)
}

func TestProvision_OptionalCollaboratorsAbsent(t *testing.T) {
	st := testutil.NewStore(t)
	hv := newMockHypervisor()
	shell := &MockShell{}
	e, err := New(testutil.MinimalConfig(), Dependencies{Store: st, Hypervisor: hv, Shell: shell, Timeouts: testTimeouts()})
	require.NoError(t, err)

	ctx := testutil.TestContext(t)
	e.Start(ctx)
	defer func() { _ = e.Stop(ctx) }()

	owner := testutil.SeedAccount(t, st, "10")
	alloc, err := e.Allocate(ctx, AllocateRequest{OwnerID: owner.ID, Name: "web", Template: "small"})
	require.NoError(t, err)
	require.NoError(t, e.Provision(ctx, alloc.ResourceID))

	res, err := st.GetResource(ctx, alloc.ResourceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, res.Status)
	assert.Empty(t, res.VPNConfig)
}

func TestRecoverInterrupted(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := testutil.TestContext(t)
	owner := testutil.SeedAccount(t, te.store, "10")
	stuck := testutil.SeedResource(t, te.store, owner, model.StatusProvisioning, 200)
	online := testutil.SeedResource(t, te.store, owner, model.StatusOnline, 201)

	n, err := te.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := te.store.GetResource(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)

	got, err = te.store.GetResource(ctx, online.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, got.Status)
}

func TestFirstUsableAddress(t *testing.T) {
	tests := []struct {
		name   string
		ifaces []hypervisor.NetworkInterface
		want   string
	}{
		{"empty", nil, ""},
		{"loopback only", []hypervisor.NetworkInterface{{Name: "lo", Inet: "127.0.0.1/8"}}, ""},
		{"strips prefix", []hypervisor.NetworkInterface{{Name: "eth0", Inet: "192.168.1.20/24"}}, "192.168.1.20"},
		{"skips interfaces without ipv4", []hypervisor.NetworkInterface{
			{Name: "eth0", Inet6: "fe80::1/64"},
			{Name: "eth1", Inet: "10.1.2.3/16"},
		}, "10.1.2.3"},
		{"skips unspecified", []hypervisor.NetworkInterface{{Name: "eth0", Inet: "0.0.0.0/0"}}, ""},
		{"skips garbage", []hypervisor.NetworkInterface{{Name: "eth0", Inet: "not-an-ip"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstUsableAddress(tt.ifaces))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "Größe", truncate("Größe überschritten", 5))
	assert.Equal(t, "節点", truncate("節点が応答しません", 2))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("ü", 300), 250)))
}
