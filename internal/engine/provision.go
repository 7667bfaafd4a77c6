package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/platform/ssh"
	"github.com/imamik/leasehold/internal/util/labels"
	"github.com/imamik/leasehold/internal/util/naming"
	"github.com/imamik/leasehold/internal/util/retry"
)

// EnqueueProvision queues the provisioning run of an allocated resource and
// returns immediately.
func (e *Engine) EnqueueProvision(ctx context.Context, resourceID string) error {
	logger := log.FromContext(ctx).WithValues("resource", resourceID)
	return e.provisioning.Enqueue("provision "+resourceID, func(jobCtx context.Context) error {
		return e.Provision(log.IntoContext(jobCtx, logger), resourceID)
	})
}

// provisionRun carries state between the stages of one pipeline run.
type provisionRun struct {
	e        *Engine
	resource *model.Resource
	owner    *model.Account
	tmpl     config.Template
	hostname string
	cloneJob hypervisor.Task
	address  string
}

// Provision drives an allocated resource from clone to online. Fatal stages
// (clone, start, bootstrap) leave the resource in status error; already
// applied hypervisor state is not rolled back. When no address is obtained
// the resource goes online without the address-dependent stages.
func (e *Engine) Provision(ctx context.Context, resourceID string) error {
	logger := log.FromContext(ctx).WithValues("resource", resourceID)
	ctx = log.IntoContext(ctx, logger)

	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	if res.Status != model.StatusProvisioning {
		return fmt.Errorf("resource %s is %s: %w", resourceID, res.Status, ErrNotReady)
	}

	ctx, span := e.tracer.Start(ctx, "provision")
	defer span.End()

	run := &provisionRun{e: e, resource: res}
	err = e.prepareRun(ctx, run)
	var report stepReport
	if err == nil {
		report, err = stepRunner{pipeline: "provision", tracer: e.tracer}.run(ctx, run.steps())
	}

	// The run may have been canceled by shutdown; the final status is still written.
	finalCtx := context.WithoutCancel(ctx)
	if err != nil {
		provisionTotal.WithLabelValues("error").Inc()
		logger.Error(err, "provisioning failed")
		if serr := e.store.SetResourceStatus(finalCtx, resourceID, model.StatusError, truncate(err.Error(), 250)); serr != nil {
			return errors.Join(err, fmt.Errorf("mark resource failed: %w", serr))
		}
		return err
	}

	reason := "provisioned"
	outcome := "online"
	if run.address == "" {
		reason = "provisioned without network address"
		outcome = "degraded"
	} else if len(report.Degraded) > 0 {
		outcome = "degraded"
	}
	if err := e.store.SetResourceStatus(finalCtx, resourceID, model.StatusOnline, reason); err != nil {
		return fmt.Errorf("mark resource online: %w", err)
	}
	provisionTotal.WithLabelValues(outcome).Inc()
	logger.Info("resource online", "address", run.address, "degraded", report.Degraded, "skipped", report.Skipped)
	return nil
}

func (e *Engine) prepareRun(ctx context.Context, run *provisionRun) error {
	tmpl, ok := e.cfg.Templates[run.resource.Template]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTemplate, run.resource.Template)
	}
	owner, err := e.store.GetAccount(ctx, run.resource.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	run.tmpl = tmpl
	run.owner = owner
	run.hostname = naming.Hostname(owner.ID, owner.Name, run.resource.Template, run.resource.ID)
	return nil
}

func (run *provisionRun) steps() []step {
	hasAddress := func() bool { return run.address != "" }
	return []step{
		{name: "clone", fatal: true, run: run.clone},
		{name: "await-clone", fatal: true, run: run.awaitClone},
		{name: "tag", run: run.tag},
		{name: "start", fatal: true, run: run.start},
		{name: "await-address", run: run.awaitAddress},
		{name: "bootstrap", fatal: true, when: hasAddress, run: run.bootstrap},
		{name: "firewall", when: hasAddress, run: run.firewall},
		{name: "vpn", when: func() bool { return hasAddress() && run.e.vpn != nil }, run: run.issueVPN},
		{name: "panel-ingress", when: func() bool {
			return hasAddress() && run.e.ingress != nil && run.e.cfg.Ingress.BaseDomain != ""
		}, run: run.registerPanel},
	}
}

func (run *provisionRun) clone(ctx context.Context) error {
	task, err := run.e.hv.CloneContainer(ctx, run.tmpl.ID, run.resource.HypervisorID, run.hostname)
	if err != nil {
		return err
	}
	run.cloneJob = task
	return run.e.store.SetNetwork(ctx, run.resource.ID, "", run.hostname)
}

func (run *provisionRun) awaitClone(ctx context.Context) error {
	return run.e.waitTask(ctx, run.cloneJob, run.e.timeouts.Clone)
}

func (run *provisionRun) tag(ctx context.Context) error {
	capacity := run.resource.Capacity.Data()
	tags := labels.NewTagBuilder(run.owner.ID).
		WithTemplate(run.resource.Template).
		WithResource(naming.ShortID(run.resource.ID))
	return run.e.hv.Configure(ctx, run.resource.HypervisorID, hypervisor.ContainerConfig{
		Tags:        tags.String(),
		Description: fmt.Sprintf("%s (resource %s, owner %s)", run.resource.Name, run.resource.ID, run.owner.Email),
		Cores:       capacity.Cores,
		MemoryMB:    capacity.MemoryMB,
	})
}

func (run *provisionRun) start(ctx context.Context) error {
	task, err := run.e.hv.Start(ctx, run.resource.HypervisorID)
	if err != nil {
		return err
	}
	return run.e.waitTask(ctx, task, run.e.timeouts.Task)
}

func (run *provisionRun) awaitAddress(ctx context.Context) error {
	cfg := run.e.cfg.Pipeline
	addr, err := retry.Poll(ctx, cfg.AddressAttempts, cfg.AddressDelay, func(ctx context.Context) (string, bool, error) {
		ifaces, err := run.e.hv.NetworkInterfaces(ctx, run.resource.HypervisorID)
		if err != nil {
			return "", false, err
		}
		if ip := firstUsableAddress(ifaces); ip != "" {
			return ip, true, nil
		}
		return "", false, nil
	})
	if err != nil {
		return fmt.Errorf("no network address: %w", err)
	}
	run.address = addr
	return run.e.store.SetNetwork(ctx, run.resource.ID, addr, run.hostname)
}

// firstUsableAddress returns the first non-loopback IPv4 address, without its
// prefix length.
func firstUsableAddress(ifaces []hypervisor.NetworkInterface) string {
	for _, iface := range ifaces {
		if iface.Inet == "" {
			continue
		}
		raw, _, _ := strings.Cut(iface.Inet, "/")
		ip := net.ParseIP(raw)
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		return ip.String()
	}
	return ""
}

// bootstrapCommands enables password logins and creates the admin user. The
// root password is replaced last because the session itself authenticates
// with the template's root password.
func bootstrapCommands(adminUser, password string) []string {
	return []string{
		`sed -i -E 's/^#?PasswordAuthentication .*/PasswordAuthentication yes/' /etc/ssh/sshd_config && (systemctl restart sshd || systemctl restart ssh || service ssh restart)`,
		fmt.Sprintf(`id -u %[1]s >/dev/null 2>&1 || useradd -m -s /bin/bash %[1]s`, adminUser),
		fmt.Sprintf(`usermod -aG sudo %s`, adminUser),
		fmt.Sprintf(`echo '%s:%s' | chpasswd`, adminUser, password),
		fmt.Sprintf(`echo 'root:%s' | chpasswd`, password),
	}
}

func (run *provisionRun) bootstrap(ctx context.Context) error {
	cfg := run.e.cfg.Bootstrap
	if err := sleepCtx(ctx, run.e.cfg.Pipeline.SettleDelay); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, run.e.timeouts.Bootstrap)
	defer cancel()

	creds := ssh.Credentials{User: cfg.User, Password: cfg.Password}
	_, err := run.e.shell.Run(ctx, run.address, creds, bootstrapCommands(cfg.AdminUser, run.resource.RootPassword)...)
	return err
}

func (run *provisionRun) firewall(ctx context.Context) error {
	vmid := run.resource.HypervisorID
	var errs []error

	for _, port := range run.e.cfg.Hypervisor.ManagementPorts {
		errs = append(errs, run.e.hv.AddFirewallRule(ctx, vmid, hypervisor.FirewallRule{
			Direction: "out",
			Action:    "DROP",
			Proto:     "tcp",
			DPort:     strconv.Itoa(port),
			Comment:   "deny host management",
		}))
	}
	if gw := run.e.cfg.Hypervisor.Gateway; gw != "" {
		errs = append(errs, run.e.hv.AddFirewallRule(ctx, vmid, hypervisor.FirewallRule{
			Direction: "out",
			Action:    "DROP",
			Dest:      gw,
			Comment:   "deny gateway",
		}))
	}
	errs = append(errs, run.e.hv.SetFirewallOptions(ctx, vmid, hypervisor.FirewallOptions{
		Enable:    true,
		PolicyIn:  "ACCEPT",
		PolicyOut: "ACCEPT",
	}))
	return errors.Join(errs...)
}

func (run *provisionRun) issueVPN(ctx context.Context) error {
	cfg, err := run.e.vpn.CreateClient(ctx, run.hostname, run.address)
	if err != nil {
		return err
	}
	return run.e.store.SetVPNConfig(ctx, run.resource.ID, cfg)
}

func (run *provisionRun) registerPanel(ctx context.Context) error {
	host := naming.PanelSubdomain(run.resource.ID, run.e.cfg.Ingress.BaseDomain)
	target := fmt.Sprintf("https://%s:%d", run.address, run.e.cfg.Ingress.PanelPort)
	return run.e.ingress.AddIngress(ctx, host, target)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
