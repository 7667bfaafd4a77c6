package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/store"
	testutil "github.com/imamik/leasehold/internal/testing"
)

// testEngine bundles an engine with its mocks.
type testEngine struct {
	*Engine
	store    *store.Store
	hv       *MockHypervisor
	shell    *MockShell
	vpn      *MockVPN
	ingress  *MockIngress
	notifier *MockNotifier
	archive  *MockArchive
	clock    *fakeClock
}

// fakeClock advances one minute on every read so consecutive snapshot names
// never collide.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func testTimeouts() *config.Timeouts {
	return &config.Timeouts{
		Clone:     5 * time.Second,
		Task:      5 * time.Second,
		Backup:    5 * time.Second,
		Bootstrap: 5 * time.Second,
		Delete:    5 * time.Second,
		Sweep:     10 * time.Second,
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) *testEngine {
	t.Helper()
	if cfg == nil {
		cfg = testutil.MinimalConfig()
	}

	te := &testEngine{
		store:    testutil.NewStore(t),
		hv:       newMockHypervisor(),
		shell:    &MockShell{},
		vpn:      &MockVPN{},
		ingress:  &MockIngress{},
		notifier: &MockNotifier{},
		archive:  &MockArchive{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	e, err := New(cfg, Dependencies{
		Store:      te.store,
		Hypervisor: te.hv,
		Shell:      te.shell,
		VPN:        te.vpn,
		Ingress:    te.ingress,
		Notifier:   te.notifier,
		Archive:    te.archive,
		Timeouts:   testTimeouts(),
		Now:        te.clock.Now,
	})
	require.NoError(t, err)
	te.Engine = e
	return te
}

// started starts the engine queues and drains them when the test ends.
func (te *testEngine) started(t *testing.T) *testEngine {
	t.Helper()
	te.Start(testutil.TestContext(t))
	t.Cleanup(func() {
		ctx := testutil.TestContext(t)
		_ = te.Stop(ctx)
	})
	return te
}
