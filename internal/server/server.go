package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/engine"
	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/hypervisor"
	"github.com/imamik/leasehold/internal/scheduler"
	"github.com/imamik/leasehold/internal/store"
)

// Engine is the lifecycle surface the admin API drives.
type Engine interface {
	Launch(ctx context.Context, req engine.AllocateRequest) (*engine.Allocation, error)
	DeleteResource(ctx context.Context, resourceID string) error
	StartResource(ctx context.Context, resourceID string) error
	StopResource(ctx context.Context, resourceID string) error
	CreateSnapshot(ctx context.Context, resourceID, description string) (*model.SnapshotRecord, error)
	ListSnapshots(ctx context.Context, resourceID string) ([]model.SnapshotRecord, error)
	DeleteSnapshot(ctx context.Context, resourceID, name string) error
	RollbackSnapshot(ctx context.Context, resourceID, name string) error
	AddIngressBinding(ctx context.Context, req engine.IngressRequest) (*model.IngressBinding, error)
	RemoveIngressBinding(ctx context.Context, hostname string) error
	ResourceStats(ctx context.Context, resourceID string) (hypervisor.ContainerStatus, error)
	PlatformStats(ctx context.Context) (store.Stats, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

// Store is the read side the admin API serves directly.
type Store interface {
	Ping(ctx context.Context) error
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	StatusHistory(ctx context.Context, resourceID string) ([]model.StatusEvent, error)
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error)
	ListBackupRecords(ctx context.Context, resourceID string) ([]model.BackupRecord, error)
}

// Jobs fires scheduled jobs on demand inside the running process.
type Jobs interface {
	RunNow(job string) (bool, error)
}

var (
	_ Engine = (*engine.Engine)(nil)
	_ Store  = (*store.Store)(nil)
	_ Jobs   = (*scheduler.Scheduler)(nil)
)

// Server serves the ops HTTP API.
type Server struct {
	cfg    config.ServerConfig
	engine Engine
	store  Store
	jobs   Jobs
	router *gin.Engine
}

// New builds the router. The job routes are only served when jobs is not nil.
func New(ctx context.Context, cfg config.ServerConfig, eng Engine, st Store, jobs Jobs) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, engine: eng, store: st, jobs: jobs, router: gin.New()}
	s.routes(log.FromContext(ctx).WithName("http"))
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled and then shuts down gracefully, giving
// in-flight requests up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	logger := log.FromContext(ctx)
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes(logger logr.Logger) {
	r := s.router
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", s.healthz)
	r.GET("/readyz", s.readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	if s.cfg.AdminToken == "" {
		logger.Info("admin token not configured, admin API disabled")
		return
	}

	v1 := r.Group("/v1", bearerAuth(s.cfg.AdminToken))
	{
		resources := v1.Group("/resources")
		{
			resources.POST("", s.createResource)
			resources.GET("/:id", s.getResource)
			resources.DELETE("/:id", s.deleteResource)
			resources.POST("/:id/start", s.startResource)
			resources.POST("/:id/stop", s.stopResource)
			resources.GET("/:id/history", s.resourceHistory)
			resources.GET("/:id/stats", s.resourceStats)
			resources.GET("/:id/backups", s.listBackups)

			resources.GET("/:id/snapshots", s.listSnapshots)
			resources.POST("/:id/snapshots", s.createSnapshot)
			resources.DELETE("/:id/snapshots/:name", s.deleteSnapshot)
			resources.POST("/:id/snapshots/:name/rollback", s.rollbackSnapshot)

			resources.POST("/:id/ingress", s.addIngress)
		}

		v1.DELETE("/ingress/:hostname", s.removeIngress)

		accounts := v1.Group("/accounts")
		{
			accounts.DELETE("/:id", s.deleteAccount)
			accounts.POST("/:id/credit", s.creditAccount)
			accounts.GET("/:id/ledger", s.accountLedger)
		}

		v1.GET("/stats", s.platformStats)

		if s.jobs != nil {
			v1.POST("/jobs/:job", s.runJob)
		}
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		log.FromContext(ctx).Error(err, "readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "datastore unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
