package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imamik/leasehold/internal/engine"
	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/scheduler"
	"github.com/imamik/leasehold/internal/store"
)

type createResourceRequest struct {
	OwnerID  string `json:"ownerId" binding:"required"`
	Name     string `json:"name" binding:"required,max=64"`
	Template string `json:"template" binding:"required"`
}

type snapshotRequest struct {
	Description string `json:"description" binding:"max=255"`
}

type ingressRequest struct {
	Hostname string `json:"hostname" binding:"required,max=253"`
	Port     int    `json:"port" binding:"required,min=1,max=65535"`
	Paid     bool   `json:"paid"`
}

type creditRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// errorStatus maps engine and store errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, scheduler.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTemplate):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, engine.ErrAccountBanned):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, engine.ErrNotReady),
		errors.Is(err, engine.ErrNoAddress),
		errors.Is(err, store.ErrIngressQuota):
		return http.StatusConflict
	case errors.Is(err, engine.ErrQueueStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes an error response. Internal errors are recorded on the context
// for the request logger and are not echoed to the client.
func fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) createResource(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	alloc, err := s.engine.Launch(c.Request.Context(), engine.AllocateRequest{
		OwnerID:  req.OwnerID,
		Name:     req.Name,
		Template: req.Template,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, alloc)
}

func (s *Server) getResource(c *gin.Context) {
	res, err := s.store.GetResource(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) deleteResource(c *gin.Context) {
	if err := s.engine.DeleteResource(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) startResource(c *gin.Context) {
	if err := s.engine.StartResource(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": model.StatusOnline})
}

func (s *Server) stopResource(c *gin.Context) {
	if err := s.engine.StopResource(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": model.StatusStopped})
}

func (s *Server) resourceHistory(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.store.GetResource(ctx, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	events, err := s.store.StatusHistory(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) listBackups(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.store.GetResource(ctx, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	backups, err := s.store.ListBackupRecords(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, backups)
}

// runJob fires a scheduled job through the scheduler, so a run already in
// progress is never doubled.
func (s *Server) runJob(c *gin.Context) {
	job := c.Param("job")
	ran, err := s.jobs.RunNow(job)
	if err != nil {
		fail(c, err)
		return
	}
	if !ran {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("job %s is already running", job)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "ran": true})
}

func (s *Server) resourceStats(c *gin.Context) {
	st, err := s.engine.ResourceStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) listSnapshots(c *gin.Context) {
	snaps, err := s.engine.ListSnapshots(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}

func (s *Server) createSnapshot(c *gin.Context) {
	var req snapshotRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	rec, err := s.engine.CreateSnapshot(c.Request.Context(), c.Param("id"), req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) deleteSnapshot(c *gin.Context) {
	if err := s.engine.DeleteSnapshot(c.Request.Context(), c.Param("id"), c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) rollbackSnapshot(c *gin.Context) {
	if err := s.engine.RollbackSnapshot(c.Request.Context(), c.Param("id"), c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": c.Param("name")})
}

func (s *Server) addIngress(c *gin.Context) {
	var req ingressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := s.engine.AddIngressBinding(c.Request.Context(), engine.IngressRequest{
		ResourceID: c.Param("id"),
		Hostname:   req.Hostname,
		Port:       req.Port,
		Paid:       req.Paid,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) removeIngress(c *gin.Context) {
	if err := s.engine.RemoveIngressBinding(c.Request.Context(), c.Param("hostname")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteAccount(c *gin.Context) {
	if err := s.engine.DeleteAccount(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) creditAccount(c *gin.Context) {
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	if req.Description == "" {
		req.Description = "top-up"
	}
	balance, err := s.store.Credit(c.Request.Context(), c.Param("id"), req.Amount, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) accountLedger(c *gin.Context) {
	entries, err := s.store.LedgerEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) platformStats(c *gin.Context) {
	st, err := s.engine.PlatformStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
