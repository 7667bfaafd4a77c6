package hypervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// currentSnapshot is the pseudo-entry the hypervisor lists for the live state.
const currentSnapshot = "current"

// Snapshot is a point-in-time container snapshot.
type Snapshot struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SnapTime    int64  `json:"snaptime"`
}

// CreatedAt returns the snapshot creation time.
func (s Snapshot) CreatedAt() time.Time {
	return time.Unix(s.SnapTime, 0).UTC()
}

// CreateSnapshot starts a snapshot of the container.
func (c *Client) CreateSnapshot(ctx context.Context, vmid int, name, description string) (Task, error) {
	form := url.Values{}
	form.Set("snapname", name)
	if description != "" {
		form.Set("description", description)
	}

	var task Task
	if err := c.call(ctx, http.MethodPost, c.ctPath(vmid, "/snapshot"), form, &task); err != nil {
		return "", fmt.Errorf("create snapshot %s of container %d: %w", name, vmid, err)
	}
	return task, nil
}

// ListSnapshots returns the container snapshots, excluding the live "current" entry.
func (c *Client) ListSnapshots(ctx context.Context, vmid int) ([]Snapshot, error) {
	var all []Snapshot
	if err := c.call(ctx, http.MethodGet, c.ctPath(vmid, "/snapshot"), nil, &all); err != nil {
		return nil, fmt.Errorf("list snapshots of container %d: %w", vmid, err)
	}

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		if s.Name == currentSnapshot {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// DeleteSnapshot starts deletion of a snapshot.
func (c *Client) DeleteSnapshot(ctx context.Context, vmid int, name string) (Task, error) {
	var task Task
	path := c.ctPath(vmid, "/snapshot/"+url.PathEscape(name))
	if err := c.call(ctx, http.MethodDelete, path, nil, &task); err != nil {
		return "", fmt.Errorf("delete snapshot %s of container %d: %w", name, vmid, err)
	}
	return task, nil
}

// RollbackSnapshot starts a rollback of the container to a snapshot.
func (c *Client) RollbackSnapshot(ctx context.Context, vmid int, name string) (Task, error) {
	var task Task
	path := c.ctPath(vmid, "/snapshot/"+url.PathEscape(name)+"/rollback")
	if err := c.call(ctx, http.MethodPost, path, url.Values{}, &task); err != nil {
		return "", fmt.Errorf("rollback container %d to %s: %w", vmid, name, err)
	}
	return task, nil
}
