package hypervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ContainerConfig holds the mutable container settings applied after a clone.
// Zero values are not sent.
type ContainerConfig struct {
	Tags        string
	Description string
	Cores       int
	MemoryMB    int
}

// ContainerStatus is the live state reported by the hypervisor.
type ContainerStatus struct {
	VMID    int     `json:"vmid"`
	Name    string  `json:"name"`
	Status  string  `json:"status"`
	Uptime  int64   `json:"uptime"`
	CPU     float64 `json:"cpu"`
	CPUs    float64 `json:"cpus"`
	Mem     int64   `json:"mem"`
	MaxMem  int64   `json:"maxmem"`
	Disk    int64   `json:"disk"`
	MaxDisk int64   `json:"maxdisk"`
	NetIn   int64   `json:"netin"`
	NetOut  int64   `json:"netout"`
}

// Running reports whether the container is running.
func (s ContainerStatus) Running() bool {
	return s.Status == "running"
}

// NetworkInterface is one interface reported by a running container.
type NetworkInterface struct {
	Name   string `json:"name"`
	HWAddr string `json:"hwaddr"`
	Inet   string `json:"inet"`
	Inet6  string `json:"inet6"`
}

// NextID returns the next free identifier suggested by the cluster.
func (c *Client) NextID(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/cluster/nextid", nil, &raw); err != nil {
		return 0, fmt.Errorf("get next id: %w", err)
	}

	// The id arrives as a JSON string on most versions and as a number on some.
	s := strings.Trim(string(raw), `"`)
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse next id %q: %w", s, err)
	}
	return id, nil
}

// CloneContainer starts a full clone of templateID into newID.
func (c *Client) CloneContainer(ctx context.Context, templateID, newID int, hostname string) (Task, error) {
	form := url.Values{}
	form.Set("newid", strconv.Itoa(newID))
	form.Set("hostname", hostname)
	form.Set("full", "1")

	var task Task
	if err := c.call(ctx, http.MethodPost, c.ctPath(templateID, "/clone"), form, &task); err != nil {
		return "", fmt.Errorf("clone template %d to %d: %w", templateID, newID, err)
	}
	return task, nil
}

// Configure applies cfg to a container.
func (c *Client) Configure(ctx context.Context, vmid int, cfg ContainerConfig) error {
	form := url.Values{}
	if cfg.Tags != "" {
		form.Set("tags", cfg.Tags)
	}
	if cfg.Description != "" {
		form.Set("description", cfg.Description)
	}
	if cfg.Cores > 0 {
		form.Set("cores", strconv.Itoa(cfg.Cores))
	}
	if cfg.MemoryMB > 0 {
		form.Set("memory", strconv.Itoa(cfg.MemoryMB))
	}
	if len(form) == 0 {
		return nil
	}

	if err := c.call(ctx, http.MethodPut, c.ctPath(vmid, "/config"), form, nil); err != nil {
		return fmt.Errorf("configure container %d: %w", vmid, err)
	}
	return nil
}

// Start boots a container.
func (c *Client) Start(ctx context.Context, vmid int) (Task, error) {
	var task Task
	if err := c.call(ctx, http.MethodPost, c.ctPath(vmid, "/status/start"), url.Values{}, &task); err != nil {
		return "", fmt.Errorf("start container %d: %w", vmid, err)
	}
	return task, nil
}

// Stop powers a container off immediately.
func (c *Client) Stop(ctx context.Context, vmid int) (Task, error) {
	var task Task
	if err := c.call(ctx, http.MethodPost, c.ctPath(vmid, "/status/stop"), url.Values{}, &task); err != nil {
		return "", fmt.Errorf("stop container %d: %w", vmid, err)
	}
	return task, nil
}

// Delete destroys a stopped container and purges it from backup jobs and firewall references.
func (c *Client) Delete(ctx context.Context, vmid int) (Task, error) {
	form := url.Values{}
	form.Set("purge", "1")
	form.Set("destroy-unreferenced-disks", "1")

	var task Task
	if err := c.call(ctx, http.MethodDelete, c.ctPath(vmid, ""), form, &task); err != nil {
		return "", fmt.Errorf("delete container %d: %w", vmid, err)
	}
	return task, nil
}

// Status returns the live status of a container.
func (c *Client) Status(ctx context.Context, vmid int) (*ContainerStatus, error) {
	var st ContainerStatus
	if err := c.call(ctx, http.MethodGet, c.ctPath(vmid, "/status/current"), nil, &st); err != nil {
		return nil, fmt.Errorf("get status of container %d: %w", vmid, err)
	}
	return &st, nil
}

// NetworkInterfaces lists the interfaces of a running container.
func (c *Client) NetworkInterfaces(ctx context.Context, vmid int) ([]NetworkInterface, error) {
	var ifaces []NetworkInterface
	if err := c.call(ctx, http.MethodGet, c.ctPath(vmid, "/interfaces"), nil, &ifaces); err != nil {
		return nil, fmt.Errorf("list interfaces of container %d: %w", vmid, err)
	}
	return ifaces, nil
}
