package hypervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Backup is one backup archive stored on the backup storage.
type Backup struct {
	VolID string `json:"volid"`
	VMID  int    `json:"vmid"`
	CTime int64  `json:"ctime"`
	Size  int64  `json:"size"`
}

// CreatedAt returns the archive creation time.
func (b Backup) CreatedAt() time.Time {
	return time.Unix(b.CTime, 0).UTC()
}

// CreateBackup starts a stop-mode backup of the container. The container is
// stopped for the duration of the dump and restarted afterwards.
func (c *Client) CreateBackup(ctx context.Context, vmid int) (Task, error) {
	form := url.Values{}
	form.Set("vmid", strconv.Itoa(vmid))
	form.Set("storage", c.storage)
	form.Set("mode", "stop")
	form.Set("compress", "zstd")

	var task Task
	if err := c.call(ctx, http.MethodPost, c.nodePath("/vzdump"), form, &task); err != nil {
		return "", fmt.Errorf("create backup of container %d: %w", vmid, err)
	}
	return task, nil
}

// ListBackups returns the backup archives of a container.
func (c *Client) ListBackups(ctx context.Context, vmid int) ([]Backup, error) {
	form := url.Values{}
	form.Set("content", "backup")
	form.Set("vmid", strconv.Itoa(vmid))

	var backups []Backup
	path := c.nodePath("/storage/%s/content", url.PathEscape(c.storage))
	if err := c.call(ctx, http.MethodGet, path, form, &backups); err != nil {
		return nil, fmt.Errorf("list backups of container %d: %w", vmid, err)
	}
	return backups, nil
}

// DeleteBackup removes a backup archive from the backup storage.
func (c *Client) DeleteBackup(ctx context.Context, volID string) error {
	return c.DeleteVolume(ctx, c.storage, volID)
}

// DeleteVolume removes a volume from the given storage.
func (c *Client) DeleteVolume(ctx context.Context, storage, volID string) error {
	path := c.nodePath("/storage/%s/content/%s", url.PathEscape(storage), url.PathEscape(volID))

	var task Task
	if err := c.call(ctx, http.MethodDelete, path, nil, &task); err != nil {
		return fmt.Errorf("delete volume %s: %w", volID, err)
	}
	return c.WaitForTask(ctx, task)
}
