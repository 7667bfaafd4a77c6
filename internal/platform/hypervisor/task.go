package hypervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Task is the handle (UPID) of an asynchronous hypervisor operation.
type Task string

type taskStatus struct {
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus"`
}

// WaitForTask polls the task until it stops. A task that stops with an exit
// status other than OK yields a *TaskError. There is no upper bound on the
// wait apart from ctx.
func (c *Client) WaitForTask(ctx context.Context, task Task) error {
	if task == "" {
		return nil
	}
	logger := log.FromContext(ctx)
	path := c.nodePath("/tasks/%s/status", url.PathEscape(string(task)))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var st taskStatus
		if err := c.call(ctx, http.MethodGet, path, nil, &st); err != nil {
			return fmt.Errorf("poll task %s: %w", task, err)
		}
		if st.Status == "stopped" {
			if st.ExitStatus != "OK" {
				return &TaskError{Task: task, ExitStatus: st.ExitStatus}
			}
			return nil
		}
		logger.V(1).Info("waiting for hypervisor task", "task", string(task), "status", st.Status)

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for task %s: %w", task, ctx.Err())
		case <-ticker.C:
		}
	}
}
