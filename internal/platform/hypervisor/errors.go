package hypervisor

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// APIError is a non-2xx answer from the hypervisor.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hypervisor %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// TaskError reports an asynchronous task that finished with a non-OK exit status.
type TaskError struct {
	Task       Task
	ExitStatus string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.Task, e.ExitStatus)
}

func newAPIError(req *http.Request, resp *http.Response, env envelope) *APIError {
	msg := strings.TrimSpace(env.Message)
	if msg == "" && len(env.Errors) > 0 {
		keys := make([]string, 0, len(env.Errors))
		for k := range env.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+env.Errors[k])
		}
		msg = strings.Join(parts, "; ")
	}
	if msg == "" {
		// The node often carries the reason in the status line only.
		msg = strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	}
	return &APIError{
		Method:     req.Method,
		Path:       strings.TrimPrefix(req.URL.Path, apiPrefix),
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) {
		return nil, false
	}
	return apiErr, true
}

// IsNotFound checks if an error indicates the container, snapshot or volume does not exist.
func IsNotFound(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok {
		return false
	}
	if apiErr.StatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no such")
}

// IsNotRunning checks if an error indicates the container is already stopped.
func IsNotRunning(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "not running")
}
