package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunAll executes every task with at most limit running at once and waits for
// all of them. A limit below 1 runs tasks one at a time. Failures are wrapped
// with the task name and joined; nil is returned when every task succeeded.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "resource 1", Func: rotate(r1)},
//	    {Name: "resource 2", Func: rotate(r2)},
//	}
//	if err := RunAll(ctx, 2, tasks); err != nil {
//	    log.Error(err, "rotation finished with failures")
//	}
func RunAll(ctx context.Context, limit int, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
