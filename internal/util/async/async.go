package async

import (
	"context"
	"errors"
	"fmt"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel executes tasks concurrently and waits for all of them, even
// when some fail early. Failures are wrapped with the task name and joined
// in task order, so errors.Is still matches each underlying error.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "baseline", Func: dispatchBaseline},
//	    {Name: "logging", Func: dispatchLogging},
//	}
//	if err := RunParallel(ctx, tasks); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	type result struct {
		index int
		err   error
	}

	resultChan := make(chan result, len(tasks))

	for i, task := range tasks {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					resultChan <- result{index: i, err: fmt.Errorf("panic: %v", r)}
				}
			}()
			resultChan <- result{index: i, err: task.Func(ctx)}
		}()
	}

	errs := make([]error, len(tasks))
	for range len(tasks) {
		res := <-resultChan
		if res.err != nil {
			errs[res.index] = fmt.Errorf("%s: %w", tasks[res.index].Name, res.err)
		}
	}

	return errors.Join(errs...)
}
