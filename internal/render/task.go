package render

import (
	"context"
	"sync"
)

// Result is the terminal outcome of a task.
type Result struct {
	Job Job
	Err error
}

// Task is the in-process handle on a running job. Progress delivers the
// latest percentage only; slow readers skip intermediate values.
type Task struct {
	progress chan float64
	done     chan struct{}
	once     sync.Once
	result   Result
}

func newTask() *Task {
	return &Task{
		progress: make(chan float64, 1),
		done:     make(chan struct{}),
	}
}

func (t *Task) Progress() <-chan float64 { return t.progress }

func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the outcome once Done is closed, the zero Result before.
func (t *Task) Result() Result {
	select {
	case <-t.done:
		return t.result
	default:
		return Result{}
	}
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Task) publish(percent float64) {
	select {
	case t.progress <- percent:
		return
	default:
	}
	// Replace the unread value.
	select {
	case <-t.progress:
	default:
	}
	select {
	case t.progress <- percent:
	default:
	}
}

func (t *Task) finish(r Result) {
	t.once.Do(func() {
		t.result = r
		close(t.done)
	})
}
