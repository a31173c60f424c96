// Package reqctx carries per-task identifiers through a context.
package reqctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type key int

const taskKey key = 0

// TaskContext identifies one unit of work
type TaskContext struct {
	TaskID    string
	URL       string
	StartTime time.Time
}

// WithTask attaches a fresh task id for url
func WithTask(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, taskKey, &TaskContext{
		TaskID:    uuid.NewString(),
		URL:       url,
		StartTime: time.Now(),
	})
}

// FromContext returns the task attached to ctx, or a placeholder
func FromContext(ctx context.Context) *TaskContext {
	if tc, ok := ctx.Value(taskKey).(*TaskContext); ok {
		return tc
	}
	return &TaskContext{TaskID: "unknown", StartTime: time.Now()}
}

// TaskID is shorthand for FromContext(ctx).TaskID
func TaskID(ctx context.Context) string {
	return FromContext(ctx).TaskID
}

// TaskError wraps an error with the task id
type TaskError struct {
	TaskID string
	Err    error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("[%s] %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError wraps err with the task id from ctx
func NewTaskError(ctx context.Context, err error) error {
	return &TaskError{TaskID: TaskID(ctx), Err: err}
}
