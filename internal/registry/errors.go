package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResourceNotFoundError means an id is neither live nor pending.
type ResourceNotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.ID)
}

// CycleError reports a reference cycle met while reconstructing pending
// records. Path starts and ends with the repeated id.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return "resource reference cycle: " + strings.Join(e.Path, " -> ")
}

// idCollisionError is logged when a generated id is already taken.
// It never leaves the package.
type idCollisionError struct {
	ID string
}

func (e *idCollisionError) Error() string {
	return fmt.Sprintf("generated id already in use: %s", e.ID)
}

// IsNotFound returns true if err is or wraps a ResourceNotFoundError.
func IsNotFound(err error) bool {
	var nf *ResourceNotFoundError
	return errors.As(err, &nf)
}

// IsCycle returns true if err is or wraps a CycleError.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

type resolveStackKey struct{}

// pushResolveStack records id as being reconstructed in ctx. Meeting an id
// already on the stack is a cycle.
func pushResolveStack(ctx context.Context, id string) (context.Context, error) {
	stack, _ := ctx.Value(resolveStackKey{}).([]string)
	for i := range stack {
		if stack[i] == id {
			cycle := append([]string(nil), stack[i:]...)
			cycle = append(cycle, id)
			return nil, &CycleError{Path: cycle}
		}
	}
	next := make([]string, 0, len(stack)+1)
	next = append(next, stack...)
	next = append(next, id)
	return context.WithValue(ctx, resolveStackKey{}, next), nil
}
