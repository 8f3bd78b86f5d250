// Package contextutil threads the selected container runtime through
// context.Context, the same pattern the teacher used for its per-request
// bot runtime, generalized to a single process-wide runtime chosen once at
// startup by internal/runner's registry.
package contextutil

import (
	"context"
	"fmt"

	"github.com/rivetr/rivetr/internal/runner"
)

type contextKey string

const (
	runtimeKey contextKey = "runtime"
)

// InitRuntimeDirect stores an already-constructed runtime in context.
// This is the only constructor: the control plane selects one runtime at
// startup (see cmd/server/main.go) rather than building one per request.
func InitRuntimeDirect(ctx context.Context, rt runner.Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey, rt)
}

// GetRuntime retrieves the runtime from context.
// Panics if runtime is not found (fail-fast pattern per ARCHITECTURE.md).
func GetRuntime(ctx context.Context) runner.Runtime {
	rt, ok := ctx.Value(runtimeKey).(runner.Runtime)
	if !ok || rt == nil {
		panic("runtime not found in context - did you forget to call InitRuntimeDirect?")
	}
	return rt
}

// GetRuntimeSafe retrieves the runtime from context, returning an error
// instead of panicking. Use this when you want to handle missing runtime
// gracefully.
func GetRuntimeSafe(ctx context.Context) (runner.Runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(runner.Runtime)
	if !ok || rt == nil {
		return nil, fmt.Errorf("runtime not found in context")
	}
	return rt, nil
}

// HasRuntime checks if a runtime is present in the context.
func HasRuntime(ctx context.Context) bool {
	rt, ok := ctx.Value(runtimeKey).(runner.Runtime)
	return ok && rt != nil
}
