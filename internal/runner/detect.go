package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
)

// detectTimeout bounds how long auto-detection waits on a single probe
// (Docker ping, or podman --version) before moving on to the next
// candidate. Hardcoded rather than configurable (see DESIGN.md open
// question on auto-detect timeout).
const detectTimeout = 3 * time.Second

// Select builds the Runtime a process should use for the given
// configuration. "docker" and "podman" construct that runtime directly and
// fail startup if it cannot be reached; "auto" (the default) tries Docker,
// then Podman, then falls back to the no-op runtime registered under
// enum.RuntimeNone, matching original_source/src/runtime/mod.rs's
// `detect_runtime`.
func Select(ctx context.Context, runtimeType string, cfg map[string]interface{}) (Runtime, error) {
	switch enum.RuntimeType(runtimeType) {
	case enum.RuntimeDocker:
		creator, err := GetCreator(enum.RuntimeDocker)
		if err != nil {
			return nil, err
		}
		return creator(ctx, cfg)

	case enum.RuntimePodman:
		creator, err := GetCreator(enum.RuntimePodman)
		if err != nil {
			return nil, err
		}
		return creator(ctx, cfg)

	case enum.RuntimeAuto, "":
		return autoDetect(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown runtime type %q", runtimeType)
	}
}

func autoDetect(ctx context.Context, cfg map[string]interface{}) (Runtime, error) {
	if rt, ok := tryCreator(ctx, enum.RuntimeDocker, cfg); ok {
		return rt, nil
	}
	if rt, ok := tryCreator(ctx, enum.RuntimePodman, cfg); ok {
		return rt, nil
	}
	// Neither responded within the detect window: fall back to the no-op
	// runtime so the control plane still starts and serves read-only
	// endpoints (spec.md §4.1).
	noopCreator, err := GetCreator(enum.RuntimeNone)
	if err != nil {
		return nil, fmt.Errorf("no container runtime available and no-op fallback is not registered: %w", err)
	}
	return noopCreator(ctx, cfg)
}

func tryCreator(ctx context.Context, runtimeType enum.RuntimeType, cfg map[string]interface{}) (Runtime, bool) {
	creator, err := GetCreator(runtimeType)
	if err != nil {
		return nil, false
	}
	detectCtx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()
	rt, err := creator(detectCtx, cfg)
	if err != nil {
		return nil, false
	}
	return rt, true
}
