package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rivetr/rivetr/internal/enum"
)

// Creator builds a Runtime from process configuration. Implementations
// register themselves in an init() function (see internal/runtime/docker,
// internal/runtime/podman, internal/runtime/noop).
type Creator func(ctx context.Context, config map[string]interface{}) (Runtime, error)

var (
	creators   = make(map[enum.RuntimeType]Creator)
	creatorsMu sync.RWMutex
)

// Register registers a Creator for a given runtime type. Safe to call from
// multiple init() functions.
func Register(runtimeType enum.RuntimeType, creator Creator) {
	creatorsMu.Lock()
	defer creatorsMu.Unlock()
	creators[runtimeType] = creator
}

// GetCreator returns the registered Creator for a runtime type.
func GetCreator(runtimeType enum.RuntimeType) (Creator, error) {
	creatorsMu.RLock()
	defer creatorsMu.RUnlock()
	creator, ok := creators[runtimeType]
	if !ok {
		return nil, fmt.Errorf("no runtime creator registered for type: %s", runtimeType)
	}
	return creator, nil
}
