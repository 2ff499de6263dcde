package tools

import (
	"fmt"
	"sort"
	"sync"

	"Bindr/pkg/engine/api"
)

// Registry maps capabilities to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[api.Capability]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[api.Capability]Executor)}
}

// Register adds an executor. Registering a second executor for the same
// capability is an error.
func (r *Registry) Register(ex Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cap := ex.Capability()
	if _, exists := r.executors[cap]; exists {
		return fmt.Errorf("executor already registered: %s", cap)
	}
	r.executors[cap] = ex
	return nil
}

// MustRegister adds an executor, panicking on conflict.
func (r *Registry) MustRegister(ex Executor) {
	if err := r.Register(ex); err != nil {
		panic(err)
	}
}

// Get retrieves the executor for a capability.
func (r *Registry) Get(cap api.Capability) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ex, ok := r.executors[cap]
	return ex, ok
}

// Schemas returns the model-facing tool schemas for the given capability
// set, in a stable order.
func (r *Registry) Schemas(caps []api.Capability) []api.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.ToolSchema, 0, len(caps))
	for _, cap := range caps {
		if ex, ok := r.executors[cap]; ok {
			out = append(out, ex.Schema())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRegistry wires executors for every capability against the given
// workspace root.
func DefaultRegistry(workspaceRoot string) *Registry {
	r := NewRegistry()
	r.MustRegister(NewReadFileExecutor(workspaceRoot))
	r.MustRegister(NewCreateFileExecutor(workspaceRoot))
	r.MustRegister(NewModifyFileExecutor(workspaceRoot))
	r.MustRegister(NewCreateDirectoryExecutor(workspaceRoot))
	r.MustRegister(NewExecuteCommandExecutor(workspaceRoot))
	r.MustRegister(NewWriteDocFileExecutor(workspaceRoot))
	return r
}
