package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maintains named task functions, routers, and compiled sub-graphs
// so definition files can reference them by name.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]Task
	routers map[string]Router
	graphs  map[string]*Graph
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:   map[string]Task{},
		routers: map[string]Router{},
		graphs:  map[string]*Graph{},
	}
}

// RegisterTask installs a task function. Returns an error if the name is taken.
func (r *Registry) RegisterTask(name string, task Task) error {
	if name == "" {
		return fmt.Errorf("graph: task name is required")
	}
	if task == nil {
		return fmt.Errorf("graph: task function is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("graph: task %s already registered", name)
	}
	r.tasks[name] = task
	return nil
}

// MustRegisterTask panics if registration fails.
func (r *Registry) MustRegisterTask(name string, task Task) {
	if err := r.RegisterTask(name, task); err != nil {
		panic(err)
	}
}

// RegisterRouter installs a router function.
func (r *Registry) RegisterRouter(name string, router Router) error {
	if name == "" {
		return fmt.Errorf("graph: router name is required")
	}
	if router == nil {
		return fmt.Errorf("graph: router function is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routers[name]; exists {
		return fmt.Errorf("graph: router %s already registered", name)
	}
	r.routers[name] = router
	return nil
}

// MustRegisterRouter panics if registration fails.
func (r *Registry) MustRegisterRouter(name string, router Router) {
	if err := r.RegisterRouter(name, router); err != nil {
		panic(err)
	}
}

// RegisterGraph installs a compiled graph for embedding as a sub-graph node.
func (r *Registry) RegisterGraph(name string, g *Graph) error {
	if name == "" {
		return fmt.Errorf("graph: sub-graph name is required")
	}
	if g == nil {
		return fmt.Errorf("graph: compiled graph is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.graphs[name]; exists {
		return fmt.Errorf("graph: sub-graph %s already registered", name)
	}
	r.graphs[name] = g
	return nil
}

// Task resolves a task function by name.
func (r *Registry) Task(name string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("graph: unknown task %s", name)
	}
	return task, nil
}

// Router resolves a router function by name.
func (r *Registry) Router(name string) (Router, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	router, ok := r.routers[name]
	if !ok {
		return nil, fmt.Errorf("graph: unknown router %s", name)
	}
	return router, nil
}

// Graph resolves a compiled sub-graph by name.
func (r *Registry) Graph(name string) (*Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[name]
	if !ok {
		return nil, fmt.Errorf("graph: unknown sub-graph %s", name)
	}
	return g, nil
}

// TaskNames returns registered task names sorted for stable output.
func (r *Registry) TaskNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
