// Package tool implements the Tool Registry & Dispatcher (C5): name to
// ToolDescriptor lookup, and partitioned parallel/serial execution of
// an assistant turn's approved tool calls, including the dedicated
// Task-tool fan-out lane (spec §4.5). Grounded on the teacher's
// internal/tool/registry.go and internal/tool/batch.go, with the
// Tool-interface-plus-inheritance shape collapsed into
// types.ToolDescriptor per spec §9.
package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aidev/agentcore/pkg/types"
)

// Registry maps tool name to ToolDescriptor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]types.ToolDescriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]types.ToolDescriptor)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(desc types.ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[desc.Name] = desc
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (types.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns every registered descriptor.
func (r *Registry) List() []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDescriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Filtered returns a new Registry containing only the tools allowed by
// allow (spec §4.9: a sub-agent's tool-allowlist filtering). A nil or
// ["*"]-only allow list keeps every tool except excludeNames, which
// always come out regardless of allow (used to exclude Task itself
// from a child's registry, spec §4.9 step 2).
func (r *Registry) Filtered(allow []string, excludeNames ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	excluded := make(map[string]bool, len(excludeNames))
	for _, n := range excludeNames {
		excluded[n] = true
	}

	allowAll := len(allow) == 0
	allowSet := make(map[string]bool, len(allow))
	for _, a := range allow {
		if a == "*" {
			allowAll = true
			continue
		}
		allowSet[a] = true
	}

	out := NewRegistry()
	for name, desc := range r.tools {
		if excluded[name] {
			continue
		}
		if allowAll || allowSet[name] {
			out.tools[name] = desc
		}
	}
	return out
}

// ArgSchemas exports a provider-neutral {name -> json schema} map for
// the LLM adapter to advertise as available tools (spec §6).
func (r *Registry) ArgSchemas() map[string][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]byte, len(r.tools))
	for name, d := range r.tools {
		out[name] = d.ArgSchema
	}
	return out
}

// errUnknownTool is returned by Dispatch when a ToolCall names a tool
// absent from the registry.
func errUnknownTool(name string) error {
	return fmt.Errorf("tool: unknown tool %q", name)
}
