package main

import (
	"context"
	"fmt"
	"sort"
)

// HandlerFunc fulfills one command. Handlers are opaque to the pipeline: they
// may call external providers and take arbitrary time; any timeout is their
// own responsibility.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// RegistryEntry maps a command name to its handler.
type RegistryEntry struct {
	Name      string
	AdminOnly bool
	Help      string
	Handler   HandlerFunc
}

// Registry is the static command table. Populated once during startup;
// Resolve is read-only and safe for concurrent lookups.
type Registry struct {
	entries map[string]*RegistryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*RegistryEntry)}
}

// Register adds a command. Duplicate registration is a programming error and
// panics during startup.
func (r *Registry) Register(name string, handler HandlerFunc, adminOnly bool, help string) {
	if _, ok := r.entries[name]; ok {
		panic(fmt.Sprintf("command %q registered twice", name))
	}
	r.entries[name] = &RegistryEntry{Name: name, AdminOnly: adminOnly, Help: help, Handler: handler}
}

// Resolve looks up a command by name.
func (r *Registry) Resolve(name string) (*RegistryEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Entries returns all registered commands sorted by name.
func (r *Registry) Entries() []*RegistryEntry {
	out := make([]*RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
