// Package registry is the dynamic tool catalogue. Tool modules are single Go
// source files interpreted in isolation; a file is usable when it exports
// exactly one symbol satisfying Handler, and broken otherwise. A name is in
// the usable map or the broken map, never both.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"toolforge/internal/logging"
)

// Handler is the registration contract a tool module must export exactly
// once: registry discovery looks for a single exported value of this type.
type Handler func(args map[string]any) (string, error)

// LoadedTool is an executable handle to a usable tool module.
type LoadedTool struct {
	Name        string
	Description string
	Path        string
	Invoke      Handler
}

// Registry maps tool names to executable handles or failure detail. It is
// written by the workflow engine and by the watcher's reload consumer, so
// all map access goes through one mutex.
type Registry struct {
	mu          sync.RWMutex
	usable      map[string]*LoadedTool
	broken      map[string]string
	metadataDir string
	logger      *zap.Logger
}

// New creates an empty registry. metadataDir, when non-empty, is consulted
// for tool descriptions (the metadata twin written alongside each source
// file); it may be empty in tests.
func New(metadataDir string, logger *zap.Logger) *Registry {
	return &Registry{
		usable:      make(map[string]*LoadedTool),
		broken:      make(map[string]string),
		metadataDir: metadataDir,
		logger:      logging.OrNop(logger),
	}
}

// record stores a usable tool, evicting any broken entry of the same name.
func (r *Registry) record(t *LoadedTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.broken, t.Name)
	r.usable[t.Name] = t
	r.logger.Debug("tool loaded", zap.String("tool", t.Name), zap.String("path", t.Path))
}

// recordBroken stores a failure, evicting any usable entry of the same name.
func (r *Registry) recordBroken(name, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.usable, name)
	r.broken[name] = detail
	r.logger.Warn("tool broken", zap.String("tool", name), zap.String("detail", detail))
}

// MarkBroken records a runtime failure against a tool so subsequent review
// prompts can see it. The tool is evicted from the usable map.
func (r *Registry) MarkBroken(name, detail string) {
	r.recordBroken(name, detail)
}

// Has reports whether name is currently usable.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.usable[name]
	return ok
}

// Get returns the usable handle for name, or nil.
func (r *Registry) Get(name string) *LoadedTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usable[name]
}

// FailureFor returns the recorded failure detail for name, or "".
func (r *Registry) FailureFor(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broken[name]
}

// UsableNames returns the sorted names of usable tools.
func (r *Registry) UsableNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.usable))
	for name := range r.usable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Broken returns a copy of the broken map.
func (r *Registry) Broken() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.broken))
	for name, detail := range r.broken {
		out[name] = detail
	}
	return out
}

// Describe renders the catalogue for the planner prompt: every usable tool
// with its contract, then every broken tool with its failure.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	divider := strings.Repeat("=", 50) + "\n"

	names := make([]string, 0, len(r.usable))
	for name := range r.usable {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(divider)
		fmt.Fprintf(&b, "Tool_Name: %s\n", name)
		fmt.Fprintf(&b, "Description: %s\n", r.usable[name].Description)
		b.WriteString(divider + "\n")
	}

	if len(r.broken) > 0 {
		b.WriteString("The following tools have errors that need to be fixed:\n")
		broken := make([]string, 0, len(r.broken))
		for name := range r.broken {
			broken = append(broken, name)
		}
		sort.Strings(broken)
		for _, name := range broken {
			b.WriteString(divider)
			fmt.Fprintf(&b, "Tool_Name: %s\n", name)
			fmt.Fprintf(&b, "Error: %s\n", r.broken[name])
			b.WriteString(divider + "\n")
		}
	}
	return b.String()
}
