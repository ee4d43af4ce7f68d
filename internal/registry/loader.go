package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"toolforge/internal/tool"
)

var handlerType = reflect.TypeOf(Handler(nil))

// Reload rebuilds the registry from scratch by scanning the direct entries
// of every given directory. Failures are recorded, never raised: a broken
// module must not stop the scan.
func (r *Registry) Reload(dirs ...string) {
	r.mu.Lock()
	r.usable = make(map[string]*LoadedTool)
	r.broken = make(map[string]string)
	r.mu.Unlock()

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn("cannot scan tool directory", zap.String("dir", dir), zap.Error(err))
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			r.LoadFile(filepath.Join(dir, entry.Name()))
		}
	}
	r.mu.RLock()
	usable, broken := len(r.usable), len(r.broken)
	r.mu.RUnlock()
	r.logger.Info("registry reloaded",
		zap.Int("usable", usable),
		zap.Int("broken", broken))
}

// LoadFile imports a single tool module in isolation and classifies it.
// Non-tool files (tests, hidden files, non-Go files) are ignored.
func (r *Registry) LoadFile(path string) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".go") ||
		strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, ".") ||
		strings.HasPrefix(base, "_") ||
		strings.HasSuffix(base, "~") {
		return
	}
	name := strings.TrimSuffix(base, ".go")

	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted between event and reload; drop any stale entries.
			r.evict(name)
			return
		}
		r.recordBroken(name, fmt.Sprintf("read: %v", err))
		return
	}

	handler, err := discoverHandler(string(src))
	if err != nil {
		r.recordBroken(name, err.Error())
		return
	}

	r.record(&LoadedTool{
		Name:        name,
		Description: r.descriptionFor(name),
		Path:        path,
		Invoke:      handler,
	})
}

// evict removes a name from both maps; used when the source file vanished.
func (r *Registry) evict(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.usable, name)
	delete(r.broken, name)
}

// discoverHandler interprets the source in a fresh interpreter and returns
// the module's single exported Handler. Zero or more than one exported
// Handler is an error; so is any import or evaluation failure.
func discoverHandler(src string) (Handler, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %v", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("import failed: %v", err)
	}

	var (
		handlers []Handler
		found    []string
	)
	for _, symbols := range i.Symbols("main") {
		for symName, value := range symbols {
			if !exported(symName) || value.Kind() != reflect.Func {
				continue
			}
			if !value.Type().AssignableTo(handlerType) {
				continue
			}
			fn, ok := value.Interface().(func(map[string]any) (string, error))
			if !ok {
				continue
			}
			handlers = append(handlers, Handler(fn))
			found = append(found, symName)
		}
	}

	switch len(handlers) {
	case 0:
		return nil, fmt.Errorf("no exported tool handler found (want exactly one func(map[string]any) (string, error))")
	case 1:
		return handlers[0], nil
	default:
		return nil, fmt.Errorf("ambiguous module: %d exported tool handlers found (%s)", len(handlers), strings.Join(found, ", "))
	}
}

func exported(name string) bool {
	ch, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(ch)
}

// descriptionFor reads the tool's metadata twin, when present.
func (r *Registry) descriptionFor(name string) string {
	if r.metadataDir == "" {
		return ""
	}
	meta, err := tool.LoadMetadata(filepath.Join(r.metadataDir, name+".json"))
	if err != nil {
		return ""
	}
	return meta.Description
}
