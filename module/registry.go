package module

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/vm"
)

// ---------------------------------------------------------------------------
// Registry: named modules with hot replace
// ---------------------------------------------------------------------------

// Registry holds the compiled modules of one Brain by name. Compiling a
// name that exists first retracts the previous definition.
type Registry struct {
	mu       sync.RWMutex
	brain    *graph.Brain
	compiler *Compiler
	modules  map[string]*Module
	log      graph.Logger

	// compileMu serializes sessions; the Compiler holds one module at a time.
	compileMu sync.Mutex
}

// BuildFunc renders a module's content through the compiler. Errors it
// returns, and errors recorded with Compiler.Errorf, fail the session.
type BuildFunc func(c *Compiler) error

// NewRegistry creates an empty registry over b.
func NewRegistry(b *graph.Brain, reg *vm.Registry) *Registry {
	return &Registry{
		brain:    b,
		compiler: NewCompiler(b, reg, NewVarManager()),
		modules:  make(map[string]*Module),
		log:      GetLogger(),
	}
}

// SetLogger replaces the logger of the registry and its compiler.
func (r *Registry) SetLogger(log graph.Logger) {
	r.log = log
	r.compiler.SetLogger(log)
}

// Compiler returns the registry's compiler.
func (r *Registry) Compiler() *Compiler { return r.compiler }

// Brain returns the registry's graph.
func (r *Registry) Brain() *graph.Brain { return r.brain }

// Get returns the module called name.
func (r *Registry) Get(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names returns the registered module names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Compile runs build in a new session for mod. On success mod replaces
// any module with the same name. On failure the partial module is
// retracted and the joined session errors are returned wrapped in
// ErrCompileFailed.
func (r *Registry) Compile(mod *Module, build BuildFunc) (*Session, error) {
	r.compileMu.Lock()
	defer r.compileMu.Unlock()

	if prev, ok := r.Get(mod.Name); ok {
		r.retract(prev)
	}

	s := newSession(mod)
	r.log.Infof("compile %s (session %s)", mod.Name, s.ID)

	r.compiler.Begin(mod)
	err := runBuild(r.compiler, build)
	s.Errors = append(s.Errors, r.compiler.End()...)
	if err != nil {
		s.Errors = append(s.Errors, err)
	}

	if len(s.Errors) > 0 {
		for _, e := range s.Errors {
			r.log.Errorf("compile %s: %v", mod.Name, e)
		}
		r.retract(mod)
		return s, fmt.Errorf("%w: %s: %w", ErrCompileFailed, mod.Name, errors.Join(s.Errors...))
	}

	r.mu.Lock()
	r.modules[mod.Name] = mod
	r.mu.Unlock()
	return s, nil
}

// runBuild calls build, converting a panic into an error.
func runBuild(c *Compiler, build BuildFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during compile: %v", p)
		}
	}()
	return build(c)
}

// Retract removes the module called name and everything only it owned.
func (r *Registry) Retract(name string) (RemoveStats, error) {
	r.compileMu.Lock()
	defer r.compileMu.Unlock()

	mod, ok := r.Get(name)
	if !ok {
		return RemoveStats{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return r.retract(mod), nil
}

// retract waits for running processors to leave the graph, then removes
// mod. compileMu must be held.
func (r *Registry) retract(mod *Module) RemoveStats {
	release := r.brain.Quiesce()
	defer release()

	stats := r.compiler.RemovePreviousDef(mod)
	r.mu.Lock()
	if r.modules[mod.Name] == mod {
		delete(r.modules, mod.Name)
	}
	r.mu.Unlock()
	r.log.Infof("retracted %s: %d deleted, %d kept", mod.Name, stats.Deleted, stats.Kept)
	return stats
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session records one compile attempt.
type Session struct {
	ID     uuid.UUID
	Module *Module
	Errors []error
}

func newSession(mod *Module) *Session {
	return &Session{ID: uuid.New(), Module: mod}
}

// Failed reports whether the session recorded any error.
func (s *Session) Failed() bool { return len(s.Errors) > 0 }

// Err returns the joined session errors, or nil.
func (s *Session) Err() error { return errors.Join(s.Errors...) }
