package strategy

import (
	"fmt"
	"slices"
	"sync"
)

// New constructs a built-in strategy from cfg. Unknown kinds and invalid
// parameters return *ConfigError.
func New(cfg Config) (Strategy, error) {
	switch cfg.Kind {
	case KindTimeWindow:
		return built(NewTimeWindow(cfg))
	case KindTargetCluster:
		return built(NewTargetCluster(cfg))
	case KindNameSimilarity:
		return built(NewNameSimilarity(cfg))
	case KindSequenceCount:
		return built(NewSequenceCount(cfg))
	case KindSourceBurst:
		return built(NewSourceBurst(cfg))
	case "":
		return nil, configErrorf(cfg.DisplayName(), "kind", "required")
	default:
		return nil, configErrorf(cfg.DisplayName(), "kind", "unknown kind %q", cfg.Kind)
	}
}

// built drops typed nil pointers so a failed constructor never yields a
// non-nil Strategy interface.
func built[T Strategy](s T, err error) (Strategy, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Constructor builds a strategy from its configuration.
type Constructor func(cfg Config) (Strategy, error)

// Registry resolves kinds to constructors. It starts with the built-in
// kinds; Register adds custom ones.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ctors map[Kind]Constructor
}

// NewRegistry creates a registry holding the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[Kind]Constructor, len(BuiltinKinds))}
	for _, k := range BuiltinKinds {
		r.ctors[k] = New
	}
	return r
}

// Register adds a constructor for kind. Registering an existing kind is an
// error; kinds are never silently replaced.
func (r *Registry) Register(kind Kind, ctor Constructor) error {
	if kind == "" {
		return fmt.Errorf("register: empty kind")
	}
	if ctor == nil {
		return fmt.Errorf("register %s: nil constructor", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[kind]; exists {
		return fmt.Errorf("register %s: kind already registered", kind)
	}
	r.ctors[kind] = ctor
	return nil
}

// New constructs the strategy for cfg.Kind.
func (r *Registry) New(cfg Config) (Strategy, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		if cfg.Kind == "" {
			return nil, configErrorf(cfg.DisplayName(), "kind", "required")
		}
		return nil, configErrorf(cfg.DisplayName(), "kind", "unknown kind %q", cfg.Kind)
	}
	s, err := ctor(cfg)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, configErrorf(cfg.DisplayName(), "", "constructor returned nil strategy")
	}
	return s, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.ctors))
	for k := range r.ctors {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
