package subsystem

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// State holds the resolved configuration, the shared context and the route inventory.
// Once frozen it is read-only and safe for concurrent use; the maps it returns must not be modified.
type State struct {
	name    string
	config  Values
	context Values
	routes  []string
}

// Name returns the application name.
func (s *State) Name() string {
	return s.name
}

// Config returns the resolved configuration.
func (s *State) Config() Values {
	return s.config
}

// Context returns the shared context.
func (s *State) Context() Values {
	return s.context
}

// Routes returns a copy of the registered route names in registration order.
func (s *State) Routes() []string {
	return append([]string(nil), s.routes...)
}

// GetConfig returns the configuration value at a dot-separated path like "http.addr".
func (s *State) GetConfig(path string) (any, bool) {
	var current any = s.config
	if path == "" {
		return current, true
	}

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Inspect returns a printable summary of the state.
// Context values are listed by key only since they usually hold clients and pools.
func (s *State) Inspect() Values {
	contextKeys := make([]any, 0, len(s.context))
	keys := make([]string, 0, len(s.context))
	for key := range s.context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		contextKeys = append(contextKeys, key)
	}

	routes := make([]any, 0, len(s.routes))
	for _, route := range s.routes {
		routes = append(routes, route)
	}

	return Values{
		"name":    s.name,
		"config":  DeepCopy(s.config),
		"context": contextKeys,
		"routes":  routes,
	}
}

// StateBuilder owns a State during bootstrap. It is discarded once Freeze was called.
type StateBuilder struct {
	state         *State
	configLoaded  bool
	contextLoaded bool
	frozen        bool
}

// NewStateBuilder creates a builder for an empty State.
func NewStateBuilder(name string) *StateBuilder {
	return &StateBuilder{
		state: &State{
			name:    name,
			config:  Values{},
			context: Values{},
		},
	}
}

// State returns the State under construction. Stage functions only read it.
func (b *StateBuilder) State() *State {
	return b.state
}

// SeedConfig merges values into the configuration before the config stages run.
func (b *StateBuilder) SeedConfig(values Values) error {
	if b.frozen {
		return ErrStateFrozen
	}

	b.state.config = MergeValues(b.state.config, values)

	return nil
}

// LoadConfig runs the config stages in order and merges each result into the configuration.
// Each stage sees the configuration produced by the stages before it.
func (b *StateBuilder) LoadConfig(ctx context.Context, stages []Invocable[*State, Values]) error {
	if b.frozen {
		return ErrStateFrozen
	}

	for _, stage := range stages {
		values, err := stage.Invoke(ctx, b.state)
		if err != nil {
			return fmt.Errorf("config stage %s: %w", stage.Meta(), err)
		}

		b.state.config = MergeValues(b.state.config, values)
	}

	b.configLoaded = true

	return nil
}

// LoadContext runs the context stages in order and merges each result into the shared context.
// LoadConfig must have completed first.
func (b *StateBuilder) LoadContext(ctx context.Context, stages []Invocable[*State, Values]) error {
	if b.frozen {
		return ErrStateFrozen
	}

	if !b.configLoaded {
		return ErrConfigNotLoaded
	}

	for _, stage := range stages {
		values, err := stage.Invoke(ctx, b.state)
		if err != nil {
			return fmt.Errorf("context stage %s: %w", stage.Meta(), err)
		}

		b.state.context = MergeValues(b.state.context, values)
	}

	b.contextLoaded = true

	return nil
}

// AddRoute appends a route name to the inventory.
func (b *StateBuilder) AddRoute(name string) error {
	if b.frozen {
		return ErrStateFrozen
	}

	b.state.routes = append(b.state.routes, name)

	return nil
}

// Freeze ends the bootstrap phase and returns the read-only State.
func (b *StateBuilder) Freeze() *State {
	b.frozen = true
	return b.state
}
