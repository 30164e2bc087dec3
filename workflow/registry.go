package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type (
	// Registry maps workflow class names to their bodies. Callers register
	// every class before any run; the orchestrator resolves the stored class
	// name through the registry when a workflow is (re-)entered and fails the
	// workflow when the name is unknown.
	Registry struct {
		mu      sync.RWMutex
		entries map[string]*Registration
	}

	// Registration is a resolved registry entry.
	Registration struct {
		// Name is the class name the entry was registered under.
		Name string
		// Body is the workflow body driven by the orchestrator.
		Body BodyFunc

		schema *jsonschema.Schema
	}

	// RegisterOption customizes a registration.
	RegisterOption func(*registerOptions)

	registerOptions struct {
		argsSchema []byte
	}
)

// WithArgsSchema attaches a JSON Schema describing the workflow's args array.
// The orchestrator validates the stored args against it before instantiating
// the body; a violation fails the workflow.
func WithArgsSchema(schema []byte) RegisterOption {
	return func(o *registerOptions) { o.argsSchema = schema }
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Registration)}
}

// Register binds a class name to a workflow body. Empty names, nil bodies and
// duplicate names are rejected. When WithArgsSchema is given, the schema is
// compiled eagerly so malformed schemas surface at registration time rather
// than on the first run.
func (r *Registry) Register(name string, fn BodyFunc, opts ...RegisterOption) error {
	if name == "" {
		return errors.New("workflow class name is required")
	}
	if fn == nil {
		return errors.New("workflow body is required")
	}
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	reg := &Registration{Name: name, Body: fn}
	if len(o.argsSchema) > 0 {
		schema, err := compileSchema(o.argsSchema)
		if err != nil {
			return fmt.Errorf("compile args schema for %q: %w", name, err)
		}
		reg.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("workflow class %q already registered", name)
	}
	r.entries[name] = reg
	return nil
}

// Resolve returns the registration for the given class name. Returns an error
// wrapping ErrClassNotFound when the name is unknown.
func (r *Registry) Resolve(name string) (*Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrClassNotFound, name)
	}
	return reg, nil
}

// ValidateArgs checks args against the registration's schema, if any. Args are
// canonicalized through JSON before validation so the schema sees the same
// value shapes the body does.
func (reg *Registration) ValidateArgs(args []any) error {
	if reg.schema == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	if err := reg.schema.Validate(doc); err != nil {
		return fmt.Errorf("args do not match schema for %q: %w", reg.Name, err)
	}
	return nil
}

func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("schema.json")
}
