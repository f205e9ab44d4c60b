package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/llms"
)

var (
	// ErrDuplicateTool is returned when two tools share a name.
	ErrDuplicateTool = errors.New("agent: duplicate tool name")

	// ErrUnknownTool is returned when the model requests a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Tool is a function the model may call.
type Tool interface {
	Name() string
	Description() string

	// Parameters is the JSON schema of the arguments object.
	Parameters() *jsonschema.Schema

	// Call runs the tool with raw JSON arguments.
	Call(ctx context.Context, arguments string) (string, error)
}

// Registry holds tools by name, preserving registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry registers tools. Names must be unique.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool.
func (r *Registry) Register(t Tool) error {
	if r.tools == nil {
		r.tools = make(map[string]Tool)
	}
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the tools in the shape the model expects.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name, arguments string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownTool, name)
	}
	return t.Call(ctx, arguments)
}

// funcTool is a Tool whose arguments decode into In.
type funcTool[In any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	fn          func(context.Context, In) (string, error)
}

// NewTool builds a Tool from a typed function. The parameter schema is
// reflected from In's json and jsonschema struct tags.
func NewTool[In any](name, description string, fn func(context.Context, In) (string, error)) Tool {
	return &funcTool[In]{
		name:        name,
		description: description,
		schema:      reflectSchema(new(In)),
		fn:          fn,
	}
}

func (t *funcTool[In]) Name() string                   { return t.name }
func (t *funcTool[In]) Description() string            { return t.description }
func (t *funcTool[In]) Parameters() *jsonschema.Schema { return t.schema }

func (t *funcTool[In]) Call(ctx context.Context, arguments string) (string, error) {
	var in In
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &in); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		}
	}
	return t.fn(ctx, in)
}

func reflectSchema(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema
}
