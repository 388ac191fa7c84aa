package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/user/contentcrew/pkg/llm"
)

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds registered tools in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// AsLLMTools converts registered tools to the LLM provider format.
func (r *Registry) AsLLMTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, t := range r.All() {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Execute runs the named tool. Unknown tools and tool errors are returned as
// errors; the caller decides how to surface them to the model.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Execute(ctx, args)
}

// Schema reflects the parameter struct v into an inline JSON schema.
func Schema(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("marshal schema for %T: %v", v, err))
	}
	return b
}

// Decode decodes model-produced arguments into out. Decoding is weak so that
// "3" fills an int and a lone string fills a []string.
func Decode(args json.RawMessage, out any) error {
	raw := map[string]any{}
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &raw); err != nil {
			return fmt.Errorf("parse args: %w", err)
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// Func adapts a typed function into a Tool. The parameter schema is reflected
// from A and arguments are decoded with Decode.
type Func[A any] struct {
	name        string
	description string
	schema      json.RawMessage
	fn          func(ctx context.Context, args A) (string, error)
}

// New creates a Func tool.
func New[A any](name, description string, fn func(ctx context.Context, args A) (string, error)) *Func[A] {
	var zero A
	return &Func[A]{
		name:        name,
		description: description,
		schema:      Schema(zero),
		fn:          fn,
	}
}

func (f *Func[A]) Name() string                { return f.name }
func (f *Func[A]) Description() string         { return f.description }
func (f *Func[A]) Parameters() json.RawMessage { return f.schema }

func (f *Func[A]) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a A
	if err := Decode(args, &a); err != nil {
		return "", err
	}
	return f.fn(ctx, a)
}
