package plugin

import (
	"context"
	"slices"
)

// Tool is a function the agent may invoke. Call runs off the loop and must
// hand any loop-owned work to an Emitter.
type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON-schema object describing args.
	Parameters() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}

// FuncTool adapts a function to Tool.
type FuncTool struct {
	ToolName string
	Desc     string
	Params   map[string]any
	Fn       func(ctx context.Context, args map[string]any) (string, error)
}

func (t FuncTool) Name() string               { return t.ToolName }
func (t FuncTool) Description() string        { return t.Desc }
func (t FuncTool) Parameters() map[string]any { return t.Params }

func (t FuncTool) Call(ctx context.Context, args map[string]any) (string, error) {
	return t.Fn(ctx, args)
}

// ObjectSchema builds a JSON-schema object with the given properties, all of
// them required.
func ObjectSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	slices.Sort(required)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
