package persona

import (
	"encoding/json"
	"errors"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/scholar/internal/models"
)

// Tool names exposed to structured models.
const (
	ToolRenderChart     = "render_chart"
	ToolCreateChecklist = "create_checklist"
)

// ErrUnknownTool is returned when a model calls a tool no persona declares.
var ErrUnknownTool = errors.New("unknown tool")

// ChartSeries is one named data series of a chart.
type ChartSeries struct {
	Name   string    `json:"name" jsonschema:"description=Series label such as a subject or exam name"`
	Values []float64 `json:"values" jsonschema:"minItems=1,description=One value per chart label"`
}

// ChartArgs are the arguments of the render_chart tool. The dashboard draws
// the chart; the model only describes it.
type ChartArgs struct {
	Kind   string        `json:"kind" jsonschema:"enum=bar,enum=line,enum=pie,enum=radar,description=Chart type"`
	Title  string        `json:"title" jsonschema:"minLength=1"`
	Labels []string      `json:"labels" jsonschema:"minItems=1,description=Category axis labels"`
	Series []ChartSeries `json:"series" jsonschema:"minItems=1"`
	YLabel string        `json:"y_label,omitempty" jsonschema:"description=Value axis label"`
}

// ChecklistItem is a single study task.
type ChecklistItem struct {
	Task    string `json:"task" jsonschema:"minLength=1"`
	Subject string `json:"subject,omitempty"`
	Due     string `json:"due,omitempty" jsonschema:"description=Due date in YYYY-MM-DD form"`
	Minutes int    `json:"minutes,omitempty" jsonschema:"minimum=0,description=Estimated effort in minutes"`
}

// ChecklistArgs are the arguments of the create_checklist tool.
type ChecklistArgs struct {
	Title string          `json:"title" jsonschema:"minLength=1"`
	Items []ChecklistItem `json:"items" jsonschema:"minItems=1"`
}

// toolSpec is a declared tool and its compiled argument schema.
type toolSpec struct {
	decl   models.ToolDeclaration
	schema *jsonschema.Schema
}

// newToolSpec reflects args into a JSON Schema, compiles it, and builds the
// declaration handed to providers.
func newToolSpec(name, description string, args any) (toolSpec, error) {
	r := &invopop.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	raw, err := json.Marshal(r.Reflect(args))
	if err != nil {
		return toolSpec{}, fmt.Errorf("encode %s schema: %w", name, err)
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return toolSpec{}, fmt.Errorf("compile %s schema: %w", name, err)
	}

	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return toolSpec{}, fmt.Errorf("decode %s schema: %w", name, err)
	}
	delete(params, "$schema")
	delete(params, "$id")

	return toolSpec{
		decl: models.ToolDeclaration{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
		schema: compiled,
	}, nil
}

func builtinTools() (map[string]toolSpec, error) {
	defs := []struct {
		name        string
		description string
		args        any
	}{
		{
			name:        ToolRenderChart,
			description: "Render a chart of the student's scores on the dashboard.",
			args:        &ChartArgs{},
		},
		{
			name:        ToolCreateChecklist,
			description: "Create a study checklist the student can tick off.",
			args:        &ChecklistArgs{},
		},
	}

	tools := make(map[string]toolSpec, len(defs))
	for _, def := range defs {
		spec, err := newToolSpec(def.name, def.description, def.args)
		if err != nil {
			return nil, err
		}
		tools[def.name] = spec
	}
	return tools, nil
}

// ValidateToolCall checks model-produced arguments against the tool's schema.
func (r *Registry) ValidateToolCall(name string, args json.RawMessage) error {
	spec, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	var payload any
	if len(args) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(args, &payload); err != nil {
		return fmt.Errorf("decode %s arguments: %w", name, err)
	}
	if err := spec.schema.Validate(payload); err != nil {
		return fmt.Errorf("%s arguments invalid: %w", name, err)
	}
	return nil
}
