package providers

import (
	"strings"

	"google.golang.org/genai"

	"github.com/haasonsaas/scholar/internal/models"
)

// ToGeminiTools wraps the declarations in a single Gemini tool. Declarations
// without a name are skipped.
func ToGeminiTools(tools []models.ToolDeclaration) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  ToGeminiSchema(tool.Parameters),
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ToGeminiSchema maps a decoded JSON Schema onto genai.Schema. Gemini only
// understands an OpenAPI subset, so $schema, $defs, additionalProperties and
// similar keywords are dropped.
func ToGeminiSchema(node map[string]any) *genai.Schema {
	if node == nil {
		return nil
	}

	typ, nullable := schemaType(node["type"])
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(typ)),
		Description: stringField(node, "description"),
		Format:      stringField(node, "format"),
		Enum:        stringList(node["enum"]),
		Required:    stringList(node["required"]),
	}

	if n, _ := node["nullable"].(bool); n || nullable {
		out.Nullable = genai.Ptr(true)
	}

	if props, ok := node["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if child, ok := raw.(map[string]any); ok {
				out.Properties[name] = ToGeminiSchema(child)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		out.Items = ToGeminiSchema(items)
	}
	if n, ok := number(node["minItems"]); ok {
		v := int64(n)
		out.MinItems = &v
	}
	if n, ok := number(node["minimum"]); ok {
		out.Minimum = &n
	}
	return out
}

// schemaType reads "type", which JSON Schema allows to be a union such as
// ["string", "null"]. Gemini takes one type plus a nullable flag, so the first
// non-null member wins.
func schemaType(v any) (typ string, nullable bool) {
	if s, ok := v.(string); ok {
		return s, false
	}
	for _, member := range stringList(v) {
		if member == "null" {
			nullable = true
			continue
		}
		if typ == "" {
			typ = member
		}
	}
	return typ, nullable
}

func stringField(node map[string]any, key string) string {
	s, _ := node[key].(string)
	return s
}

// stringList accepts both decoded JSON arrays and Go string slices.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
