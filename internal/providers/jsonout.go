package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// jsonInstruction is appended to prompts whenever JSON output is requested.
const jsonInstruction = "Respond with a single valid JSON value only. Do not wrap it in markdown code fences or add any commentary."

func withJSONInstruction(prompt string, schema map[string]any) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(prompt, "\n"))
	b.WriteString("\n\n")
	b.WriteString(jsonInstruction)
	if len(schema) > 0 {
		if raw, err := json.Marshal(schema); err == nil {
			b.WriteString("\nThe JSON must conform to this JSON Schema:\n")
			b.Write(raw)
		}
	}
	return b.String()
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json".
		trimmed = trimmed[nl+1:]
	} else {
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

var errEmptyJSON = errors.New("empty JSON response")

// NormalizeJSON strips fences from text, checks that it parses, and validates
// it against schema when one is given. It returns the cleaned text.
func NormalizeJSON(text string, schema map[string]any) (string, error) {
	cleaned := stripCodeFence(text)
	if cleaned == "" {
		return "", errEmptyJSON
	}

	var payload any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "", fmt.Errorf("response is not valid JSON: %w", err)
	}

	if len(schema) == 0 {
		return cleaned, nil
	}
	compiled, err := compileResponseSchema(schema)
	if err != nil {
		return "", fmt.Errorf("compile response schema: %w", err)
	}
	if err := compiled.Validate(payload); err != nil {
		return "", fmt.Errorf("response does not match schema: %w", err)
	}
	return cleaned, nil
}

var responseSchemaCache sync.Map

func compileResponseSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(raw)
	if cached, ok := responseSchemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("response.schema.json", key)
	if err != nil {
		return nil, err
	}
	responseSchemaCache.Store(key, compiled)
	return compiled, nil
}
