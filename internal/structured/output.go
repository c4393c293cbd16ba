package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

// ParseResult carries the model's raw text alongside the parsed value (nil
// on failure) and any parse errors.
type ParseResult[T any] struct {
	Value *T
	Raw   string
	Err   error
}

// IsValid reports whether parsing succeeded.
func (r *ParseResult[T]) IsValid() bool {
	return r.Value != nil && r.Err == nil
}

// Output is a schema-constrained structured output processor for type T,
// generated once via reflection and reused across calls.
type Output[T any] struct {
	schema *JSONSchema
	model  visionmodel.VisionModel
}

// New creates an Output[T], reflecting T's JSON shape into a JSONSchema.
func New[T any](model visionmodel.VisionModel) (*Output[T], error) {
	if model == nil {
		return nil, fmt.Errorf("structured: model cannot be nil")
	}
	var zero T
	schema, err := NewSchemaGenerator().GenerateSchema(reflect.TypeOf(zero))
	if err != nil {
		return nil, fmt.Errorf("structured: generate schema for %T: %w", zero, err)
	}
	return &Output[T]{schema: schema, model: model}, nil
}

// Generate sends messages with explicit JSON-only instructions appended and
// parses the reply into T.
func (o *Output[T]) Generate(ctx context.Context, messages []types.Message) (*ParseResult[T], error) {
	prompted := append(append([]types.Message{}, messages...), types.NewUserMessage(o.instructionPrompt()))

	completion, err := o.model.Complete(ctx, prompted, visionmodel.CompletionOptions{})
	if err != nil {
		return nil, err
	}

	raw := completion.Text
	value, parseErr := parseAndValidate[T](raw, o.schema)
	return &ParseResult[T]{Value: value, Raw: raw, Err: parseErr}, nil
}

func (o *Output[T]) instructionPrompt() string {
	schemaJSON, _ := json.MarshalIndent(o.schema, "", "  ")
	var b strings.Builder
	b.WriteString("Respond with JSON only, matching exactly this schema. ")
	b.WriteString("No prose, no markdown fences, no trailing commentary.\n")
	b.Write(schemaJSON)
	return b.String()
}

var codeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of raw text: first from a fenced code
// block, else the first top-level {...} span.
func extractJSON(raw string) string {
	if m := codeBlockPattern.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func parseAndValidate[T any](raw string, schema *JSONSchema) (*T, error) {
	candidate := extractJSON(raw)
	var value T
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil, fmt.Errorf("structured: parse failed: %w", err)
	}
	if err := validateRequired(candidate, schema); err != nil {
		return nil, err
	}
	return &value, nil
}

// validateRequired checks that every schema-required property key is
// present in the decoded JSON object. It does not perform full schema
// validation (type/enum/range checks) — those failure modes surface
// naturally as json.Unmarshal errors or downstream zero values.
func validateRequired(raw string, schema *JSONSchema) error {
	if schema == nil || len(schema.Required) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return fmt.Errorf("structured: expected a JSON object: %w", err)
	}
	var missing []string
	for _, req := range schema.Required {
		if _, ok := obj[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("structured: missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
