package flow

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Verification is the outcome of a structure check.
type Verification struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

type layoutRule struct {
	message string
	schema  map[string]any
}

func scopeRule(name string) layoutRule {
	return layoutRule{
		message: fmt.Sprintf("%s must be a top-level Scope action", name),
		schema: map[string]any{
			"type":     "object",
			"required": []any{name},
			"properties": map[string]any{
				name: map[string]any{
					"type":       "object",
					"required":   []any{"type"},
					"properties": map[string]any{"type": map[string]any{"const": TypeScope}},
				},
			},
		},
	}
}

// layoutRules describe the repaired Try/Catch/Finally layout, one schema per rule
// so every failure maps to a single message.
func layoutRules(names ScopeNames) []layoutRule {
	return []layoutRule{
		scopeRule(names.Try),
		scopeRule(names.Catch),
		scopeRule(names.Finally),
		{
			message: fmt.Sprintf("%s must not be nested inside %s", names.Catch, names.Try),
			schema: map[string]any{
				"properties": map[string]any{
					names.Try: map[string]any{
						"properties": map[string]any{
							"actions": map[string]any{"not": map[string]any{"required": []any{names.Catch}}},
						},
					},
				},
			},
		},
		{
			message: fmt.Sprintf("%s must run after %s Failed and TimedOut", names.Catch, names.Try),
			schema: map[string]any{
				"properties": map[string]any{
					names.Catch: map[string]any{
						"required": []any{"runAfter"},
						"properties": map[string]any{
							"runAfter": map[string]any{
								"type":     "object",
								"required": []any{names.Try},
								"properties": map[string]any{
									names.Try: map[string]any{
										"type": "array",
										"allOf": []any{
											map[string]any{"contains": map[string]any{"const": string(StatusFailed)}},
											map[string]any{"contains": map[string]any{"const": string(StatusTimedOut)}},
										},
									},
								},
							},
						},
					},
				},
			},
		},
		{
			message: fmt.Sprintf("%s must have a runAfter condition", names.Finally),
			schema: map[string]any{
				"properties": map[string]any{
					names.Finally: map[string]any{
						"required": []any{"runAfter"},
						"properties": map[string]any{
							"runAfter": map[string]any{"type": "object", "minProperties": 1},
						},
					},
				},
			},
		},
	}
}

func compileRule(rule layoutRule) (*jsonschema.Schema, error) {
	data, err := json.Marshal(rule.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode layout schema: %w", err)
	}
	schema, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile layout schema: %w", err)
	}
	return schema, nil
}

// Verify checks that doc has the Try/Catch/Finally layout and that every runAfter
// reference points at an existing sibling.
func Verify(doc *Document, names ScopeNames) (*Verification, error) {
	var actions map[string]any
	if err := json.Unmarshal(doc.ActionsRaw(), &actions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	issues := []string{}
	for _, rule := range layoutRules(names) {
		schema, err := compileRule(rule)
		if err != nil {
			return nil, err
		}
		if result := schema.Validate(actions); !result.Valid {
			issues = append(issues, rule.message)
		}
	}
	issues = append(issues, doc.DanglingRunAfter()...)
	return &Verification{Valid: len(issues) == 0, Issues: issues}, nil
}
