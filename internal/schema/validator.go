// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

import (
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/docline/docline/internal/logger"
)

// Issue is one schema violation with a JSONPath-style location.
type Issue struct {
	JSONPath string `json:"json_path"`
	Message  string `json:"message"`
}

// Result holds the outcome of validating one document against a schema.
type Result struct {
	IsValid bool
	Errors  []Issue
}

// Validator validates data against Draft-07 JSON schemas. Properties that
// declare a "default" are filled into the instance before validation, so
// callers see the defaulted document on both valid and invalid results.
// Safe for concurrent use.
type Validator struct{}

// NewValidator creates a schema validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks data against schema. Errors are sorted by their string
// form so repeated validation of the same input yields identical output.
func (v *Validator) Validate(data any, schema map[string]any) Result {
	fillDefaults(data, schema)

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	res, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		// Unloadable schema or instance is a validation failure at the root.
		return Result{
			IsValid: false,
			Errors:  []Issue{{JSONPath: "$", Message: err.Error()}},
		}
	}

	var issues []Issue
	for _, resErr := range res.Errors() {
		issues = append(issues, Issue{
			JSONPath: jsonPath(resErr.Field()),
			Message:  resErr.Description(),
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].JSONPath != issues[j].JSONPath {
			return issues[i].JSONPath < issues[j].JSONPath
		}
		return issues[i].Message < issues[j].Message
	})

	isValid := len(issues) == 0
	if !isValid {
		preview := issues
		if len(preview) > 5 {
			preview = preview[:5]
		}
		msgs := make([]string, 0, len(preview))
		for _, issue := range preview {
			msgs = append(msgs, issue.Message)
		}
		log := logger.GetSchemaLogger()
		log.Debug().
			Int("error_count", len(issues)).
			Strs("errors", msgs).
			Msg("Schema validation failed")
	}

	return Result{IsValid: isValid, Errors: issues}
}

// jsonPath converts a gojsonschema field reference to a $.dotted path.
func jsonPath(field string) string {
	if field == "" || field == gojsonschema.STRING_CONTEXT_ROOT {
		return "$"
	}
	return "$." + field
}

// fillDefaults recursively applies property defaults declared in schema to
// missing keys in data. Only object instances can receive defaults; nested
// objects and array items are walked so deep defaults apply too.
func fillDefaults(data any, schema map[string]any) {
	obj, ok := data.(map[string]any)
	if !ok {
		if arr, ok := data.([]any); ok {
			items, ok := schema["items"].(map[string]any)
			if !ok {
				return
			}
			for _, elem := range arr {
				fillDefaults(elem, items)
			}
		}
		return
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}

	for name, raw := range properties {
		subschema, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if def, hasDefault := subschema["default"]; hasDefault {
			if _, present := obj[name]; !present {
				obj[name] = def
			}
		}
		if value, present := obj[name]; present {
			fillDefaults(value, subschema)
		}
	}
}
