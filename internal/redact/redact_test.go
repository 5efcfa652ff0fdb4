// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRedactsConfiguredFields(t *testing.T) {
	r := New([]string{"ssn", "password"})

	out := r.Map(map[string]any{
		"name":     "Ada",
		"ssn":      "123-45-6789",
		"password": "hunter2",
	})

	assert.Equal(t, "Ada", out["name"])
	assert.Equal(t, "[REDACTED]", out["ssn"])
	assert.Equal(t, "[REDACTED]", out["password"])
}

func TestMapIsCaseInsensitive(t *testing.T) {
	r := New([]string{"ssn"})
	out := r.Map(map[string]any{"SSN": "123-45-6789"})
	assert.Equal(t, "[REDACTED]", out["SSN"])
}

func TestMapWalksNestedStructures(t *testing.T) {
	r := New([]string{"credit_card"})

	out := r.Map(map[string]any{
		"customer": map[string]any{
			"credit_card": "4111 1111 1111 1111",
			"city":        "Oslo",
		},
		"payments": []any{
			map[string]any{"credit_card": "4111-1111-1111-1111", "amount": 10.0},
			"not a map",
		},
	})

	customer := out["customer"].(map[string]any)
	assert.Equal(t, "[REDACTED]", customer["credit_card"])
	assert.Equal(t, "Oslo", customer["city"])

	payments := out["payments"].([]any)
	first := payments[0].(map[string]any)
	assert.Equal(t, "[REDACTED]", first["credit_card"])
	assert.Equal(t, 10.0, first["amount"])
	assert.Equal(t, "not a map", payments[1])
}

func TestMapDoesNotMutateInput(t *testing.T) {
	r := New([]string{"ssn"})
	in := map[string]any{"ssn": "123-45-6789"}
	_ = r.Map(in)
	assert.Equal(t, "123-45-6789", in["ssn"])
}

func TestMapWithNoFieldsIsPassthrough(t *testing.T) {
	r := New(nil)
	in := map[string]any{"ssn": "123-45-6789"}
	out := r.Map(in)
	require.Equal(t, in, out)
}

func TestTextMasksPatterns(t *testing.T) {
	r := New(nil)

	assert.Equal(t, "SSN: [SSN-REDACTED]", r.Text("SSN: 123-45-6789"))
	assert.Equal(t, "SSN: [SSN-REDACTED]", r.Text("SSN: 123456789"))
	assert.Equal(t, "card [CC-REDACTED] on file", r.Text("card 4111 1111 1111 1111 on file"))
	assert.Equal(t, "card [CC-REDACTED] on file", r.Text("card 4111-1111-1111-1111 on file"))
	assert.Equal(t, "order 12345 shipped", r.Text("order 12345 shipped"))
}
