// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTransientExternal, Classify(New(KindTransientExternal, "rate limited")))
	assert.Equal(t, KindModelOutput, Classify(New(KindModelOutput, "bad json")))
	assert.Equal(t, KindUnknown, Classify(errors.New("plain error")))
	assert.Equal(t, KindUnknown, Classify(nil))
}

func TestClassifyWrappedError(t *testing.T) {
	inner := New(KindSchemaRegistry, "schema not found")
	wrapped := fmt.Errorf("loading registry: %w", inner)
	assert.Equal(t, KindSchemaRegistry, Classify(wrapped))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindTransientExternal, "503")))
	assert.False(t, IsRetryable(New(KindModelOutput, "unparseable")))
	assert.False(t, IsRetryable(New(KindSchemaValidation, "invalid")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestErrorMessageRendering(t *testing.T) {
	assert.Equal(t, "boom", New(KindStorage, "boom").Error())

	wrapped := Wrap(KindStorage, "insert failed", errors.New("disk full"))
	assert.Equal(t, "insert failed: disk full", wrapped.Error())

	detailed := New(KindModelOutput, "bad output").WithDetails(map[string]any{"chunk": 3})
	assert.Contains(t, detailed.Error(), "bad output")
	assert.Contains(t, detailed.Error(), "chunk")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(KindEmbedding, "embed failed", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsKind(t *testing.T) {
	err := Newf(KindPipelineState, "document %d missing", 7)
	assert.True(t, IsKind(err, KindPipelineState))
	assert.False(t, IsKind(err, KindStorage))
	assert.Equal(t, "document 7 missing", err.Message)
}
