// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docline/docline/internal/errs"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	vector := []float32{0.0, 1.5, -2.25, 3.14159, 1e-8}

	packed := PackVector(vector)
	assert.Len(t, packed, 4*len(vector))

	unpacked, err := UnpackVector(packed)
	require.NoError(t, err)
	assert.Equal(t, vector, unpacked)
}

func TestPackEmptyVector(t *testing.T) {
	packed := PackVector(nil)
	assert.Empty(t, packed)

	unpacked, err := UnpackVector(packed)
	require.NoError(t, err)
	assert.Empty(t, unpacked)
}

func TestUnpackRejectsBadLength(t *testing.T) {
	_, err := UnpackVector([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindStorage))
}
