// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedding

import (
	"encoding/binary"
	"math"

	"github.com/docline/docline/internal/errs"
)

// PackVector encodes a vector as little-endian float32 bytes for storage.
func PackVector(vector []float32) []byte {
	packed := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(packed[i*4:], math.Float32bits(v))
	}
	return packed
}

// UnpackVector decodes a packed little-endian float32 vector.
func UnpackVector(packed []byte) ([]float32, error) {
	if len(packed)%4 != 0 {
		return nil, errs.Newf(errs.KindStorage, "packed vector length %d is not a multiple of 4", len(packed))
	}
	vector := make([]float32, len(packed)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(packed[i*4:]))
	}
	return vector, nil
}
