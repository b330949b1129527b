package embeddings

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MarshalBinary encodes v as little-endian float32s.
func (v Vector) MarshalBinary() ([]byte, error) {
	return v.Bytes(), nil
}

// Bytes returns the little-endian float32 encoding of v.
func (v Vector) Bytes() []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// UnmarshalBinary decodes a little-endian float32 encoding into v.
func (v *Vector) UnmarshalBinary(data []byte) error {
	out, err := DecodeVector(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// DecodeVector decodes the output of Vector.Bytes.
func DecodeVector(data []byte) (Vector, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("decode vector: length %d is not a multiple of 4", len(data))
	}
	v := make(Vector, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
