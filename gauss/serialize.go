package gauss

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Binary layout: uint64 dimension, then the mean entries, then the lower
// triangle of the covariance factor row-major, all as little-endian IEEE-754
// bit patterns. The round trip is exact: no decimal formatting is involved.

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *Belief) MarshalBinary() ([]byte, error) {
	n := b.Dim()
	buf := make([]byte, 8*(1+n+n*(n+1)/2))
	binary.LittleEndian.PutUint64(buf, uint64(n))
	off := 8
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(b.mean.AtVec(i)))
		off += 8
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(b.sqrt.At(i, j)))
			off += 8
		}
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *Belief) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("gauss: belief payload truncated: %d bytes", len(data))
	}
	n := int(binary.LittleEndian.Uint64(data))
	want := 8 * (1 + n + n*(n+1)/2)
	if n <= 0 || len(data) != want {
		return fmt.Errorf("gauss: belief payload has %d bytes, want %d for dimension %d", len(data), want, n)
	}
	mean := mat.NewVecDense(n, nil)
	off := 8
	for i := 0; i < n; i++ {
		mean.SetVec(i, math.Float64frombits(binary.LittleEndian.Uint64(data[off:])))
		off += 8
	}
	sqrt := mat.NewTriDense(n, mat.Lower, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sqrt.SetTri(i, j, math.Float64frombits(binary.LittleEndian.Uint64(data[off:])))
			off += 8
		}
	}
	b.mean = mean
	b.sqrt = sqrt
	return nil
}
