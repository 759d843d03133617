package gauss

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DimensionAgreement defines how two matrices' dimensions should agree.
type DimensionAgreement uint8

const (
	rows2cols DimensionAgreement = iota + 1
	cols2rows
	cols2cols
	rows2rows
	rowsAndcols
)

// DimensionError reports a state/observation dimension inconsistency between
// two operands.
type DimensionError struct {
	Name1, Name2   string
	R1, C1, R2, C2 int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("gauss: dimensions must agree: %s(%dx%d) %s(%dx%d)",
		e.Name1, e.R1, e.C1, e.Name2, e.R2, e.C2)
}

// checkMatDims checks the matrix dimensions match provided a
// DimensionAgreement. Returns a *DimensionError if not.
func checkMatDims(m1, m2 mat.Matrix, name1, name2 string, method DimensionAgreement) error {
	r1, c1 := m1.Dims()
	r2, c2 := m2.Dims()
	var ok bool
	switch method {
	case rows2cols:
		ok = r1 == c2
	case cols2rows:
		ok = c1 == r2
	case cols2cols:
		ok = c1 == c2
	case rows2rows:
		ok = r1 == r2
	case rowsAndcols:
		ok = r1 == r2 && c1 == c2
	}
	if !ok {
		return &DimensionError{Name1: name1, Name2: name2, R1: r1, C1: c1, R2: r2, C2: c2}
	}
	return nil
}
