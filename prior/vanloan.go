package prior

import (
	"gonum.org/v1/gonum/mat"
)

// vanLoan computes the discrete transition Φ(Δt) and process noise Q(Δt) of
// the LTI SDE dx = A·x dt + Γ dW with white-noise intensity W, by
// exponentiating the block matrix
//
//	M = [ -A·Δt   Γ·W·Γᵀ·Δt ]
//	    [   0       Aᵀ·Δt   ]
//
// and reading Φ = (lower-right block)ᵀ and Q = Φ·(upper-right block) off the
// result. Used for the priors without polynomial closed forms (IOUP, Matérn).
func vanLoan(A, Γ, W *mat.Dense, Δt float64) (*mat.Dense, *mat.SymDense) {
	var ΓW, ΓWΓ, Ap mat.Dense
	ΓW.Mul(Γ, W)
	ΓWΓ.Mul(&ΓW, Γ.T())
	ΓWΓ.Scale(Δt, &ΓWΓ)
	Ap.Scale(Δt, A)

	rA, cA := A.Dims()
	M := mat.NewDense(2*rA, 2*cA, nil)
	for i := 0; i < rA; i++ {
		for j := 0; j < cA; j++ {
			M.Set(i, j, -Ap.At(i, j))
			M.Set(i+rA, j+cA, Ap.At(j, i))
			M.Set(i, j+cA, ΓWΓ.At(i, j))
		}
	}

	var expM mat.Dense
	expM.Exp(M)

	// Φᵀ sits in the lower-right block, Φ⁻¹·Q in the upper-right one.
	Φ := mat.NewDense(rA, cA, nil)
	F1Q := mat.NewDense(rA, cA, nil)
	for i := 0; i < rA; i++ {
		for j := 0; j < cA; j++ {
			F1Q.Set(i, j, expM.At(i, cA+j))
			Φ.Set(i, j, expM.At(rA+j, cA+i))
		}
	}
	var Q mat.Dense
	Q.Mul(Φ, F1Q)

	QSym := mat.NewSymDense(rA, nil)
	for i := 0; i < rA; i++ {
		for j := i; j < cA; j++ {
			QSym.SetSym(i, j, 0.5*(Q.At(i, j)+Q.At(j, i)))
		}
	}
	return Φ, QSym
}

// lyapunov solves the continuous Lyapunov equation A·P + P·Aᵀ + Q = 0 for the
// stationary covariance P via Kronecker vectorization,
// (I⊗A + A⊗I)·vec(P) = -vec(Q). The system is tiny (blocks are (q+1)²), so a
// dense solve is fine.
func lyapunov(A *mat.Dense, Q *mat.SymDense) (*mat.SymDense, error) {
	n, _ := A.Dims()
	sys := mat.NewDense(n*n, n*n, nil)
	rhs := mat.NewVecDense(n*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row := i*n + j
			rhs.SetVec(row, -Q.At(i, j))
			for k := 0; k < n; k++ {
				// vec(A·P): d/dP_kj coefficient A_ik.
				sys.Set(row, k*n+j, sys.At(row, k*n+j)+A.At(i, k))
				// vec(P·Aᵀ): d/dP_ik coefficient A_jk.
				sys.Set(row, i*n+k, sys.At(row, i*n+k)+A.At(j, k))
			}
		}
	}
	var p mat.VecDense
	if err := p.SolveVec(sys, rhs); err != nil {
		return nil, err
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(p.AtVec(i*n+j)+p.AtVec(j*n+i)))
		}
	}
	return out, nil
}
