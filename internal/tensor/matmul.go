package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// dense wraps a 2-D tensor as a gonum matrix without copying.
func (t *Tensor) dense() *mat.Dense {
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

// fromDense copies a gonum result into a tensor.
func fromDense(m *mat.Dense) *Tensor {
	r, c := m.Dims()
	out := New(Shape{r, c})
	raw := m.RawMatrix()
	for i := 0; i < r; i++ {
		copy(out.data[i*c:(i+1)*c], raw.Data[i*raw.Stride:i*raw.Stride+c])
	}
	return out
}

// MatMul returns the matrix product t·other of two 2-D tensors.
//
// [M, K] @ [K, N] = [M, N]
func (t *Tensor) MatMul(other *Tensor) *Tensor {
	t.must2D("MatMul")
	other.must2D("MatMul")
	if t.shape[1] != other.shape[0] {
		panic(fmt.Errorf("tensor.MatMul: %w: %v @ %v", ErrShapeMismatch, t.shape, other.shape))
	}
	var out mat.Dense
	out.Mul(t.dense(), other.dense())
	return fromDense(&out)
}

// TMatMul returns tᵀ·other.
//
// [K, M]ᵀ @ [K, N] = [M, N]
func (t *Tensor) TMatMul(other *Tensor) *Tensor {
	t.must2D("TMatMul")
	other.must2D("TMatMul")
	if t.shape[0] != other.shape[0] {
		panic(fmt.Errorf("tensor.TMatMul: %w: %vᵀ @ %v", ErrShapeMismatch, t.shape, other.shape))
	}
	var out mat.Dense
	out.Mul(t.dense().T(), other.dense())
	return fromDense(&out)
}

// MatMulT returns t·otherᵀ.
//
// [M, K] @ [N, K]ᵀ = [M, N]
func (t *Tensor) MatMulT(other *Tensor) *Tensor {
	t.must2D("MatMulT")
	other.must2D("MatMulT")
	if t.shape[1] != other.shape[1] {
		panic(fmt.Errorf("tensor.MatMulT: %w: %v @ %vᵀ", ErrShapeMismatch, t.shape, other.shape))
	}
	var out mat.Dense
	out.Mul(t.dense(), other.dense().T())
	return fromDense(&out)
}
