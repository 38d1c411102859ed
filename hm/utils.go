package hm

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf64"
)

// maebe carries the first error of a chain of tensor operations. Once an
// error is recorded every further operation is a no-op returning nil.
type maebe struct {
	err error
}

func (m *maebe) matVec(op string, w *tensor.Dense, x []float64) []float64 {
	if m.err != nil {
		return nil
	}
	s := w.Shape()
	if s.Dims() != 2 {
		m.err = errors.Errorf("%s: expected a matrix, got shape %v", op, s)
		return nil
	}
	if s[1] != len(x) {
		m.err = errors.WithStack(ShapeMismatch{Op: op, Want: tensor.Shape{s[1]}, Got: tensor.Shape{len(x)}})
		return nil
	}
	var out *tensor.Dense
	if out, m.err = w.MatVecMul(vecView(x)); m.err != nil {
		m.err = errors.Wrapf(m.err, "%s", op)
		return nil
	}
	return data(out)
}

// MatVec returns w·x.
func MatVec(w *tensor.Dense, x []float64) ([]float64, error) {
	var m maebe
	retVal := m.matVec("matrix vector product", w, x)
	return retVal, m.err
}

func (m *maebe) outer(op string, a, b []float64) *tensor.Dense {
	if m.err != nil {
		return nil
	}
	var retVal *tensor.Dense
	if retVal, m.err = vecView(a).Outer(vecView(b)); m.err != nil {
		m.err = errors.Wrapf(m.err, "%s", op)
		return nil
	}
	return retVal
}

// add returns a + b for equally sized vectors.
func (m *maebe) add(op string, a, b []float64) []float64 {
	if m.err != nil {
		return nil
	}
	if len(a) != len(b) {
		m.err = errors.WithStack(ShapeMismatch{Op: op, Want: tensor.Shape{len(a)}, Got: tensor.Shape{len(b)}})
		return nil
	}
	retVal := clone(a)
	vecf64.Add(retVal, b)
	return retVal
}

// vecView wraps x in a vector without copying.
func vecView(x []float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(x)), tensor.WithBacking(x))
}

// data is the backing slice of t. Writes through it modify t.
func data(t *tensor.Dense) []float64 { return t.Float64s() }

func clone(a []float64) []float64 {
	retVal := make([]float64, len(a))
	copy(retVal, a)
	return retVal
}

// sub returns a - b.
func sub(a, b []float64) []float64 {
	retVal := clone(a)
	vecf64.Sub(retVal, b)
	return retVal
}

// hadamard returns a * b.
func hadamard(a, b []float64) []float64 {
	retVal := clone(a)
	vecf64.Mul(retVal, b)
	return retVal
}

func zerosLike(t *tensor.Dense) *tensor.Dense {
	return tensor.New(tensor.WithShape(t.Shape().Clone()...), tensor.Of(tensor.Float64))
}

func zerosLikeAll(ts []*tensor.Dense) []*tensor.Dense {
	retVal := make([]*tensor.Dense, len(ts))
	for i, t := range ts {
		retVal[i] = zerosLike(t)
	}
	return retVal
}

func diag(v []float64) *tensor.Dense {
	n := len(v)
	backing := make([]float64, n*n)
	for i := range v {
		backing[i*n+i] = v[i]
	}
	return tensor.New(tensor.WithShape(n, n), tensor.WithBacking(backing))
}

// Eye returns scale times the n×n identity.
func Eye(n int, scale float64) *tensor.Dense {
	v := make([]float64, n)
	for i := range v {
		v[i] = scale
	}
	return diag(v)
}

// Normal returns a rows×cols matrix of N(0, scale²) draws.
func Normal(r *rand.Rand, rows, cols int, scale float64) *tensor.Dense {
	backing := make([]float64, rows*cols)
	for i := range backing {
		backing[i] = r.NormFloat64() * scale
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

func noise(r *rand.Rand, dst []float64, sigma float64) {
	for i := range dst {
		dst[i] = r.NormFloat64() * sigma
	}
}

// let copies the values of src into dst.
func let(op string, dst, src *tensor.Dense) error {
	if !dst.Shape().Eq(src.Shape()) {
		return errors.WithStack(ShapeMismatch{Op: op, Want: dst.Shape().Clone(), Got: src.Shape().Clone()})
	}
	if src.Dtype() != tensor.Float64 {
		return errors.Errorf("%s: expected float64 data, got %v", op, src.Dtype())
	}
	copy(data(dst), data(src))
	return nil
}
