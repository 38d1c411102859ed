package learn

import (
	"github.com/impression-learning/impression/hm"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

func data(t *tensor.Dense) []float64 { return t.Float64s() }

func clone(a []float64) []float64 {
	retVal := make([]float64, len(a))
	copy(retVal, a)
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

// rowScale returns a copy of t with row i multiplied by v[i]. The rows of
// every parameter tensor belong to the neurons of its layer.
func rowScale(t *tensor.Dense, v []float64) *tensor.Dense {
	retVal := t.Clone().(*tensor.Dense)
	d := data(retVal)
	cols := len(d) / len(v)
	for i, s := range v {
		floats.Scale(s, d[i*cols:(i+1)*cols])
	}
	return retVal
}

// complement returns 1 - v.
func complement(v []float64) []float64 {
	retVal := make([]float64, len(v))
	for i := range v {
		retVal[i] = 1 - v[i]
	}
	return retVal
}

// CosineSimilarity compares two update tensors as flat vectors.
func CosineSimilarity(a, b *tensor.Dense) (float64, error) {
	dot, err := UnnormalizedSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return dot / (floats.Norm(data(a), 2) * floats.Norm(data(b), 2)), nil
}

// UnnormalizedSimilarity is the dot product of two update tensors as flat vectors.
func UnnormalizedSimilarity(a, b *tensor.Dense) (float64, error) {
	if a.Shape().TotalSize() != b.Shape().TotalSize() {
		return 0, errors.WithStack(hm.ShapeMismatch{Op: "similarity", Want: a.Shape().Clone(), Got: b.Shape().Clone()})
	}
	return floats.Dot(data(a), data(b)), nil
}
