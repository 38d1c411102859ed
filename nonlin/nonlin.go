// Package nonlin provides the elementwise nonlinearities used by the layers,
// each bundled with its derivative.
package nonlin

import (
	"fmt"
	"math"
)

// Function is an elementwise function and its elementwise derivative.
// Both return freshly allocated slices and never modify their input.
type Function struct {
	F      func(x []float64) []float64
	FPrime func(x []float64) []float64
}

// Value applies the function.
func (fn Function) Value(x []float64) []float64 { return fn.F(x) }

// Derivative applies the derivative.
func (fn Function) Derivative(x []float64) []float64 { return fn.FPrime(x) }

func apply(x []float64, f func(float64) float64) []float64 {
	retVal := make([]float64, len(x))
	for i, v := range x {
		retVal[i] = f(v)
	}
	return retVal
}

// Tanh is the hyperbolic tangent.
var Tanh = Function{
	F: func(x []float64) []float64 { return apply(x, math.Tanh) },
	FPrime: func(x []float64) []float64 {
		return apply(x, func(v float64) float64 {
			t := math.Tanh(v)
			return 1 - t*t
		})
	},
}

// Sigmoid is the logistic function.
var Sigmoid = Function{
	F: func(x []float64) []float64 { return apply(x, sigmoid) },
	FPrime: func(x []float64) []float64 {
		return apply(x, func(v float64) float64 { s := sigmoid(v); return s * (1 - s) })
	},
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

// ReLU returns a rectifier with slope a for positive inputs and slope b for
// negative inputs. ReLU(1, 0) is the standard rectifier.
//
// The derivative at exactly zero is b.
func ReLU(a, b float64) Function {
	return Function{
		F: func(x []float64) []float64 {
			return apply(x, func(v float64) float64 {
				return math.Max(0, a*v) - math.Max(0, b*(-v))
			})
		},
		FPrime: func(x []float64) []float64 {
			return apply(x, func(v float64) float64 {
				d := b
				if v > 0 {
					d += a - b
				}
				return d
			})
		},
	}
}

// Kind names a nonlinearity so that it can be persisted.
type Kind byte

const (
	KindTanh Kind = iota
	KindReLU
	KindSigmoid
	MAXKIND
)

func (k Kind) String() string {
	switch k {
	case KindTanh:
		return "tanh"
	case KindReLU:
		return "relu"
	case KindSigmoid:
		return "sigmoid"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Spec is a serialisable description of a nonlinearity.
// A and B are the ReLU slopes and are ignored by the other kinds.
type Spec struct {
	Kind Kind
	A, B float64
}

// DefaultReLU is the standard rectifier.
var DefaultReLU = Spec{Kind: KindReLU, A: 1, B: 0}

// Build returns the Function s describes. Unknown kinds panic.
func (s Spec) Build() Function {
	switch s.Kind {
	case KindTanh:
		return Tanh
	case KindReLU:
		return ReLU(s.A, s.B)
	case KindSigmoid:
		return Sigmoid
	}
	panic(fmt.Sprintf("unknown nonlinearity %v", s.Kind))
}

// IsValid reports whether s names a known nonlinearity.
func (s Spec) IsValid() bool { return s.Kind < MAXKIND }
