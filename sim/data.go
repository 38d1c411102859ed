package sim

import (
	"math/rand"

	"github.com/impression-learning/impression/hm"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// DataConfig describes a linear Gaussian state space model.
type DataConfig struct {
	NSample     int
	Mixing      *tensor.Dense // observation matrix, n_out × n_latent
	Transition  *tensor.Dense // latent dynamics, n_latent × n_latent
	SigmaLatent float64       // latent innovation noise
	SigmaOut    float64       // observation noise, none if 0
}

// MixingMatrix draws an nOut×nLatent observation matrix with N(0, 1/nLatent²) entries.
func MixingMatrix(r *rand.Rand, nOut, nLatent int) *tensor.Dense {
	return hm.Normal(r, nOut, nLatent, 1/float64(nLatent))
}

// TransitionMatrix is the contracting dynamics (1-sigma²)·I.
func TransitionMatrix(n int, sigma float64) *tensor.Dense {
	return hm.Eye(n, 1-sigma*sigma)
}

// SimulateData draws NSample steps of z_0 = ε_0, z_t = A·z_{t-1} + ε_t and
// observes them through x_t = C·z_t (+ observation noise). Both series have
// one column per step.
func SimulateData(r *rand.Rand, conf DataConfig) (data, latent *tensor.Dense, err error) {
	if conf.Mixing == nil || conf.Transition == nil || conf.Mixing.Dims() != 2 || conf.Transition.Dims() != 2 {
		return nil, nil, errors.New("state space model needs mixing and transition matrices")
	}
	nLatent := conf.Transition.Shape()[0]
	if !conf.Transition.Shape().Eq(tensor.Shape{nLatent, nLatent}) {
		return nil, nil, errors.WithStack(hm.ShapeMismatch{Op: "transition matrix", Want: tensor.Shape{nLatent, nLatent}, Got: conf.Transition.Shape().Clone()})
	}
	if conf.Mixing.Shape()[1] != nLatent {
		return nil, nil, errors.WithStack(hm.ShapeMismatch{Op: "mixing matrix", Want: tensor.Shape{conf.Mixing.Shape()[0], nLatent}, Got: conf.Mixing.Shape().Clone()})
	}
	if conf.NSample < 1 {
		return nil, nil, errors.Errorf("need at least one sample, got %d", conf.NSample)
	}

	latent = hm.Normal(r, nLatent, conf.NSample, conf.SigmaLatent)
	z, err := native.MatrixF64(latent)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	prev := make([]float64, nLatent)
	for t := 1; t < conf.NSample; t++ {
		for i := range prev {
			prev[i] = z[i][t-1]
		}
		next, err := hm.MatVec(conf.Transition, prev)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "step %d", t)
		}
		for i, v := range next {
			z[i][t] += v
		}
	}

	if data, err = conf.Mixing.MatMul(latent); err != nil {
		return nil, nil, errors.Wrap(err, "observing the latent series")
	}
	if conf.SigmaOut > 0 {
		nOut := conf.Mixing.Shape()[0]
		obs := hm.Normal(r, nOut, conf.NSample, conf.SigmaOut)
		if data, err = data.Add(obs); err != nil {
			return nil, nil, errors.Wrap(err, "observation noise")
		}
	}
	return data, latent, nil
}
