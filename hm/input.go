package hm

import (
	"github.com/impression-learning/impression/nonlin"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf64"
)

// InputLayer is the bottom of the machine. Its recognition pass copies the
// observation and its generative pass is linear in the parent's activity.
type InputLayer struct {
	Unit
	WOut *tensor.Dense // N × N_parent
}

func newInputLayer(n, nParent int, sigmaGen, sigmaRec float64, wOut *tensor.Dense) *InputLayer {
	return &InputLayer{
		Unit: makeUnit(n, nParent, n, sigmaGen, sigmaRec, nonlin.Function{}),
		WOut: wOut,
	}
}

// GenerativeParams implements Layer.
func (l *InputLayer) GenerativeParams() []*tensor.Dense { return []*tensor.Dense{l.WOut} }

// RecognitionParams implements Layer. The input layer has none.
func (l *InputLayer) RecognitionParams() []*tensor.Dense { return nil }

func (l *InputLayer) forwardRecognition(lk links, x []float64) error {
	if len(x) != l.N {
		return errors.WithStack(ShapeMismatch{Op: "input recognition", Want: tensor.Shape{l.N}, Got: tensor.Shape{len(x)}})
	}
	copy(l.HChild, x)
	noise(lk.r, l.NoiseRec, l.SigmaRec)
	copy(l.HMeanRec, x)
	copy(l.HRec, l.HMeanRec)
	vecf64.Add(l.HRec, l.NoiseRec)
	return nil
}

func (l *InputLayer) forwardGenerative(lk links) error {
	var m maebe
	mean := m.matVec("input generation", l.WOut, lk.parent.HGen)
	if m.err != nil {
		return m.err
	}
	noise(lk.r, l.NoiseGen, l.SigmaGen)
	copy(l.HMeanGen, mean)
	copy(l.HGen, mean)
	vecf64.Add(l.HGen, l.NoiseGen)
	return nil
}

func (l *InputLayer) forward(lk links) error {
	l.blend()

	var m maebe
	predGen := m.matVec("input prediction", l.WOut, lk.parent.HRec)
	if m.err != nil {
		return m.err
	}
	copy(l.HPredGen, predGen)
	copy(l.HPredRec, l.HChild)

	wake := sub(sqErr(l.H, l.HPredGen, l.SigmaGen), sqErr(l.H, l.HMeanRec, l.SigmaRec))
	sleep := sub(sqErr(l.H, l.HPredRec, l.SigmaRec), sqErr(l.H, l.HMeanGen, l.SigmaGen))
	l.Loss = l.gated(wake, sleep)
	return nil
}

// gradGen is the delta rule for W_out: the observation error of the
// prediction made from the parent's recognition activity, times that activity.
func (l *InputLayer) gradGen(lk links) ([]*tensor.Dense, error) {
	var m maebe
	gHat := lk.parent.HRec
	pred := m.matVec("input generative gradient", l.WOut, gHat)
	if m.err != nil {
		return nil, m.err
	}
	update := m.outer("input generative gradient", sub(l.HChild, pred), gHat)
	if m.err != nil {
		return nil, m.err
	}
	return []*tensor.Dense{update}, nil
}

func (l *InputLayer) gradRec(lk links) ([]*tensor.Dense, error)         { return nil, nil }
func (l *InputLayer) eTraceReinforce(lk links) ([]*tensor.Dense, error) { return nil, nil }

func (l *InputLayer) clone() Layer {
	return &InputLayer{
		Unit: l.cloneUnit(),
		WOut: l.WOut.Clone().(*tensor.Dense),
	}
}
