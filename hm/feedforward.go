package hm

import (
	"github.com/impression-learning/impression/nonlin"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf64"
)

// FeedforwardLayer is a hidden layer. The top layer of a chain has no parent;
// its generative pass applies a learned transition matrix to its own previous
// activity instead of projecting down from above.
type FeedforwardLayer struct {
	Unit
	WIn        *tensor.Dense // N × N_child
	WOut       *tensor.Dense // N × N_parent, nil on the top layer
	Transition *tensor.Dense // N × N, top layer only
	Bias       *tensor.Dense // recognition bias, N
	BiasGen    *tensor.Dense // generative bias, N

	Biased bool
	Top    bool
}

func newFeedforwardLayer(n, nParent, nChild int, sigmaGen, sigmaRec float64, nl nonlin.Function, biased, top bool) *FeedforwardLayer {
	return &FeedforwardLayer{
		Unit:    makeUnit(n, nParent, nChild, sigmaGen, sigmaRec, nl),
		Bias:    tensor.New(tensor.WithShape(n), tensor.Of(tensor.Float64)),
		BiasGen: tensor.New(tensor.WithShape(n), tensor.Of(tensor.Float64)),
		Biased:  biased,
		Top:     top,
	}
}

// GenerativeParams implements Layer. The top layer learns only its transition
// matrix; lower layers learn W_out and, if biased, the generative bias.
func (l *FeedforwardLayer) GenerativeParams() []*tensor.Dense {
	if l.Top {
		return []*tensor.Dense{l.Transition}
	}
	if l.Biased {
		return []*tensor.Dense{l.WOut, l.BiasGen}
	}
	return []*tensor.Dense{l.WOut}
}

// RecognitionParams implements Layer.
func (l *FeedforwardLayer) RecognitionParams() []*tensor.Dense {
	if l.Biased {
		return []*tensor.Dense{l.WIn, l.Bias}
	}
	return []*tensor.Dense{l.WIn}
}

func (l *FeedforwardLayer) forwardRecognition(lk links, _ []float64) error {
	var m maebe
	pre := m.add("feedforward recognition", m.matVec("feedforward recognition", l.WIn, lk.child.HRec), data(l.Bias))
	if m.err != nil {
		return m.err
	}
	copy(l.HPreRec, pre)
	copy(l.HMeanRec, l.nl.Value(pre))
	noise(lk.r, l.NoiseRec, l.SigmaRec)
	copy(l.HRec, l.HMeanRec)
	vecf64.Add(l.HRec, l.NoiseRec)
	return nil
}

func (l *FeedforwardLayer) forwardGenerative(lk links) error {
	var m maebe
	var mean []float64
	if l.Top {
		mean = m.matVec("transition", l.Transition, l.H)
	} else {
		mean = m.add("feedforward generation", m.matVec("feedforward generation", l.WOut, lk.parent.HGen), data(l.BiasGen))
		if m.err == nil {
			mean = l.nl.Value(mean)
		}
	}
	if m.err != nil {
		return m.err
	}
	copy(l.HMeanGen, mean)
	noise(lk.r, l.NoiseGen, l.SigmaGen)
	copy(l.HGen, l.HMeanGen)
	vecf64.Add(l.HGen, l.NoiseGen)
	return nil
}

func (l *FeedforwardLayer) forward(lk links) error {
	l.blend()

	var m maebe
	switch {
	case l.RecSwitch:
		// the transition is not valid across a sleep to wake boundary
		copy(l.HPredGen, l.HPrev)
	case l.Top:
		copy(l.HPredGen, m.matVec("transition prediction", l.Transition, l.HPrev))
	default:
		pre := m.add("generative prediction", m.matVec("generative prediction", l.WOut, lk.parent.HRec), data(l.BiasGen))
		if m.err == nil {
			copy(l.HPredGen, l.nl.Value(pre))
		}
	}
	preRec := m.add("recognition prediction", m.matVec("recognition prediction", l.WIn, lk.child.HGen), data(l.Bias))
	if m.err != nil {
		return m.err
	}
	copy(l.HPredRec, l.nl.Value(preRec))

	// the recognition term of the wake branch is not squared
	recTerm := sub(l.H, l.HMeanRec)
	s2 := l.SigmaRec * l.SigmaRec
	for i := range recTerm {
		recTerm[i] /= s2
	}
	wake := sub(sqErr(l.H, l.HPredGen, l.SigmaGen), recTerm)
	sleep := sub(sqErr(l.H, l.HPredRec, l.SigmaRec), sqErr(l.H, l.HMeanGen, l.SigmaGen))
	l.Loss = l.gated(wake, sleep)
	return nil
}

func (l *FeedforwardLayer) gradGen(lk links) ([]*tensor.Dense, error) {
	if l.RecSwitch {
		return zerosLikeAll(l.GenerativeParams()), nil
	}

	var m maebe
	if l.Top {
		e := sub(l.H, m.matVec("transition gradient", l.Transition, l.HPrev))
		if m.err != nil {
			return nil, m.err
		}
		return []*tensor.Dense{diag(hadamard(e, l.HPrev))}, nil
	}

	gHat := lk.parent.HRec
	pre := m.add("generative gradient", m.matVec("generative gradient", l.WOut, gHat), data(l.BiasGen))
	if m.err != nil {
		return nil, m.err
	}
	g := hadamard(l.nl.Derivative(pre), sub(l.HRec, l.nl.Value(pre)))
	wOut := m.outer("generative gradient", g, gHat)
	if m.err != nil {
		return nil, m.err
	}
	if l.Biased {
		return []*tensor.Dense{wOut, vecView(g)}, nil
	}
	return []*tensor.Dense{wOut}, nil
}

func (l *FeedforwardLayer) gradRec(lk links) ([]*tensor.Dense, error) {
	var m maebe
	aHat := lk.child.H
	pre := m.add("recognition gradient", m.matVec("recognition gradient", l.WIn, aHat), data(l.Bias))
	if m.err != nil {
		return nil, m.err
	}
	d := hadamard(l.nl.Derivative(pre), sub(l.H, l.nl.Value(pre)))
	return l.recUpdates(&m, "recognition gradient", d, aHat)
}

// eTraceReinforce is the score of the recognition sample: the deviation of
// the activity from the recognition mean, through the nonlinearity.
func (l *FeedforwardLayer) eTraceReinforce(lk links) ([]*tensor.Dense, error) {
	var m maebe
	d := hadamard(l.nl.Derivative(l.HPreRec), sub(l.H, l.HMeanRec))
	return l.recUpdates(&m, "eligibility trace", d, lk.child.H)
}

func (l *FeedforwardLayer) recUpdates(m *maebe, op string, d, a []float64) ([]*tensor.Dense, error) {
	wIn := m.outer(op, d, a)
	if m.err != nil {
		return nil, m.err
	}
	if l.Biased {
		return []*tensor.Dense{wIn, vecView(d)}, nil
	}
	return []*tensor.Dense{wIn}, nil
}

func (l *FeedforwardLayer) clone() Layer {
	l2 := &FeedforwardLayer{
		Unit:    l.cloneUnit(),
		WIn:     l.WIn.Clone().(*tensor.Dense),
		Bias:    l.Bias.Clone().(*tensor.Dense),
		BiasGen: l.BiasGen.Clone().(*tensor.Dense),
		Biased:  l.Biased,
		Top:     l.Top,
	}
	if l.WOut != nil {
		l2.WOut = l.WOut.Clone().(*tensor.Dense)
	}
	if l.Transition != nil {
		l2.Transition = l.Transition.Clone().(*tensor.Dense)
	}
	return l2
}
