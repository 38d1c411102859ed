package learn

import (
	"github.com/impression-learning/impression/hm"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf64"
)

// baseline is an exponentially decaying average of the network loss.
type baseline struct {
	LossAvg   float64
	LossDecay float64
}

// advantage folds loss into the average and returns loss minus the new average.
func (b *baseline) advantage(loss float64) float64 {
	b.LossAvg = b.LossDecay*b.LossAvg + (1-b.LossDecay)*loss
	return loss - b.LossAvg
}

// decayInto sets trace = decay·trace + signal.
func decayInto(trace, signal *tensor.Dense, decay float64) error {
	if !trace.Shape().Eq(signal.Shape()) {
		return errors.WithStack(hm.ShapeMismatch{Op: "eligibility trace", Want: trace.Shape().Clone(), Got: signal.Shape().Clone()})
	}
	t := data(trace)
	vecf64.Scale(t, decay)
	vecf64.Add(t, data(signal))
	return nil
}

// scaled returns s·t.
func scaled(t *tensor.Dense, s float64) *tensor.Dense {
	retVal := t.Clone().(*tensor.Dense)
	vecf64.Scale(data(retVal), s)
	return retVal
}

// REINFORCE trains the recognition parameters with a score-function estimator:
// the loss advantage times a decaying trace of the recognition score. The
// generative parameters follow their local gradient.
type REINFORCE struct {
	layered
	baseline

	Decay  float64
	eTrace [][]*tensor.Dense
}

// NewREINFORCE binds a REINFORCE rule to net.
func NewREINFORCE(net *hm.Network, conf Config) *REINFORCE {
	a := &REINFORCE{
		layered:  makeLayered(net, conf),
		baseline: baseline{LossDecay: conf.LossDecay},
		Decay:    conf.Decay,
	}
	a.ResetLearning()
	return a
}

// ResetLearning zeroes the eligibility traces.
func (a *REINFORCE) ResetLearning() {
	a.eTrace = a.eTrace[:0]
	for _, l := range a.net.Layers() {
		a.eTrace = append(a.eTrace, zerosLikeAll(l.RecognitionParams()))
	}
}

// UpdateLearningVars implements Algorithm.
func (a *REINFORCE) UpdateLearningVars(recordStats bool) error {
	net := a.net
	adv := a.advantage(net.LossTotal())
	for i := range net.Layers() {
		score, err := net.ETraceReinforce(i)
		if err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		if len(score) != len(a.eTrace[i]) {
			return errors.Errorf("layer %d: expected %d eligibility signals, got %d", i, len(a.eTrace[i]), len(score))
		}
		for j, s := range score {
			if err := decayInto(a.eTrace[i][j], s, a.Decay); err != nil {
				return errors.WithMessagef(err, "layer %d", i)
			}
			a.RecUpdates[i][j] = scaled(a.eTrace[i][j], adv)
		}

		gen, err := net.GradGen(i)
		if err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		a.GenUpdates[i] = gen
	}
	return nil
}

// AlternatingREINFORCE runs REINFORCE while the network alternates between
// wake and sleep. Each neuron contributes its impression update when it is
// eligible for it, and feeds the corresponding eligibility trace otherwise.
type AlternatingREINFORCE struct {
	layered
	baseline
	switcher

	Decay     float64
	LossReset bool
	eRec      [][]*tensor.Dense
	eGen      [][]*tensor.Dense
}

// NewAlternatingREINFORCE binds an alternating REINFORCE rule to net.
func NewAlternatingREINFORCE(net *hm.Network, conf Config) *AlternatingREINFORCE {
	a := &AlternatingREINFORCE{
		layered:   makeLayered(net, conf),
		baseline:  baseline{LossDecay: conf.LossDecay},
		switcher:  switcher{SwitchPeriod: conf.SwitchPeriod},
		Decay:     conf.Decay,
		LossReset: conf.LossReset,
	}
	a.ResetLearning()
	return a
}

// ResetLearning zeroes both eligibility traces, and the loss average if LossReset is set.
func (a *AlternatingREINFORCE) ResetLearning() {
	a.eRec, a.eGen = a.eRec[:0], a.eGen[:0]
	for _, l := range a.net.Layers() {
		a.eRec = append(a.eRec, zerosLikeAll(l.RecognitionParams()))
		a.eGen = append(a.eGen, zerosLikeAll(l.GenerativeParams()))
	}
	if a.LossReset {
		a.LossAvg = 0
	}
}

// UpdateLearningVars implements Algorithm.
func (a *AlternatingREINFORCE) UpdateLearningVars(recordStats bool) error {
	net := a.net
	adv := a.advantage(net.LossTotal())
	for i, l := range net.Layers() {
		delta := l.Base().Delta
		awake, asleep := delta, complement(delta)

		gen, err := net.GradGen(i)
		if err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		rec, err := net.GradRec(i)
		if err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		if err = a.combine(a.GenUpdates, a.eGen, i, gen, awake, asleep, adv); err != nil {
			return errors.WithMessagef(err, "layer %d generative", i)
		}
		if err = a.combine(a.RecUpdates, a.eRec, i, rec, asleep, awake, adv); err != nil {
			return errors.WithMessagef(err, "layer %d recognition", i)
		}
	}
	a.step(net)
	return nil
}

// combine writes the updates of layer i for one parameter family: the
// gradient gated by the eligible neurons, plus the advantage times a trace
// fed by the gradient of the ineligible ones.
func (a *AlternatingREINFORCE) combine(updates, traces [][]*tensor.Dense, i int, grads []*tensor.Dense, eligible, traced []float64, adv float64) error {
	if len(grads) != len(traces[i]) {
		return errors.Errorf("expected %d gradients, got %d", len(traces[i]), len(grads))
	}
	for j, g := range grads {
		if err := decayInto(traces[i][j], rowScale(g, traced), a.Decay); err != nil {
			return err
		}
		u := rowScale(g, eligible)
		vecf64.Add(data(u), data(scaled(traces[i][j], adv)))
		updates[i][j] = u
	}
	return nil
}
