package hm

import (
	"math/rand"

	"github.com/impression-learning/impression/nonlin"
	"gorgonia.org/tensor"
)

// Layer is one level of the machine. A layer never owns its neighbours: the
// network hands them in on every call.
type Layer interface {
	// Base returns the state shared by all layer kinds.
	Base() *Unit

	// GenerativeParams and RecognitionParams return the live parameter
	// tensors, in the order used by every update list.
	GenerativeParams() []*tensor.Dense
	RecognitionParams() []*tensor.Dense

	forwardRecognition(lk links, x []float64) error
	forwardGenerative(lk links) error
	forward(lk links) error
	gradGen(lk links) ([]*tensor.Dense, error)
	gradRec(lk links) ([]*tensor.Dense, error)
	eTraceReinforce(lk links) ([]*tensor.Dense, error)
	clone() Layer
}

// links are the neighbours of a layer for one call. parent and child are nil
// at the ends of the chain.
type links struct {
	parent, child *Unit
	r             *rand.Rand
}

// Unit holds the dimensions, phase state and transient activity of a layer.
type Unit struct {
	N, NParent, NChild int
	SigmaGen, SigmaRec float64

	Phase     Phase
	Delta     []float64 // per-neuron gate: 1 recognition, 0 generation
	RecSwitch bool      // set for one step after a sleep to wake transition

	// indices of the neighbours in the owning network, -1 when absent
	Parent, Child int

	HPreRec, HMeanRec, NoiseRec, HRec []float64
	HMeanGen, NoiseGen, HGen          []float64
	H, HPrev                          []float64
	HPredGen, HPredRec                []float64
	HChild                            []float64 // observation, input layer only

	Loss float64

	nl nonlin.Function
}

func makeUnit(n, nParent, nChild int, sigmaGen, sigmaRec float64, nl nonlin.Function) Unit {
	u := Unit{
		N:        n,
		NParent:  nParent,
		NChild:   nChild,
		SigmaGen: sigmaGen,
		SigmaRec: sigmaRec,
		Parent:   -1,
		Child:    -1,
		Delta:    make([]float64, n),
		nl:       nl,
	}
	u.HPreRec = make([]float64, n)
	u.HMeanRec = make([]float64, n)
	u.NoiseRec = make([]float64, n)
	u.HRec = make([]float64, n)
	u.HMeanGen = make([]float64, n)
	u.NoiseGen = make([]float64, n)
	u.HGen = make([]float64, n)
	u.H = make([]float64, n)
	u.HPrev = make([]float64, n)
	u.HPredGen = make([]float64, n)
	u.HPredRec = make([]float64, n)
	u.HChild = make([]float64, nChild)
	fillDelta(u.Delta, Wake, nil)
	return u
}

// Base implements Layer.
func (u *Unit) Base() *Unit { return u }

func (u *Unit) setPhase(p Phase, r *rand.Rand) {
	fillDelta(u.Delta, p, r)
	u.Phase = p
}

// togglePhase flips wake and sleep. Any other phase is left as is.
func (u *Unit) togglePhase() {
	u.RecSwitch = false
	switch u.Phase {
	case Wake:
		u.setPhase(Sleep, nil)
	case Sleep:
		u.setPhase(Wake, nil)
		u.RecSwitch = true
	}
}

func (u *Unit) continuePhase() { u.RecSwitch = false }

// reset clears the activity carried from one trial to the next.
func (u *Unit) reset() {
	zero(u.NoiseGen)
	zero(u.HMeanGen)
	zero(u.HGen)
	zero(u.HChild)
	zero(u.HRec)
	zero(u.H)
}

// blend sets h = delta*h_rec + (1-delta)*h_gen, keeping the old h in h_prev.
func (u *Unit) blend() {
	copy(u.HPrev, u.H)
	for i, d := range u.Delta {
		u.H[i] = d*u.HRec[i] + (1-d)*u.HGen[i]
	}
}

// gated sums wake[i] where the neuron is driven by recognition and sleep[i]
// where it is driven by generation.
func (u *Unit) gated(wake, sleep []float64) float64 {
	var loss float64
	for i, d := range u.Delta {
		loss += d*wake[i] + (1-d)*sleep[i]
	}
	return loss
}

func (u *Unit) cloneUnit() Unit {
	u2 := *u
	u2.Delta = clone(u.Delta)
	u2.HPreRec = clone(u.HPreRec)
	u2.HMeanRec = clone(u.HMeanRec)
	u2.NoiseRec = clone(u.NoiseRec)
	u2.HRec = clone(u.HRec)
	u2.HMeanGen = clone(u.HMeanGen)
	u2.NoiseGen = clone(u.NoiseGen)
	u2.HGen = clone(u.HGen)
	u2.H = clone(u.H)
	u2.HPrev = clone(u.HPrev)
	u2.HPredGen = clone(u.HPredGen)
	u2.HPredRec = clone(u.HPredRec)
	u2.HChild = clone(u.HChild)
	return u2
}

func zero(a []float64) {
	for i := range a {
		a[i] = 0
	}
}

// sqErr returns (a-b)²/sigma² elementwise.
func sqErr(a, b []float64, sigma float64) []float64 {
	retVal := sub(a, b)
	s2 := sigma * sigma
	for i, v := range retVal {
		retVal[i] = v * v / s2
	}
	return retVal
}
