// Package hm implements a layered Helmholtz machine whose neurons are driven
// either bottom-up by recognition or top-down by generation, depending on the
// phase.
package hm

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Network is a chain of layers, input layer first. Each layer refers to its
// neighbours by index into the chain.
type Network struct {
	Config

	layers    []Layer
	phase     Phase
	recSwitch bool
	lossTotal float64

	r *rand.Rand // shared with clones, never owned
}

// New builds a network with randomly initialised weights drawn from r. The
// same source provides every noise draw of the network and its clones.
func New(conf Config, r *rand.Rand) (*Network, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid network config")
	}
	n := &Network{Config: conf, r: r}
	n.build()
	n.SetPhase(Wake)
	return n, nil
}

func (n *Network) build() {
	conf := n.Config
	nl := conf.Nonlinearity.Build()
	sizes := conf.Sizes
	count := conf.Topology.LayerCount()
	top := count - 1

	in := newInputLayer(sizes[0], sizes[1], conf.SigmaGen[0], conf.SigmaRec[0], Normal(n.r, sizes[0], sizes[1], 1/float64(sizes[1])))
	in.Parent = 1
	n.layers = append(n.layers[:0], in)

	for i := 1; i < count; i++ {
		isTop := i == top
		nParent := 0
		if !isTop {
			nParent = sizes[i+1]
		}
		l := newFeedforwardLayer(sizes[i], nParent, sizes[i-1], conf.SigmaGen[i], conf.SigmaRec[i], nl, conf.Bias && !isTop, isTop)
		if isTop {
			l.Transition = Eye(sizes[i], conf.TopDiag)
		} else {
			l.WOut = Normal(n.r, sizes[i], nParent, 1/float64(nParent))
			l.Parent = i + 1
		}
		l.WIn = Normal(n.r, sizes[i], sizes[i-1], 1/float64(sizes[i-1]))
		l.Child = i - 1
		n.layers = append(n.layers, l)
	}
}

func (n *Network) links(i int) links {
	u := n.layers[i].Base()
	lk := links{r: n.r}
	if u.Parent >= 0 {
		lk.parent = n.layers[u.Parent].Base()
	}
	if u.Child >= 0 {
		lk.child = n.layers[u.Child].Base()
	}
	return lk
}

// Layers returns the chain. The layers are live: mutating them mutates the network.
func (n *Network) Layers() []Layer { return n.layers }

// Layer returns the ith layer from the bottom.
func (n *Network) Layer(i int) Layer { return n.layers[i] }

// LayerCount is the number of layers including the input layer.
func (n *Network) LayerCount() int { return len(n.layers) }

// Phase is the network-wide phase.
func (n *Network) Phase() Phase { return n.phase }

// RecSwitch reports whether the network has just switched from sleep to wake.
func (n *Network) RecSwitch() bool { return n.recSwitch }

// LossTotal is the sum of the layer losses of the last Forward.
func (n *Network) LossTotal() float64 { return n.lossTotal }

// Rand returns the random source of the network.
func (n *Network) Rand() *rand.Rand { return n.r }

// SetRand replaces the random source.
func (n *Network) SetRand(r *rand.Rand) { n.r = r }

// SetPhase puts every layer into phase p. Setting Mixed redraws the gates.
func (n *Network) SetPhase(p Phase) {
	for _, l := range n.layers {
		l.Base().setPhase(p, n.r)
	}
	n.phase = p
}

// TogglePhase flips wake and sleep. Coming out of sleep marks the next step
// as the first one after the switch; any other call clears that mark.
func (n *Network) TogglePhase() {
	for _, l := range n.layers {
		l.Base().togglePhase()
	}
	n.recSwitch = false
	switch n.phase {
	case Wake:
		n.phase = Sleep
	case Sleep:
		n.phase = Wake
		n.recSwitch = true
	}
}

// ContinuePhase keeps the current phase and clears the switch mark.
func (n *Network) ContinuePhase() {
	for _, l := range n.layers {
		l.Base().continuePhase()
	}
	n.recSwitch = false
}

// Reset clears the activity of every layer. Parameters are untouched.
func (n *Network) Reset() {
	for _, l := range n.layers {
		l.Base().reset()
	}
	n.lossTotal = 0
}

// Forward processes one observation: a recognition pass from the bottom up,
// a generative pass from the top down, then the phase blend and the losses.
func (n *Network) Forward(x []float64) error {
	if err := n.layers[0].forwardRecognition(n.links(0), x); err != nil {
		return err
	}
	for i := 1; i < len(n.layers); i++ {
		if err := n.layers[i].forwardRecognition(n.links(i), nil); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
	}
	for i := len(n.layers) - 1; i >= 0; i-- {
		if err := n.layers[i].forwardGenerative(n.links(i)); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
	}
	var loss float64
	for i, l := range n.layers {
		if err := l.forward(n.links(i)); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		loss += l.Base().Loss
	}
	n.lossTotal = loss
	return nil
}

// GradGen returns the generative updates of layer i, one per generative parameter.
func (n *Network) GradGen(i int) ([]*tensor.Dense, error) { return n.layers[i].gradGen(n.links(i)) }

// GradRec returns the recognition updates of layer i, one per recognition parameter.
func (n *Network) GradRec(i int) ([]*tensor.Dense, error) { return n.layers[i].gradRec(n.links(i)) }

// ETraceReinforce returns the REINFORCE eligibility signal of layer i, one per
// recognition parameter.
func (n *Network) ETraceReinforce(i int) ([]*tensor.Dense, error) {
	return n.layers[i].eTraceReinforce(n.links(i))
}

// HiddenWidth is the number of neurons above the input layer.
func (n *Network) HiddenWidth() int { return n.Config.HiddenWidth() }

// Hidden returns the activities of every layer above the input, concatenated
// bottom first.
func (n *Network) Hidden() []float64 {
	retVal := make([]float64, 0, n.HiddenWidth())
	for _, l := range n.layers[1:] {
		retVal = append(retVal, l.Base().H...)
	}
	return retVal
}

// LoadParams copies the given values into the parameters of layer i.
func (n *Network) LoadParams(i int, gen, rec []*tensor.Dense) error {
	l := n.layers[i]
	if err := letAll("generative", l.GenerativeParams(), gen); err != nil {
		return errors.WithMessagef(err, "layer %d", i)
	}
	if err := letAll("recognition", l.RecognitionParams(), rec); err != nil {
		return errors.WithMessagef(err, "layer %d", i)
	}
	return nil
}

func letAll(op string, dst, src []*tensor.Dense) error {
	if len(dst) != len(src) {
		return errors.Errorf("%s parameters: expected %d tensors, got %d", op, len(dst), len(src))
	}
	for j := range dst {
		if err := let(op, dst[j], src[j]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the network: parameters and activity are
// copied by value. The random source is shared.
func (n *Network) Clone() *Network {
	n2 := &Network{
		Config:    n.Config.clone(),
		layers:    make([]Layer, len(n.layers)),
		phase:     n.phase,
		recSwitch: n.recSwitch,
		lossTotal: n.lossTotal,
		r:         n.r,
	}
	for i, l := range n.layers {
		n2.layers[i] = l.clone()
	}
	return n2
}

func (conf Config) clone() Config {
	conf.Sizes = append([]int(nil), conf.Sizes...)
	conf.SigmaGen = append([]float64(nil), conf.SigmaGen...)
	conf.SigmaRec = append([]float64(nil), conf.SigmaRec...)
	return conf
}
