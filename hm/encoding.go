package hm

import (
	"bytes"
	"encoding/gob"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// header is everything but the parameters.
type header struct {
	Config    Config
	Phase     Phase
	RecSwitch bool
	Deltas    [][]float64
}

// GobEncode writes the config, the phase and every parameter tensor.
// Layer activity is not persisted: a decoded network starts reset.
func (n *Network) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	h := header{
		Config:    n.Config,
		Phase:     n.phase,
		RecSwitch: n.recSwitch,
	}
	for _, l := range n.layers {
		h.Deltas = append(h.Deltas, l.Base().Delta)
	}
	if err := enc.Encode(&h); err != nil {
		return nil, errors.WithStack(err)
	}
	for _, l := range n.layers {
		for _, p := range append(l.GenerativeParams(), l.RecognitionParams()...) {
			if err := enc.Encode(p); err != nil {
				return nil, errors.WithStack(err)
			}
		}
	}
	return buf.Bytes(), nil
}

// GobDecode rebuilds the network from its config and loads the parameters.
// The decoded network draws from a fresh source seeded with 0 until SetRand
// is called.
func (n *Network) GobDecode(p []byte) error {
	dec := gob.NewDecoder(bytes.NewBuffer(p))
	var h header
	if err := dec.Decode(&h); err != nil {
		return errors.WithStack(err)
	}
	if err := h.Config.Validate(); err != nil {
		return errors.WithMessage(err, "decoded network config")
	}
	if len(h.Deltas) != h.Config.Topology.LayerCount() {
		return errors.Errorf("expected %d gates, got %d", h.Config.Topology.LayerCount(), len(h.Deltas))
	}

	*n = Network{Config: h.Config, r: rand.New(rand.NewSource(0))}
	n.build()
	for i, l := range n.layers {
		gen := make([]*tensor.Dense, len(l.GenerativeParams()))
		rec := make([]*tensor.Dense, len(l.RecognitionParams()))
		for _, ts := range [][]*tensor.Dense{gen, rec} {
			for j := range ts {
				ts[j] = new(tensor.Dense)
				if err := dec.Decode(ts[j]); err != nil {
					return errors.Wrapf(err, "layer %d", i)
				}
			}
		}
		if err := n.LoadParams(i, gen, rec); err != nil {
			return err
		}
	}

	n.phase = h.Phase
	n.recSwitch = h.RecSwitch
	for i, l := range n.layers {
		u := l.Base()
		if len(h.Deltas[i]) != u.N {
			return errors.WithStack(ShapeMismatch{Op: "decode gate", Want: tensor.Shape{u.N}, Got: tensor.Shape{len(h.Deltas[i])}})
		}
		u.Phase = h.Phase
		u.RecSwitch = h.RecSwitch
		copy(u.Delta, h.Deltas[i])
	}
	return nil
}
