package hm

import (
	"github.com/impression-learning/impression/nonlin"
	"github.com/pkg/errors"
)

// Topology selects one of the supported layer chains.
type Topology byte

const (
	// SingleLatent is an input layer under one top feedforward layer.
	SingleLatent Topology = iota
	// TwoLatent is an input layer, a biased intermediate layer and a top layer.
	TwoLatent
	MAXTOPOLOGY
)

// LayerCount is the number of layers in the chain, input layer included.
func (t Topology) LayerCount() int { return int(t) + 2 }

func (t Topology) String() string {
	switch t {
	case SingleLatent:
		return "SingleLatent"
	case TwoLatent:
		return "TwoLatent"
	}
	return "UnknownTopology"
}

// Config configures a Helmholtz machine. All per-layer slices are ordered
// bottom (input) first.
type Config struct {
	Topology Topology
	Sizes    []int     // neurons per layer
	SigmaGen []float64 // generative noise scale per layer
	SigmaRec []float64 // recognition noise scale per layer

	Nonlinearity nonlin.Spec
	Bias         bool    // biases on non-top feedforward layers
	TopDiag      float64 // initial diagonal of the top transition matrix
}

// DefaultConf is the single latent layer machine used by the experiments.
func DefaultConf(nIn, nLatent int, sigmaGen, sigmaRec []float64) Config {
	return Config{
		Topology:     SingleLatent,
		Sizes:        []int{nIn, nLatent},
		SigmaGen:     sigmaGen,
		SigmaRec:     sigmaRec,
		Nonlinearity: nonlin.Spec{Kind: nonlin.KindTanh},
		TopDiag:      0.6,
	}
}

// TwoLatentConf is the deeper machine, with a biased intermediate layer.
func TwoLatentConf(nIn, n1, n2 int, sigmaGen, sigmaRec []float64) Config {
	return Config{
		Topology:     TwoLatent,
		Sizes:        []int{nIn, n1, n2},
		SigmaGen:     sigmaGen,
		SigmaRec:     sigmaRec,
		Nonlinearity: nonlin.Spec{Kind: nonlin.KindTanh},
		Bias:         true,
		TopDiag:      0.6,
	}
}

// IsValid reports whether the config describes a buildable network.
func (conf Config) IsValid() bool { return conf.Validate() == nil }

// Validate returns a description of the first problem found.
func (conf Config) Validate() error {
	if conf.Topology >= MAXTOPOLOGY {
		return errors.Errorf("unknown topology %d", conf.Topology)
	}
	n := conf.Topology.LayerCount()
	if len(conf.Sizes) != n || len(conf.SigmaGen) != n || len(conf.SigmaRec) != n {
		return errors.Errorf("%v needs %d sizes and noise scales, got %d sizes, %d generative and %d recognition scales",
			conf.Topology, n, len(conf.Sizes), len(conf.SigmaGen), len(conf.SigmaRec))
	}
	for i := 0; i < n; i++ {
		if conf.Sizes[i] < 1 {
			return errors.Errorf("layer %d has %d neurons", i, conf.Sizes[i])
		}
		// noise scales divide the loss
		if conf.SigmaGen[i] <= 0 || conf.SigmaRec[i] <= 0 {
			return errors.Errorf("layer %d has degenerate noise scales (gen %v, rec %v)", i, conf.SigmaGen[i], conf.SigmaRec[i])
		}
	}
	if !conf.Nonlinearity.IsValid() {
		return errors.Errorf("unknown nonlinearity %v", conf.Nonlinearity.Kind)
	}
	return nil
}

// HiddenWidth is the total number of neurons above the input layer.
func (conf Config) HiddenWidth() int {
	var w int
	for _, s := range conf.Sizes[1:] {
		w += s
	}
	return w
}
