package hm

import (
	"fmt"
	"math/rand"
)

// Phase is the operating mode of a layer or network.
type Phase byte

const (
	// Wake drives every neuron from recognition (delta = 1).
	Wake Phase = iota
	// Sleep drives every neuron from generation (delta = 0).
	Sleep
	// DeepSleep is pure generation, used for unconditional sampling runs.
	DeepSleep
	// Mixed assigns each neuron to wake or sleep with probability 0.5.
	Mixed
	MAXPHASE
)

var phaseNames = [...]string{"wake", "sleep", "deep_sleep", "mixed"}

func (p Phase) String() string {
	if p < MAXPHASE {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", byte(p))
}

// ParsePhase parses the names used by experiment configurations.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return MAXPHASE, InvalidPhase(s)
}

// fillDelta writes the gating vector for phase p into delta.
func fillDelta(delta []float64, p Phase, r *rand.Rand) {
	switch p {
	case Wake:
		for i := range delta {
			delta[i] = 1
		}
	case Sleep, DeepSleep:
		for i := range delta {
			delta[i] = 0
		}
	case Mixed:
		for i := range delta {
			delta[i] = float64(r.Intn(2))
		}
	default:
		panic(InvalidPhase(p.String()))
	}
}
