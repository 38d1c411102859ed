package learn

import (
	"github.com/impression-learning/impression/hm"
	"github.com/pkg/errors"
)

// switcher toggles the network phase every SwitchPeriod+1 steps.
type switcher struct {
	SwitchPeriod int
	counter      int
}

// step advances the counter and either toggles or continues the phase of net.
// It reports whether it toggled.
func (s *switcher) step(net *hm.Network) bool {
	if s.SwitchPeriod <= 0 {
		return false
	}
	s.counter++
	if s.counter > s.SwitchPeriod {
		net.TogglePhase()
		s.counter = 0
		return true
	}
	net.ContinuePhase()
	return false
}

// Impression learns the generative parameters while awake and the
// recognition parameters while asleep. Ineligible parameters receive a zero
// update.
type Impression struct {
	layered
	switcher
}

// NewImpression binds an impression learning rule to net.
func NewImpression(net *hm.Network, conf Config) *Impression {
	return &Impression{
		layered:  makeLayered(net, conf),
		switcher: switcher{SwitchPeriod: conf.SwitchPeriod},
	}
}

// UpdateLearningVars implements Algorithm.
func (a *Impression) UpdateLearningVars(recordStats bool) error {
	net := a.net
	phase := net.Phase()
	for i, l := range net.Layers() {
		if phase == hm.Sleep {
			rec, err := net.GradRec(i)
			if err != nil {
				return errors.WithMessagef(err, "layer %d", i)
			}
			a.RecUpdates[i] = rec
		} else {
			a.RecUpdates[i] = zerosLikeAll(l.RecognitionParams())
		}

		if phase == hm.Wake {
			gen, err := net.GradGen(i)
			if err != nil {
				return errors.WithMessagef(err, "layer %d", i)
			}
			a.GenUpdates[i] = gen
		} else {
			a.GenUpdates[i] = zerosLikeAll(l.GenerativeParams())
		}
	}
	a.step(net)
	return nil
}
