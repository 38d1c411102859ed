// Package learn holds the learning rules that turn the local signals of a
// Helmholtz machine into parameter updates.
package learn

import (
	"github.com/impression-learning/impression/hm"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf64"
)

// Algorithm is a learning rule bound to one network.
type Algorithm interface {
	// UpdateLearningVars computes the updates for the current step. Rules
	// with automatic phase switching also advance their switch counter here.
	// recordStats is set when the updates are only being measured.
	UpdateLearningVars(recordStats bool) error

	// AssignVars applies the last computed updates to the network.
	AssignVars() error

	// UpdateLearningStats folds the last recognition updates into the running moments.
	UpdateLearningStats()

	// LearningStats derives the mean, variance and SNR of every recognition parameter.
	LearningStats() (Stats, error)

	// ResetLearning clears the per-epoch accumulators.
	ResetLearning()

	Network() *hm.Network
}

// Config configures a learning rule. Not every rule reads every field.
type Config struct {
	LearningRate     float64
	RecognitionScale float64 // divides every recognition update
	SwitchPeriod     int     // steps held in a phase before toggling; <= 0 disables switching

	Decay     float64 // eligibility trace decay
	LossDecay float64 // decay of the running loss average
	LossReset bool    // ResetLearning also forgets the running loss average
}

// DefaultConf returns the configuration used by the experiments.
func DefaultConf() Config {
	return Config{
		LearningRate:     0.01,
		RecognitionScale: 1,
		SwitchPeriod:     50,
		Decay:            0.9,
		LossDecay:        0.99,
	}
}

// IsValid reports whether the config can drive a learning rule.
func (c Config) IsValid() bool {
	return c.RecognitionScale != 0 && c.LossDecay >= 0 && c.LossDecay <= 1
}

// New selects a learning rule by the names used in experiment configurations.
// "reinforce" is the alternating variant with a trace decay of 0.9.
func New(name string, net *hm.Network, conf Config) (Algorithm, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid learning config %+v", conf)
	}
	switch name {
	case "wake_sleep", "impression":
		return NewImpression(net, conf), nil
	case "reinforce":
		conf.Decay = 0.9
		return NewAlternatingREINFORCE(net, conf), nil
	case "reinforce_layered":
		return NewREINFORCE(net, conf), nil
	case "backprop":
		return nil, errors.New("backprop is not implemented")
	}
	return nil, errors.Errorf("unknown learning algorithm %q", name)
}

// layered holds what every rule shares: one update per parameter, per layer,
// and the running moments of the recognition updates.
type layered struct {
	net *hm.Network

	RecUpdates [][]*tensor.Dense
	GenUpdates [][]*tensor.Dense

	LearningRate     float64
	RecognitionScale float64

	meanUpdate [][]*tensor.Dense
	moment2    [][]*tensor.Dense
	count      int
}

func makeLayered(net *hm.Network, conf Config) layered {
	l := layered{
		net:              net,
		LearningRate:     conf.LearningRate,
		RecognitionScale: conf.RecognitionScale,
	}
	for _, layer := range net.Layers() {
		rec := layer.RecognitionParams()
		l.RecUpdates = append(l.RecUpdates, zerosLikeAll(rec))
		l.GenUpdates = append(l.GenUpdates, zerosLikeAll(layer.GenerativeParams()))
		l.meanUpdate = append(l.meanUpdate, zerosLikeAll(rec))
		l.moment2 = append(l.moment2, zerosLikeAll(rec))
	}
	return l
}

// Network returns the network the rule trains.
func (l *layered) Network() *hm.Network { return l.net }

// AssignVars adds lr·u/recognition_scale to every recognition parameter and
// lr·u to every generative parameter.
func (l *layered) AssignVars() error {
	for i, layer := range l.net.Layers() {
		if err := assign(layer.RecognitionParams(), l.RecUpdates[i], l.LearningRate/l.RecognitionScale); err != nil {
			return errors.WithMessagef(err, "layer %d recognition", i)
		}
		if err := assign(layer.GenerativeParams(), l.GenUpdates[i], l.LearningRate); err != nil {
			return errors.WithMessagef(err, "layer %d generative", i)
		}
	}
	return nil
}

func assign(params, updates []*tensor.Dense, scale float64) error {
	if len(params) != len(updates) {
		return errors.Errorf("expected %d updates, got %d", len(params), len(updates))
	}
	for j, p := range params {
		u := updates[j]
		if !p.Shape().Eq(u.Shape()) {
			return errors.WithStack(hm.ShapeMismatch{Op: "assign", Want: p.Shape().Clone(), Got: u.Shape().Clone()})
		}
		step := clone(data(u))
		vecf64.Scale(step, scale)
		vecf64.Add(data(p), step)
	}
	return nil
}

// UpdateLearningStats implements Algorithm.
func (l *layered) UpdateLearningStats() {
	n := float64(l.count)
	for i := range l.RecUpdates {
		for j, u := range l.RecUpdates[i] {
			ud := data(u)
			mean, m2 := data(l.meanUpdate[i][j]), data(l.moment2[i][j])
			for k, v := range ud {
				mean[k] = (mean[k]*n + v) / (n + 1)
				m2[k] = (m2[k]*n + v*v) / (n + 1)
			}
		}
	}
	l.count++
}

// LearningStats implements Algorithm. Entries with zero variance have a NaN
// SNR, in which case ErrDegenerateStatistics is returned with the stats.
func (l *layered) LearningStats() (Stats, error) {
	var s Stats
	var degenerate bool
	for i := range l.meanUpdate {
		var means, vars, snrs []*tensor.Dense
		for j, m := range l.meanUpdate[i] {
			mean := m.Clone().(*tensor.Dense)
			variance := zerosLike(m)
			snr := zerosLike(m)
			md, m2, vd, sd := data(mean), data(l.moment2[i][j]), data(variance), data(snr)
			for k, mu := range md {
				vd[k] = m2[k] - mu*mu
				if vd[k] == 0 {
					sd[k] = nan
					degenerate = true
					continue
				}
				sd[k] = mu * mu / vd[k]
			}
			means = append(means, mean)
			vars = append(vars, variance)
			snrs = append(snrs, snr)
		}
		s.Mean = append(s.Mean, means)
		s.Variance = append(s.Variance, vars)
		s.SNR = append(s.SNR, snrs)
	}
	if degenerate {
		return s, ErrDegenerateStatistics
	}
	return s, nil
}

// StatsCount is the number of steps folded into the running moments.
func (l *layered) StatsCount() int { return l.count }

// ResetLearning implements Algorithm. The shared state has nothing per epoch.
func (l *layered) ResetLearning() {}
