// Package sim replays a data series through a Helmholtz machine, training it
// or measuring it, and records what the machine did.
package sim

import (
	"log"
	"time"

	"github.com/impression-learning/impression/hm"
	"github.com/impression-learning/impression/learn"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// OutputEncoder encodes the state of a simulation at the end of every epoch.
//
// An example OutputEncoder is the GIF raster encoder. Another example would be a logger.
type OutputEncoder interface {
	Encode(ms MetaState) error
	Flush() error
}

// MetaState is what an OutputEncoder sees of a running simulation.
type MetaState interface {
	Name() string
	Epoch() int
	Steps() int           // steps recorded so far in the current epoch
	Record() *Record      // the record being filled
	Network() *hm.Network // the live network
}

// Record is what a run leaves behind.
type Record struct {
	Latent *tensor.Dense // hidden width × T, one column per step
	Loss   []float64     // network loss per step
}

// MeanLoss is the average loss over the record.
func (r *Record) MeanLoss() float64 { return stat.Mean(r.Loss, nil) }

// Steps is the number of time steps recorded.
func (r *Record) Steps() int { return len(r.Loss) }

// Simulation steps a network through a data series, possibly several times.
// Exactly one of Train, LearningStats and PhaseSwitch decides what happens
// after each forward step, checked in that order; none of them replays the
// data without any learning rule involvement.
type Simulation struct {
	Data      *tensor.Dense // n_in × T
	Algorithm learn.Algorithm
	Compare   []learn.Algorithm // rules measured when LearningStats is set
	Net       *hm.Network

	Train         bool // compute and apply updates
	LearningStats bool // compute the updates of every Compare rule and fold them into its moments
	PhaseSwitch   bool // compute updates only so that the rule drives the phase schedule
	Snapshot      bool // keep a deep copy of the network at a fixed cadence
	Epochs        int
	StartingPhase hm.Phase

	Name    string
	Encoder OutputEncoder
	Quiet   bool

	Snapshots []*hm.Network
	Record    *Record
}

// New creates a training simulation over a single epoch, starting awake.
func New(data *tensor.Dense, alg learn.Algorithm, net *hm.Network) *Simulation {
	return &Simulation{
		Data:          data,
		Algorithm:     alg,
		Net:           net,
		Train:         true,
		Epochs:        1,
		StartingPhase: hm.Wake,
	}
}

func (s *Simulation) validate() error {
	if s.Net == nil {
		return errors.New("simulation has no network")
	}
	if s.Data == nil || s.Data.Dims() != 2 {
		return errors.New("simulation data must be a n_in × T matrix")
	}
	if rows := s.Data.Shape()[0]; rows != s.Net.Sizes[0] {
		return errors.WithStack(hm.ShapeMismatch{Op: "simulation data", Want: tensor.Shape{s.Net.Sizes[0], s.Data.Shape()[1]}, Got: s.Data.Shape().Clone()})
	}
	if (s.Train || (!s.LearningStats && s.PhaseSwitch)) && s.Algorithm == nil {
		return errors.New("simulation needs a learning algorithm")
	}
	if s.Epochs < 1 {
		return errors.Errorf("simulation needs at least one epoch, got %d", s.Epochs)
	}
	if s.StartingPhase >= hm.MAXPHASE {
		return errors.WithStack(hm.InvalidPhase(s.StartingPhase.String()))
	}
	return nil
}

// Run plays the data through the network Epochs times. The record holds the
// last epoch; earlier epochs are overwritten.
func (s *Simulation) Run() (*Record, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	data, err := native.MatrixF64(s.Data)
	if err != nil {
		return nil, errors.Wrap(err, "simulation data")
	}
	T := s.Data.Shape()[1]
	total := T * s.Epochs
	reportPeriod := maxInt(1, total/10)
	snapshotPeriod := SnapshotPeriod(T, s.Epochs)

	s.Record = &Record{
		Latent: tensor.New(tensor.WithShape(s.Net.HiddenWidth(), T), tensor.Of(tensor.Float64)),
		Loss:   make([]float64, T),
	}
	latent, err := native.MatrixF64(s.Record.Latent)
	if err != nil {
		return nil, errors.Wrap(err, "latent record")
	}

	x := make([]float64, len(data))
	var percent int
	start := time.Now()
	s.Net.SetPhase(s.StartingPhase)
	for e := 0; e < s.Epochs; e++ {
		s.Net.Reset()
		if s.Algorithm != nil {
			s.Algorithm.ResetLearning()
		}
		for _, alg := range s.Compare {
			alg.ResetLearning()
		}

		for t := 0; t < T; t++ {
			step := t + T*e
			if step%reportPeriod == 0 && !s.Quiet {
				log.Printf("%sProgress: %d %% complete", s.prefix(), percent)
				log.Printf("%sTotal time: %v", s.prefix(), time.Since(start))
				percent += 10
			}
			if s.Snapshot && step%snapshotPeriod == 0 {
				s.Snapshots = append(s.Snapshots, s.Net.Clone())
			}

			for i := range data {
				x[i] = data[i][t]
			}
			if err := s.Net.Forward(x); err != nil {
				return nil, errors.WithMessagef(err, "epoch %d step %d", e, t)
			}
			if err := s.learn(); err != nil {
				return nil, errors.WithMessagef(err, "epoch %d step %d", e, t)
			}

			for i, h := range s.Net.Hidden() {
				latent[i][t] = h
			}
			s.Record.Loss[t] = s.Net.LossTotal()
		}

		if s.Encoder != nil {
			if err := s.Encoder.Encode(metaState{s: s, epoch: e, steps: T}); err != nil {
				return nil, errors.Wrapf(err, "encoding epoch %d", e)
			}
		}
	}
	return s.Record, nil
}

func (s *Simulation) learn() error {
	switch {
	case s.Train:
		if err := s.Algorithm.UpdateLearningVars(false); err != nil {
			return err
		}
		return s.Algorithm.AssignVars()
	case s.LearningStats:
		for _, alg := range s.Compare {
			if err := alg.UpdateLearningVars(true); err != nil {
				return err
			}
			alg.UpdateLearningStats()
		}
	case s.PhaseSwitch:
		return s.Algorithm.UpdateLearningVars(false)
	}
	return nil
}

func (s *Simulation) prefix() string {
	if s.Name == "" {
		return ""
	}
	return s.Name + ": "
}

type metaState struct {
	s     *Simulation
	epoch int
	steps int
}

func (ms metaState) Name() string         { return ms.s.Name }
func (ms metaState) Epoch() int           { return ms.epoch }
func (ms metaState) Steps() int           { return ms.steps }
func (ms metaState) Record() *Record      { return ms.s.Record }
func (ms metaState) Network() *hm.Network { return ms.s.Net }

// SnapshotPeriod is the number of steps between snapshots of a run of T steps
// over the given epochs: twenty snapshots per run, or one per step for short runs.
func SnapshotPeriod(T, epochs int) int { return maxInt(1, T*epochs/20) }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
