package impression

import (
	"encoding/gob"
	"math"
	"os"

	"github.com/impression-learning/impression/hm"
	"github.com/impression-learning/impression/learn"
	"github.com/impression-learning/impression/sim"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Mode selects the experiment being run. The modes share one pipeline and
// differ in their seed policy, their outputs and the file they are saved to.
type Mode string

const (
	ModeStandard       Mode = "standard"
	ModeTimeConstant   Mode = "time_constant"
	ModeSwitchPeriod   Mode = "switch_period"
	ModeDimensionality Mode = "dimensionality"
	ModeLROptim        Mode = "lr_optim"
	ModeSNR            Mode = "SNR"
	ModeSinusoid       Mode = "sinusoid"
)

var filePrefixes = map[Mode]string{
	ModeStandard:       "impression_",
	ModeTimeConstant:   "impression_tc_",
	ModeSwitchPeriod:   "impression_sp_",
	ModeDimensionality: "impression_d_",
	ModeLROptim:        "impression_lr_",
	ModeSNR:            "impression_snr_",
	ModeSinusoid:       "impression_sin_",
}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool { _, ok := filePrefixes[m]; return ok }

// fixedSeed reports whether the mode pins the random source to a fixed seed
// before anything is drawn.
func (m Mode) fixedSeed() bool { return m != ModeStandard && m != ModeSNR }

// Config is the experiment configuration.
type Config struct {
	Name      string
	Mode      Mode
	Algorithm string // learning rule: wake_sleep, reinforce, reinforce_layered

	LearningRate     float64
	RecognitionScale float64
	SwitchPeriod     int

	SigmaIn        float64 // recognition noise of the input layer
	SigmaLatent    float64 // recognition noise of the latent layer
	SigmaObsGen    float64 // generative noise of the input layer
	SigmaLatentGen float64 // generative noise of the latent layer, 0 to match the data
	SigmaOut       float64 // observation noise of the data, 0 for none

	NLatent  int // latent dimension of the data
	NIn      int // observed dimension of the data
	NNeurons int // neurons of the latent layer
	NSample  int // training steps
	NTest    int // test steps
	NCompare int // steps of the SNR comparison runs

	Dt          float64 // time step, sets the latent noise of the data to 0.5·√dt
	EpochNum    int
	EpochNumSNR int
	Seed        int64

	Save      bool
	Local     bool
	ArrayNum  int
	OutputDir string

	// extensions
	OutputEncoder sim.OutputEncoder // receives the training run
	Quiet         bool
}

// DefaultConfig is the standard experiment.
func DefaultConfig() Config {
	return Config{
		Name:             "impression",
		Mode:             ModeStandard,
		Algorithm:        "wake_sleep",
		LearningRate:     0.01,
		RecognitionScale: 1,
		SwitchPeriod:     50,
		SigmaIn:          0.05,
		SigmaLatent:      0.1,
		SigmaObsGen:      0.1,
		NLatent:          2,
		NIn:              2,
		NNeurons:         2,
		NSample:          10000,
		NTest:            1000,
		NCompare:         1000,
		Dt:               0.1,
		EpochNum:         1,
		EpochNumSNR:      1,
		OutputDir:        ".",
	}
}

// Validate returns a description of the first problem found.
func (c Config) Validate() error {
	if !c.Mode.IsValid() {
		return errors.Errorf("unknown mode %q", c.Mode)
	}
	if c.NLatent < 1 || c.NSample < 1 || c.NTest < 1 {
		return errors.Errorf("need a latent dimension and samples, got n_latent %d, n_sample %d, n_test %d", c.NLatent, c.NSample, c.NTest)
	}
	if c.Mode == ModeSNR && (c.NCompare < 1 || c.EpochNumSNR < 1) {
		return errors.Errorf("SNR comparisons need samples and epochs, got %d and %d", c.NCompare, c.EpochNumSNR)
	}
	if c.EpochNum < 1 {
		return errors.Errorf("need at least one epoch, got %d", c.EpochNum)
	}
	// the data transition is (1 - dt/4)·I
	if c.Dt <= 0 || c.Dt > 4 {
		return errors.Errorf("time step %v outside (0, 4]", c.Dt)
	}
	if !c.learnConf(0.9).IsValid() {
		return errors.Errorf("invalid learning rate %v or recognition scale %v", c.LearningRate, c.RecognitionScale)
	}
	return c.netConf(c.sigmaData()).Validate()
}

// IsValid reports whether the config describes a runnable experiment.
func (c Config) IsValid() bool { return c.Validate() == nil }

func (c Config) sigmaData() float64 { return 0.5 * math.Sqrt(c.Dt) }

func (c Config) netConf(sigmaData float64) hm.Config {
	sigmaLatentGen := c.SigmaLatentGen
	if sigmaLatentGen == 0 {
		sigmaLatentGen = sigmaData
	}
	return hm.DefaultConf(c.NIn, c.NNeurons,
		[]float64{c.SigmaObsGen, sigmaLatentGen},
		[]float64{c.SigmaIn, c.SigmaLatent})
}

func (c Config) learnConf(decay float64) learn.Config {
	conf := learn.DefaultConf()
	conf.LearningRate = c.LearningRate
	conf.RecognitionScale = c.RecognitionScale
	conf.SwitchPeriod = c.SwitchPeriod
	conf.Decay = decay
	return conf
}

// Result is everything an experiment persists.
type Result struct {
	Mode    Mode
	Network *hm.Network // the trained network

	TestSim *sim.Record // the test run of the last checkpoint
	GenSim  *sim.Record // the network generating freely over the test period

	DataTest       *tensor.Dense
	DataLatentTest *tensor.Dense
	LossMean       []float64 // mean test loss per checkpoint

	// the same stretch of test data held awake and alternating, under the same noise
	WakeSequence      *sim.Record
	WakeSleepSequence *sim.Record

	// per checkpoint statistics of the recognition updates, SNR mode only
	StatsImpression []learn.Stats
	StatsReinforce  []learn.Stats
}

// Save the result into filename
func (r *Result) Save(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	return errors.WithStack(enc.Encode(r))
}

// Load a result from filename
func Load(filename string) (*Result, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	r := new(Result)
	if err = gob.NewDecoder(f).Decode(r); err != nil {
		return nil, errors.WithStack(err)
	}
	return r, nil
}
