package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/impression-learning/impression/hm"
	"github.com/impression-learning/impression/learn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

type fixture struct {
	net  *hm.Network
	data *tensor.Dense
}

func setup(t *testing.T, seed int64, T int) fixture {
	r := rand.New(rand.NewSource(seed))
	sigma := 0.5 * math.Sqrt(0.1)
	data, _, err := SimulateData(r, DataConfig{
		NSample:     T,
		Mixing:      MixingMatrix(r, 2, 2),
		Transition:  TransitionMatrix(2, sigma),
		SigmaLatent: sigma,
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	net, err := hm.New(hm.DefaultConf(2, 3, []float64{0.1, sigma}, []float64{0.05, 0.1}), r)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return fixture{net: net, data: data}
}

func learnConf(period int) learn.Config {
	conf := learn.DefaultConf()
	conf.SwitchPeriod = period
	return conf
}

func TestSimulateData(t *testing.T) {
	assert := assert.New(t)
	const nLatent, nOut, T = 2, 3, 6
	sigma := 0.3
	r := rand.New(rand.NewSource(1))
	mixing := MixingMatrix(r, nOut, nLatent)
	transition := TransitionMatrix(nLatent, sigma)
	assert.Equal([]float64{1 - sigma*sigma, 0, 0, 1 - sigma*sigma}, transition.Float64s())

	data, latent, err := SimulateData(r, DataConfig{NSample: T, Mixing: mixing, Transition: transition, SigmaLatent: sigma})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.True(data.Shape().Eq(tensor.Shape{nOut, T}))
	assert.True(latent.Shape().Eq(tensor.Shape{nLatent, T}))

	// the innovations are the first draws after the mixing matrix
	replay := rand.New(rand.NewSource(1))
	MixingMatrix(replay, nOut, nLatent)
	eps, _ := native.MatrixF64(hm.Normal(replay, nLatent, T, sigma))
	z, _ := native.MatrixF64(latent)
	x, _ := native.MatrixF64(data)
	c, _ := native.MatrixF64(mixing)
	for i := 0; i < nLatent; i++ {
		assert.Equal(eps[i][0], z[i][0])
		for tt := 1; tt < T; tt++ {
			assert.InDelta((1-sigma*sigma)*z[i][tt-1]+eps[i][tt], z[i][tt], 1e-12)
		}
	}
	for i := 0; i < nOut; i++ {
		for tt := 0; tt < T; tt++ {
			var v float64
			for j := 0; j < nLatent; j++ {
				v += c[i][j] * z[j][tt]
			}
			assert.InDelta(v, x[i][tt], 1e-12)
		}
	}

	_, _, err = SimulateData(r, DataConfig{NSample: T, Mixing: hm.Normal(r, 3, 4, 1), Transition: transition})
	_, ok := errors.Cause(err).(hm.ShapeMismatch)
	assert.True(ok)
}

func TestSimulateCoupledData(t *testing.T) {
	const T = 8
	a := []float64{0.5, 0.2, -0.1, 0.7}
	transition := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking(append([]float64(nil), a...)))
	mixing := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{1, 0, 0, 1}))
	_, latent, err := SimulateData(rand.New(rand.NewSource(3)), DataConfig{NSample: T, Mixing: mixing, Transition: transition, SigmaLatent: 0.2})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	replay := rand.New(rand.NewSource(3))
	eps, _ := native.MatrixF64(hm.Normal(replay, 2, T, 0.2))
	z, _ := native.MatrixF64(latent)
	for tt := 1; tt < T; tt++ {
		for i := 0; i < 2; i++ {
			want := a[2*i]*z[0][tt-1] + a[2*i+1]*z[1][tt-1] + eps[i][tt]
			assert.InDelta(t, want, z[i][tt], 1e-12, "latent %d at %d", i, tt)
		}
	}
}

func TestTrainingRun(t *testing.T) {
	assert := assert.New(t)
	f := setup(t, 2, 40)
	alg := learn.NewImpression(f.net, learnConf(5))
	initial := f.net.Clone()

	s := New(f.data, alg, f.net)
	s.Snapshot = true
	s.Quiet = true
	rec, err := s.Run()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.True(rec.Latent.Shape().Eq(tensor.Shape{3, 40}))
	assert.Equal(40, rec.Steps())
	for _, l := range rec.Loss {
		assert.False(math.IsNaN(l) || math.IsInf(l, 0))
	}
	assert.False(math.IsNaN(rec.MeanLoss()))

	// the last column of the record is the last hidden state
	lat, _ := native.MatrixF64(rec.Latent)
	for i, h := range f.net.Hidden() {
		assert.Equal(h, lat[i][39])
	}

	// snapshots every other step, the first one before any learning
	if assert.Len(s.Snapshots, 20) {
		first := s.Snapshots[0]
		for i, l := range initial.Layers() {
			for j, p := range l.GenerativeParams() {
				assert.Equal(p.Float64s(), first.Layer(i).GenerativeParams()[j].Float64s())
			}
		}
		assert.NotEqual(initial.Layer(0).GenerativeParams()[0].Float64s(), f.net.Layer(0).GenerativeParams()[0].Float64s())
	}
}

func TestMultipleEpochs(t *testing.T) {
	f := setup(t, 3, 5)
	s := New(f.data, learn.NewImpression(f.net, learnConf(2)), f.net)
	s.Epochs = 3
	s.Snapshot = true
	s.Quiet = true
	rec, err := s.Run()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, 5, rec.Steps())
	assert.Len(t, s.Snapshots, 15)
}

func TestPhaseSwitchRun(t *testing.T) {
	assert := assert.New(t)
	f := setup(t, 4, 6)
	before := f.net.Clone()
	s := New(f.data, learn.NewImpression(f.net, learnConf(3)), f.net)
	s.Train = false
	s.PhaseSwitch = true
	s.Quiet = true
	if _, err := s.Run(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(hm.Sleep, f.net.Phase(), "one toggle after four steps")
	for i, l := range before.Layers() {
		for j, p := range l.RecognitionParams() {
			assert.Equal(p.Float64s(), f.net.Layer(i).RecognitionParams()[j].Float64s())
		}
	}
}

func TestLearningStatsRun(t *testing.T) {
	f := setup(t, 5, 8)
	ws := learn.NewImpression(f.net, learnConf(2))
	s := &Simulation{
		Data:          f.data,
		Net:           f.net,
		Compare:       []learn.Algorithm{ws},
		LearningStats: true,
		Epochs:        2,
		Quiet:         true,
	}
	if _, err := s.Run(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, 16, ws.StatsCount())
	stats, _ := ws.LearningStats()
	assert.Len(t, stats.Mean, 2)
}

func TestDeepSleepRun(t *testing.T) {
	f := setup(t, 6, 10)
	s := &Simulation{Data: f.data, Net: f.net, Epochs: 1, StartingPhase: hm.DeepSleep, Quiet: true}
	rec, err := s.Run()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, hm.DeepSleep, f.net.Phase())
	assert.Equal(t, 10, rec.Steps())
}

func TestDeterminism(t *testing.T) {
	run := func() *Record {
		f := setup(t, 7, 12)
		s := New(f.data, learn.NewImpression(f.net, learnConf(3)), f.net)
		s.Quiet = true
		rec, err := s.Run()
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return rec
	}
	a, b := run(), run()
	assert.Equal(t, a.Loss, b.Loss)
	assert.Equal(t, a.Latent.Float64s(), b.Latent.Float64s())
}

type countingEncoder struct {
	epochs  []int
	steps   int
	flushed bool
}

func (enc *countingEncoder) Encode(ms MetaState) error {
	enc.epochs = append(enc.epochs, ms.Epoch())
	enc.steps = ms.Steps()
	if ms.Record() == nil || ms.Network() == nil {
		return errors.New("incomplete meta state")
	}
	return nil
}

func (enc *countingEncoder) Flush() error { enc.flushed = true; return nil }

func TestEncoderHook(t *testing.T) {
	f := setup(t, 8, 4)
	enc := new(countingEncoder)
	s := New(f.data, learn.NewImpression(f.net, learnConf(0)), f.net)
	s.Epochs = 3
	s.Encoder = enc
	s.Name = "hook"
	s.Quiet = true
	if _, err := s.Run(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []int{0, 1, 2}, enc.epochs)
	assert.Equal(t, 4, enc.steps)
}

func TestValidation(t *testing.T) {
	f := setup(t, 9, 4)
	cases := []struct {
		name string
		s    *Simulation
	}{
		{"no network", &Simulation{Data: f.data, Epochs: 1}},
		{"no algorithm", New(f.data, nil, f.net)},
		{"no epochs", &Simulation{Data: f.data, Net: f.net}},
		{"bad phase", &Simulation{Data: f.data, Net: f.net, Epochs: 1, StartingPhase: hm.MAXPHASE}},
		{"vector data", &Simulation{Data: tensor.New(tensor.WithShape(2), tensor.Of(tensor.Float64)), Net: f.net, Epochs: 1}},
	}
	for _, c := range cases {
		_, err := c.s.Run()
		assert.Error(t, err, c.name)
	}

	wide := tensor.New(tensor.WithShape(3, 4), tensor.Of(tensor.Float64))
	_, err := (&Simulation{Data: wide, Net: f.net, Epochs: 1}).Run()
	_, ok := errors.Cause(err).(hm.ShapeMismatch)
	assert.True(t, ok)
}
