package learn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/impression-learning/impression/hm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func newNet(t *testing.T, seed int64) *hm.Network {
	conf := hm.DefaultConf(2, 3, []float64{0.1, 0.2}, []float64{0.1, 0.2})
	net, err := hm.New(conf, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return net
}

func input(r *rand.Rand) []float64 { return []float64{r.NormFloat64(), r.NormFloat64()} }

func allZero(ts [][]*tensor.Dense) bool {
	for _, layer := range ts {
		for _, t := range layer {
			for _, v := range data(t) {
				if v != 0 {
					return false
				}
			}
		}
	}
	return true
}

func TestImpressionPhaseGating(t *testing.T) {
	assert := assert.New(t)
	conf := DefaultConf()
	conf.SwitchPeriod = 0
	r := rand.New(rand.NewSource(1))

	for _, p := range []hm.Phase{hm.Wake, hm.Sleep} {
		net := newNet(t, 1)
		alg := NewImpression(net, conf)
		net.SetPhase(p)
		for step := 0; step < 5; step++ {
			if err := net.Forward(input(r)); err != nil {
				t.Fatalf("%+v", err)
			}
			if err := alg.UpdateLearningVars(false); err != nil {
				t.Fatalf("%+v", err)
			}
			assert.Equal(p, net.Phase(), "switching is disabled")
			switch p {
			case hm.Wake:
				assert.True(allZero(alg.RecUpdates), "no recognition learning while awake")
				assert.False(allZero(alg.GenUpdates))
			case hm.Sleep:
				assert.True(allZero(alg.GenUpdates), "no generative learning while asleep")
				assert.False(allZero(alg.RecUpdates))
			}
			assert.NoError(alg.AssignVars())
		}
	}
}

func TestSwitchSchedule(t *testing.T) {
	conf := DefaultConf()
	conf.SwitchPeriod = 3
	net := newNet(t, 2)
	alg := NewImpression(net, conf)
	r := rand.New(rand.NewSource(2))

	var toggles []int
	for step := 1; step <= 10; step++ {
		before := net.Phase()
		if err := net.Forward(input(r)); err != nil {
			t.Fatalf("%+v", err)
		}
		if err := alg.UpdateLearningVars(false); err != nil {
			t.Fatalf("%+v", err)
		}
		if net.Phase() != before {
			toggles = append(toggles, step)
		}
	}
	assert.Equal(t, []int{4, 8}, toggles)
	assert.Equal(t, hm.Wake, net.Phase())
}

func TestSwitcherMarksWake(t *testing.T) {
	net := newNet(t, 3)
	net.SetPhase(hm.Sleep)
	s := switcher{SwitchPeriod: 1}
	assert.False(t, s.step(net))
	assert.False(t, net.RecSwitch())
	assert.True(t, s.step(net))
	assert.Equal(t, hm.Wake, net.Phase())
	assert.True(t, net.RecSwitch())
	assert.False(t, s.step(net))
	assert.False(t, net.RecSwitch(), "continuing clears the switch mark")
}

func constant(shape tensor.Shape, v float64) *tensor.Dense {
	t := tensor.New(tensor.WithShape(shape.Clone()...), tensor.Of(tensor.Float64))
	for i := range data(t) {
		data(t)[i] = v
	}
	return t
}

func feed(alg *Impression, values []float64) {
	for _, v := range values {
		for i, l := range alg.Network().Layers() {
			for j, p := range l.RecognitionParams() {
				alg.RecUpdates[i][j] = constant(p.Shape(), v)
			}
		}
		alg.UpdateLearningStats()
	}
}

func TestRunningStatistics(t *testing.T) {
	assert := assert.New(t)
	alg := NewImpression(newNet(t, 4), DefaultConf())
	seq := []float64{1, 2, 3, 4, 5}
	feed(alg, seq)
	assert.Equal(5, alg.StatsCount())

	stats, err := alg.LearningStats()
	assert.NoError(err)
	assert.Empty(stats.Mean[0], "the input layer has no recognition parameters")
	if !assert.Len(stats.Mean[1], 1) {
		return
	}
	var sum, sum2 float64
	for _, v := range seq {
		sum += v
		sum2 += v * v
	}
	mean := sum / 5
	variance := sum2/5 - mean*mean
	for k := range data(stats.Mean[1][0]) {
		assert.InDelta(mean, data(stats.Mean[1][0])[k], 1e-12)
		assert.InDelta(variance, data(stats.Variance[1][0])[k], 1e-12)
		assert.InDelta(mean*mean/variance, data(stats.SNR[1][0])[k], 1e-9)
	}
	assert.InDelta(mean*mean/variance, stats.MeanSNR(), 1e-9)
}

func TestDegenerateStatistics(t *testing.T) {
	alg := NewImpression(newNet(t, 5), DefaultConf())
	feed(alg, []float64{2, 2, 2})
	stats, err := alg.LearningStats()
	assert.Equal(t, ErrDegenerateStatistics, errors.Cause(err))
	for _, v := range data(stats.SNR[1][0]) {
		assert.True(t, math.IsNaN(v))
	}
	assert.True(t, math.IsNaN(stats.MeanSNR()))
}

func TestAssignVars(t *testing.T) {
	assert := assert.New(t)
	conf := DefaultConf()
	conf.LearningRate = 0.1
	conf.RecognitionScale = 2
	net := newNet(t, 6)
	alg := NewImpression(net, conf)

	ff := net.Layer(1).(*hm.FeedforwardLayer)
	in := net.Layer(0).(*hm.InputLayer)
	wIn := clone(data(ff.WIn))
	wOut := clone(data(in.WOut))
	for i, l := range net.Layers() {
		for j, p := range l.RecognitionParams() {
			alg.RecUpdates[i][j] = constant(p.Shape(), 1)
		}
		for j, p := range l.GenerativeParams() {
			alg.GenUpdates[i][j] = constant(p.Shape(), 1)
		}
	}
	assert.NoError(alg.AssignVars())
	for k, v := range data(ff.WIn) {
		assert.InDelta(wIn[k]+0.05, v, 1e-12)
	}
	for k, v := range data(in.WOut) {
		assert.InDelta(wOut[k]+0.1, v, 1e-12)
	}

	alg.GenUpdates[0][0] = constant(tensor.Shape{3, 2}, 1)
	err := alg.AssignVars()
	if assert.Error(err) {
		_, ok := errors.Cause(err).(hm.ShapeMismatch)
		assert.True(ok)
	}
}

func TestREINFORCE(t *testing.T) {
	assert := assert.New(t)
	net := newNet(t, 7)
	alg := NewREINFORCE(net, DefaultConf())
	r := rand.New(rand.NewSource(7))

	if err := net.Forward(input(r)); err != nil {
		t.Fatalf("%+v", err)
	}
	score, err := net.ETraceReinforce(1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := alg.UpdateLearningVars(false); err != nil {
		t.Fatalf("%+v", err)
	}
	loss := net.LossTotal()
	assert.InDelta(0.01*loss, alg.LossAvg, 1e-12)
	adv := loss - alg.LossAvg
	for k, v := range data(alg.RecUpdates[1][0]) {
		assert.InDelta(adv*data(score[0])[k], v, 1e-12)
	}
	for i, l := range net.Layers() {
		assert.Len(alg.GenUpdates[i], len(l.GenerativeParams()))
		assert.Len(alg.RecUpdates[i], len(l.RecognitionParams()))
	}
	assert.NoError(alg.AssignVars())

	alg.ResetLearning()
	assert.True(allZero(alg.eTrace))
}

func TestAlternatingREINFORCE(t *testing.T) {
	assert := assert.New(t)
	conf := DefaultConf()
	conf.SwitchPeriod = 0
	conf.Decay = 1
	conf.LossReset = true
	net := newNet(t, 8)
	alg := NewAlternatingREINFORCE(net, conf)
	r := rand.New(rand.NewSource(8))

	// awake: generative updates are the plain gradient, recognition updates
	// are the advantage times the recognition trace
	if err := net.Forward(input(r)); err != nil {
		t.Fatalf("%+v", err)
	}
	gen, err := net.GradGen(0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rec, err := net.GradRec(1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := alg.UpdateLearningVars(false); err != nil {
		t.Fatalf("%+v", err)
	}
	adv := net.LossTotal() - alg.LossAvg
	for k, v := range data(alg.GenUpdates[0][0]) {
		assert.InDelta(data(gen[0])[k], v, 1e-12)
	}
	for k, v := range data(alg.RecUpdates[1][0]) {
		assert.InDelta(adv*data(rec[0])[k], v, 1e-12)
	}
	assert.True(allZero(alg.eGen))
	assert.False(allZero(alg.eRec))

	alg.ResetLearning()
	assert.True(allZero(alg.eRec))
	assert.Equal(0.0, alg.LossAvg)
}

// assertTrace checks trace = s2 + 0.5·s1 and update = adv·trace.
func assertTrace(t *testing.T, trace, update *tensor.Dense, s1, s2 []float64, adv float64) {
	tr := data(trace)
	if !assert.Len(t, tr, len(s2)) {
		return
	}
	for k := range tr {
		assert.InDelta(t, s2[k]+0.5*s1[k], tr[k], 1e-12, "trace %d", k)
		assert.InDelta(t, adv*tr[k], data(update)[k], 1e-12, "update %d", k)
	}
}

func TestTraceDecay(t *testing.T) {
	conf := DefaultConf()
	conf.SwitchPeriod = 0
	conf.Decay = 0.5

	t.Run("REINFORCE", func(t *testing.T) {
		net := newNet(t, 11)
		alg := NewREINFORCE(net, conf)
		r := rand.New(rand.NewSource(11))
		var scores [][]float64
		for step := 0; step < 2; step++ {
			if err := net.Forward(input(r)); err != nil {
				t.Fatalf("%+v", err)
			}
			score, err := net.ETraceReinforce(1)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			scores = append(scores, clone(data(score[0])))
			if err := alg.UpdateLearningVars(false); err != nil {
				t.Fatalf("%+v", err)
			}
		}
		adv := net.LossTotal() - alg.LossAvg
		assertTrace(t, alg.eTrace[1][0], alg.RecUpdates[1][0], scores[0], scores[1], adv)
	})

	t.Run("alternating recognition", func(t *testing.T) {
		net := newNet(t, 12)
		alg := NewAlternatingREINFORCE(net, conf)
		r := rand.New(rand.NewSource(12))
		net.SetPhase(hm.Wake)
		var grads [][]float64
		for step := 0; step < 2; step++ {
			if err := net.Forward(input(r)); err != nil {
				t.Fatalf("%+v", err)
			}
			rec, err := net.GradRec(1)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			grads = append(grads, clone(data(rec[0])))
			if err := alg.UpdateLearningVars(false); err != nil {
				t.Fatalf("%+v", err)
			}
		}
		adv := net.LossTotal() - alg.LossAvg
		assertTrace(t, alg.eRec[1][0], alg.RecUpdates[1][0], grads[0], grads[1], adv)
	})

	t.Run("alternating generative", func(t *testing.T) {
		net := newNet(t, 13)
		alg := NewAlternatingREINFORCE(net, conf)
		r := rand.New(rand.NewSource(13))
		net.SetPhase(hm.Sleep)
		var grads [][]float64
		for step := 0; step < 2; step++ {
			if err := net.Forward(input(r)); err != nil {
				t.Fatalf("%+v", err)
			}
			gen, err := net.GradGen(0)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			grads = append(grads, clone(data(gen[0])))
			if err := alg.UpdateLearningVars(false); err != nil {
				t.Fatalf("%+v", err)
			}
		}
		assert.Equal(t, hm.Sleep, net.Phase())
		adv := net.LossTotal() - alg.LossAvg
		assertTrace(t, alg.eGen[0][0], alg.GenUpdates[0][0], grads[0], grads[1], adv)
	})
}

func TestRowScale(t *testing.T) {
	m := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6}))
	got := rowScale(m, []float64{0, 2})
	assert.Equal(t, []float64{0, 0, 0, 8, 10, 12}, data(got))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, data(m))

	v := tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{3, 4}))
	assert.Equal(t, []float64{3, 0}, data(rowScale(v, []float64{1, 0})))
}

func TestNew(t *testing.T) {
	net := newNet(t, 9)
	conf := DefaultConf()
	cases := []struct {
		name string
		want interface{}
	}{
		{"wake_sleep", &Impression{}},
		{"reinforce", &AlternatingREINFORCE{}},
		{"reinforce_layered", &REINFORCE{}},
	}
	for _, c := range cases {
		alg, err := New(c.name, net, conf)
		if assert.NoError(t, err, c.name) {
			assert.IsType(t, c.want, alg)
			assert.Equal(t, net, alg.Network())
		}
	}
	alg, _ := New("reinforce", net, conf)
	assert.Equal(t, 0.9, alg.(*AlternatingREINFORCE).Decay)

	_, err := New("backprop", net, conf)
	assert.Error(t, err)
	_, err = New("hebbian", net, conf)
	assert.Error(t, err)
	conf.RecognitionScale = 0
	_, err = New("wake_sleep", net, conf)
	assert.Error(t, err)
}

func TestSimilarity(t *testing.T) {
	a := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{1, 0, 0, 1}))
	b := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{0, 1, 1, 0}))
	c := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float64{2, 0, 0, 2}))

	cos, err := CosineSimilarity(a, c)
	assert.NoError(t, err)
	assert.InDelta(t, 1, cos, 1e-12)
	cos, _ = CosineSimilarity(a, b)
	assert.Equal(t, 0.0, cos)
	dot, _ := UnnormalizedSimilarity(a, c)
	assert.Equal(t, 4.0, dot)

	_, err = UnnormalizedSimilarity(a, tensor.New(tensor.WithShape(3), tensor.Of(tensor.Float64)))
	assert.Error(t, err)
}
