package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/impression-learning/impression"
	"github.com/impression-learning/impression/encoding/gif"
)

// outputs are the files written after a run.
type outputs struct {
	gif, dot, stats string
	verbose         bool
}

// newFlagSet binds every experiment setting and output to a flag.
func newFlagSet(conf *impression.Config, o *outputs) *flag.FlagSet {
	fs := flag.NewFlagSet("impression", flag.ExitOnError)
	fs.Func("mode", "experiment: standard, time_constant, switch_period, dimensionality, lr_optim, SNR, sinusoid", func(s string) error {
		conf.Mode = impression.Mode(s)
		return nil
	})
	fs.StringVar(&conf.Algorithm, "algorithm", conf.Algorithm, "learning rule: wake_sleep, reinforce, reinforce_layered")
	fs.Float64Var(&conf.LearningRate, "lr", conf.LearningRate, "learning rate")
	fs.Float64Var(&conf.RecognitionScale, "recognition_scale", conf.RecognitionScale, "divides every recognition update")
	fs.IntVar(&conf.SwitchPeriod, "switch_period", conf.SwitchPeriod, "steps between wake/sleep toggles, 0 to disable")
	fs.Float64Var(&conf.SigmaIn, "sigma_in", conf.SigmaIn, "recognition noise of the input layer")
	fs.Float64Var(&conf.SigmaLatent, "sigma_latent", conf.SigmaLatent, "recognition noise of the latent layer")
	fs.Float64Var(&conf.SigmaObsGen, "sigma_obs_gen", conf.SigmaObsGen, "generative noise of the input layer")
	fs.Float64Var(&conf.SigmaLatentGen, "sigma_latent_gen", conf.SigmaLatentGen, "generative noise of the latent layer, 0 to match the data")
	fs.Float64Var(&conf.SigmaOut, "sigma_out", conf.SigmaOut, "observation noise of the data, 0 for none")
	fs.IntVar(&conf.NLatent, "n_latent", conf.NLatent, "latent dimension of the data")
	fs.IntVar(&conf.NIn, "n_in", conf.NIn, "observed dimension of the data")
	fs.IntVar(&conf.NNeurons, "n_neurons", conf.NNeurons, "neurons in the latent layer")
	fs.IntVar(&conf.NSample, "n_sample", conf.NSample, "training steps")
	fs.IntVar(&conf.NTest, "n_test", conf.NTest, "test steps")
	fs.IntVar(&conf.NCompare, "n_compare", conf.NCompare, "steps of each SNR comparison")
	fs.Float64Var(&conf.Dt, "dt", conf.Dt, "time step of the data")
	fs.IntVar(&conf.EpochNum, "epoch_num", conf.EpochNum, "training epochs")
	fs.IntVar(&conf.EpochNumSNR, "epoch_num_snr", conf.EpochNumSNR, "epochs of each SNR comparison")
	fs.Int64Var(&conf.Seed, "seed", conf.Seed, "seed of the standard and SNR modes")
	fs.BoolVar(&conf.Save, "save", conf.Save, "save the result")
	fs.BoolVar(&conf.Local, "local", conf.Local, "save under the local file name")
	fs.IntVar(&conf.ArrayNum, "array_num", conf.ArrayNum, "job array index, appended to the file name")
	fs.StringVar(&conf.OutputDir, "out", conf.OutputDir, "output directory")
	fs.BoolVar(&conf.Quiet, "quiet", conf.Quiet, "no progress reports")
	fs.StringVar(&o.gif, "gif", "", "write the latent activity of the training run to this GIF")
	fs.StringVar(&o.dot, "dot", "", "write the trained network as graphviz to this file")
	fs.StringVar(&o.stats, "stats", "", "write the checkpoint statistics to this CSV")
	fs.BoolVar(&o.verbose, "v", false, "print the experiment log when done")
	return fs
}

func main() {
	conf := impression.DefaultConfig()
	conf.Save = true
	var o outputs
	newFlagSet(&conf, &o).Parse(os.Args[1:])

	if o.gif != "" {
		f, err := os.Create(o.gif)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		enc := gif.NewGifEncoder(600, 1200)
		enc.Writer = f
		conf.OutputEncoder = enc
	}

	if err := conf.Validate(); err != nil {
		log.Fatalf("%+v", err)
	}
	e := impression.New(conf)
	res, err := e.Run()
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if o.verbose {
		e.Log(os.Stdout)
	}

	if o.dot != "" {
		if err := ioutil.WriteFile(o.dot, []byte(res.Network.ToDot()), 0644); err != nil {
			log.Fatal(err)
		}
	}
	if o.stats != "" {
		if err := e.Dump(o.stats); err != nil {
			log.Fatalf("%+v", err)
		}
	}
	if n := len(res.LossMean); n > 0 {
		fmt.Printf("final mean test loss %v over %d checkpoints\n", res.LossMean[n-1], n)
	}
}
