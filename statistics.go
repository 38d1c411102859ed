package impression

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Statistics are the per checkpoint measurements of an experiment.
type Statistics struct {
	Checkpoints   []int     // training step at which each snapshot was taken
	TestLoss      []float64 // mean loss of the snapshot over the test data
	SNRImpression []float64 // mean SNR of the impression updates, SNR mode only
	SNRReinforce  []float64 // mean SNR of the REINFORCE updates, SNR mode only
}

func makeStatistics() Statistics {
	return Statistics{
		Checkpoints: make([]int, 0, 20),
		TestLoss:    make([]float64, 0, 20),
	}
}

func (s *Statistics) update(step int, loss float64) {
	s.Checkpoints = append(s.Checkpoints, step)
	s.TestLoss = append(s.TestLoss, loss)
}

func (s *Statistics) updateSNR(impression, reinforce float64) {
	s.SNRImpression = append(s.SNRImpression, impression)
	s.SNRReinforce = append(s.SNRReinforce, reinforce)
}

// Dump writes one CSV row per checkpoint.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	withSNR := len(s.SNRImpression) == len(s.Checkpoints) && len(s.SNRImpression) > 0
	header := []string{"checkpoint", "test_loss"}
	if withSNR {
		header = append(header, "snr_impression", "snr_reinforce")
	}
	if err := w.Write(header); err != nil {
		return errors.WithStack(err)
	}
	var records [][]string
	for i, step := range s.Checkpoints {
		record := []string{strconv.Itoa(step), strconv.FormatFloat(s.TestLoss[i], 'g', -1, 64)}
		if withSNR {
			record = append(record,
				strconv.FormatFloat(s.SNRImpression[i], 'g', -1, 64),
				strconv.FormatFloat(s.SNRReinforce[i], 'g', -1, 64))
		}
		records = append(records, record)
	}
	if err := w.WriteAll(records); err != nil {
		return errors.WithStack(err)
	}
	w.Flush()
	return errors.WithStack(w.Error())
}
