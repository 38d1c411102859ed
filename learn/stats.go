package learn

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

var nan = math.NaN()

// ErrDegenerateStatistics is returned alongside complete statistics when some
// recognition parameter has zero update variance.
var ErrDegenerateStatistics = errors.New("degenerate statistics: zero update variance")

// Stats are per-parameter moments of the recognition updates, indexed by
// layer then by recognition parameter.
type Stats struct {
	Mean     [][]*tensor.Dense
	Variance [][]*tensor.Dense
	SNR      [][]*tensor.Dense
}

// MeanSNR is the mean of every finite SNR entry, NaN if there are none.
func (s Stats) MeanSNR() float64 {
	var finite []float64
	for _, layer := range s.SNR {
		for _, t := range layer {
			for _, v := range data(t) {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					finite = append(finite, v)
				}
			}
		}
	}
	if len(finite) == 0 {
		return nan
	}
	return floats.Sum(finite) / float64(len(finite))
}
