package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/pricerange/schema"
)

// Synthetic generates n phones with every feature drawn uniformly from its
// domain and a price range given by the ram quartile, so that ram carries
// nearly all of the signal as in the reference dataset. Same seed, same
// table. n <= 0 yields an empty table.
func Synthetic(n int, seed uint64) *Table {
	if n <= 0 {
		return &Table{X: &mat.Dense{}, Y: []int{}}
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	domains := schema.Domains()
	ramIdx, _ := schema.Index("ram")
	ram := domains[ramIdx]
	band := (ram.Max - ram.Min) / schema.NumClasses

	X := mat.NewDense(n, schema.NumFeatures, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		row := X.RawRowView(i)
		for j, d := range domains {
			switch d.Kind {
			case schema.Binary:
				row[j] = float64(rng.IntN(2))
			case schema.Int:
				row[j] = math.Round(d.Min + rng.Float64()*(d.Max-d.Min))
			default:
				row[j] = math.Round((d.Min+rng.Float64()*(d.Max-d.Min))*10) / 10
			}
		}
		k := int((row[ramIdx] - ram.Min) / band)
		if k >= schema.NumClasses {
			k = schema.NumClasses - 1
		}
		y[i] = k
	}
	return &Table{X: X, Y: y}
}
