package inference

import (
	"context"
	"strconv"
	"testing"

	"github.com/ezoic/pricerange/dataset"
	"github.com/ezoic/pricerange/sklearn/inspection"
)

func benchSamples(n int) [][]float64 {
	tbl := dataset.Synthetic(n, 99)
	out := make([][]float64, n)
	for i := range out {
		out[i] = append([]float64(nil), tbl.X.RawRowView(i)...)
	}
	return out
}

func BenchmarkPredict(b *testing.B) {
	samples := benchSamples(512)

	for _, bc := range []struct {
		name  string
		cache int
	}{
		{"Cached", defaultCacheSize},
		{"Uncached", 0},
	} {
		b.Run(bc.name, func(b *testing.B) {
			svc, _ := trainedService(b, WithCacheSize(bc.cache))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := svc.Predict(samples[i%len(samples)]); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkPredictParallel(b *testing.B) {
	samples := benchSamples(512)
	svc, _ := trainedService(b, WithCacheSize(0))
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := svc.Predict(samples[i%len(samples)]); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}

func BenchmarkPredictBatch(b *testing.B) {
	svc, _ := trainedService(b)
	for _, size := range []int{1, 64, 1024} {
		samples := benchSamples(size)
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := svc.PredictBatch(samples); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExplain(b *testing.B) {
	if testing.Short() {
		b.Skip("explain benchmark is slow")
	}
	svc, _ := trainedService(b)
	for _, workers := range []int{1, 4} {
		b.Run(strconv.Itoa(workers)+"_workers", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := svc.Explain(context.Background(),
					inspection.WithNRepeats(2), inspection.WithWorkers(workers)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
