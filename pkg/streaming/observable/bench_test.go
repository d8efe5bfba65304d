package observable_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
)

func benchData(size int) []int {
	data := make([]int, size)
	for i := range data {
		data[i] = i
	}
	return data
}

// BenchmarkPipeMapFilter measures synchronous throughput of a Map and
// Filter chain built with Pipe.
func BenchmarkPipeMapFilter(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		data := benchData(size)
		double := observable.Map(func(n int) int { return n * 2 })

		b.Run("size-"+strconv.Itoa(size), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var sum int
				src := observable.Pipe(
					double(observable.FromSlice(data)),
					observable.Filter(func(n int) bool { return n%3 == 0 }),
				)
				src.SubscribeNext(func(n int) { sum += n })
				if sum < 0 {
					b.Fatal("unexpected sum")
				}
			}
		})
	}
}

// BenchmarkToSlice measures collecting a pipeline into a slice.
func BenchmarkToSlice(b *testing.B) {
	data := benchData(1000)
	even := observable.Filter(func(n int) bool { return n%2 == 0 })

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := observable.ToSlice(context.Background(), even(observable.FromSlice(data))); err != nil {
			b.Fatal(err)
		}
	}
}
