package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReporterDeliversEveryUpdate(t *testing.T) {
	var mu sync.Mutex
	var names []string

	r := NewReporter(5, func(done, total int, name string) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, name)
		require.Equal(t, 5, total)
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Report("file")
		}(i)
	}
	wg.Wait()
	r.Close()

	require.Len(t, names, 5)
}

func TestReporterCountsStrictlyIncreasing(t *testing.T) {
	const total = 32
	var counts []int
	r := NewReporter(total, func(done, tot int, name string) {
		counts = append(counts, done)
	})

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Report("f")
		}()
	}
	wg.Wait()
	r.Close()

	require.Len(t, counts, total)
	for i, c := range counts {
		require.Equal(t, i+1, c, "completed count must rise by exactly one per callback")
	}
}

func TestReporterNilSinkDrains(t *testing.T) {
	r := NewReporter(2, nil)
	r.Report("a")
	r.Report("b")
	r.Close()
}
