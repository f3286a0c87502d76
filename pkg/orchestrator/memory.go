package orchestrator

import (
	"math"

	"github.com/shirou/gopsutil/v3/mem"
)

// CheckMemoryUsage returns the fraction (0..1) of system memory currently in
// use. A read failure is reported as 0: a gauge that cannot be read must not
// stall the pipeline.
func CheckMemoryUsage() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	if v.Total == 0 {
		return 0, nil
	}
	return float64(v.Used) / float64(v.Total), nil
}

// optimalThreadCount scales a base worker count down under memory pressure.
func optimalThreadCount(base int) int {
	usage, err := CheckMemoryUsage()
	if err != nil {
		return base
	}
	switch {
	case usage > 0.90:
		return max1(base / 4)
	case usage > 0.80:
		return max1(base / 2)
	case usage > 0.70:
		return max1(int(math.Ceil(float64(base) * 0.75)))
	default:
		return base
	}
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
