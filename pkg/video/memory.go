package video

import (
	"context"
	"fmt"
	"time"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/common"
)

// MemoryUsage reports the fraction (0..1) of total memory currently in use.
type MemoryUsage func() (float64, error)

// EncodeWithMemoryConstraints gates a transcode behind its own memory
// thresholds: video encoding is memory-intensive enough to warrant checks
// beyond the per-item 85/90 checks the orchestrator already applies to
// every task. At >95% used it refuses outright; at >90% it sleeps 1s; at
// >85% it sleeps 500ms.
func EncodeWithMemoryConstraints(ctx context.Context, enc codec.VideoEncoder, input, output string, videoPreset, crf int, usage MemoryUsage) error {
	frac, err := usage()
	if err == nil {
		switch {
		case frac > 0.95:
			return common.Wrap(common.KindEncodeFailed, input, fmt.Errorf("insufficient memory to start video encoding (%.0f%% used)", frac*100))
		case frac > 0.90:
			time.Sleep(1000 * time.Millisecond)
		case frac > 0.85:
			time.Sleep(500 * time.Millisecond)
		}
	}
	return Transcode(ctx, enc, input, output, videoPreset, crf)
}
