package codec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/legeapp/openarc/pkg/common"
)

// ExecVideoEncoder shells out to ffmpeg on PATH.
type ExecVideoEncoder struct {
	Bin string
}

func NewExecVideoEncoder() *ExecVideoEncoder {
	return &ExecVideoEncoder{Bin: "ffmpeg"}
}

func (e *ExecVideoEncoder) bin() string {
	if e.Bin != "" {
		return e.Bin
	}
	return "ffmpeg"
}

func (e *ExecVideoEncoder) EncodeFile(ctx context.Context, input, output string, opts VideoEncodeOptions) error {
	args := []string{
		"-y", "-i", input,
		"-c:v", opts.Codec.ffmpegName(),
		"-preset", opts.Speed.ffmpegPreset(),
		"-crf", fmt.Sprintf("%d", opts.CRF),
	}
	if opts.CopyAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}
	args = append(args, output)

	cmd := exec.CommandContext(ctx, e.bin(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return common.Wrap(common.KindEncodeFailed, input, fmt.Errorf("ffmpeg: %w: %s", err, stderr.String()))
	}
	return nil
}

// Prober runs ffprobe against a video file and reports the raw fields the
// efficiency classifier needs.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// ProbeResult mirrors the subset of ffprobe's stream/format output the
// classifier reads.
type ProbeResult struct {
	Codec         string
	BitrateKbps   float64
	DurationSecs  float64
	Width, Height int
}

// ExecProber invokes ffprobe on PATH and parses its `-of
// default=noprint_wrappers=1` key=value output.
type ExecProber struct {
	Bin string
}

func NewExecProber() *ExecProber {
	return &ExecProber{Bin: "ffprobe"}
}

func (p *ExecProber) bin() string {
	if p.Bin != "" {
		return p.Bin
	}
	return "ffprobe"
}

// Probe runs ffprobe, retrying transient failures (the binary spawning
// under load, a momentarily locked file) up to twice with a short backoff
// before giving up; the overall 5-second analysis watchdog the caller
// applies still bounds the total time spent here.
func (p *ExecProber) Probe(ctx context.Context, path string) (ProbeResult, error) {
	var out []byte
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 2)
	err := backoff.Retry(func() error {
		cmd := exec.CommandContext(ctx, p.bin(),
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=codec_name,bit_rate,width,height,duration",
			"-show_entries", "format=duration,bit_rate",
			"-of", "default=noprint_wrappers=1",
			path,
		)
		o, runErr := cmd.Output()
		if runErr != nil {
			return runErr
		}
		out = o
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return ProbeResult{}, common.Wrap(common.KindProbeTimeout, path, err)
	}
	return parseProbeOutput(string(out)), nil
}
