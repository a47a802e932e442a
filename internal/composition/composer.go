package composition

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"adsplice/internal/logging"
	"adsplice/internal/services"
)

// Request describes one ad insertion compose job. Width, Height, and
// FPS come from the source video's probed metadata; every segment is
// normalized to them so the concat step can stream-copy.
type Request struct {
	SourcePath    string
	AdPath        string
	InsertionTime float64
	OutputPath    string

	Width  int
	Height int
	FPS    float64
}

// Composer splits the source video at the insertion point and joins
// head, ad, and tail into the final output with ffmpeg.
type Composer struct {
	ffmpegBinary  string
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewComposer constructs a composer using the given ffmpeg binary.
func NewComposer(ffmpegBinary string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Composer{ffmpegBinary: ffmpegBinary, logger: logger}
}

// WithCommandRunner sets a custom command runner (for testing).
func (c *Composer) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	c.commandRunner = runner
}

func (c *Composer) run(ctx context.Context, args ...string) error {
	if c.commandRunner != nil {
		return c.commandRunner(ctx, c.ffmpegBinary, args...)
	}
	cmd := exec.CommandContext(ctx, c.ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// InsertAd produces the final video: source head up to the insertion
// time, then the ad, then the source tail. Intermediate segments are
// re-encoded to the source's dimensions and frame rate; the final join
// is a stream copy.
func (c *Composer) InsertAd(ctx context.Context, req Request) error {
	if req.InsertionTime <= 0 {
		return fmt.Errorf("%w: compose: invalid insertion time %.2f", services.ErrValidation, req.InsertionTime)
	}
	if req.Width <= 0 || req.Height <= 0 || req.FPS <= 0 {
		return fmt.Errorf("%w: compose: missing normalization parameters", services.ErrValidation)
	}
	for _, path := range []string{req.SourcePath, req.AdPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: compose: %s", services.ErrNotFound, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("compose: create output dir: %w", err)
	}

	tempDir, err := os.MkdirTemp(filepath.Dir(req.OutputPath), "compose-*")
	if err != nil {
		return fmt.Errorf("compose: create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	head := filepath.Join(tempDir, "part_head.mp4")
	ad := filepath.Join(tempDir, "part_ad.mp4")
	tail := filepath.Join(tempDir, "part_tail.mp4")

	c.logger.Info("splitting source video",
		logging.String("source", filepath.Base(req.SourcePath)),
		logging.Float64("insertion_time", req.InsertionTime))

	if err := c.encodeSegment(ctx, req, req.SourcePath, head, 0, req.InsertionTime); err != nil {
		return fmt.Errorf("compose: encode head: %w", err)
	}
	if err := c.encodeSegment(ctx, req, req.AdPath, ad, 0, 0); err != nil {
		return fmt.Errorf("compose: encode ad: %w", err)
	}
	if err := c.encodeSegment(ctx, req, req.SourcePath, tail, req.InsertionTime, 0); err != nil {
		return fmt.Errorf("compose: encode tail: %w", err)
	}

	listPath := filepath.Join(tempDir, "concat.txt")
	if err := writeConcatList(listPath, head, ad, tail); err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	c.logger.Info("joining segments", logging.String("output", filepath.Base(req.OutputPath)))
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		req.OutputPath,
	}
	if err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("compose: concat: %w", err)
	}
	return nil
}

// encodeSegment re-encodes a time slice of source to the normalization
// parameters. startSec 0 with duration 0 encodes the whole file;
// duration 0 with a start encodes from the start to the end.
func (c *Composer) encodeSegment(ctx context.Context, req Request, source, dest string, startSec, endSec float64) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
	}
	if startSec > 0 {
		args = append(args, "-ss", formatSeconds(startSec))
	}
	if endSec > 0 {
		args = append(args, "-to", formatSeconds(endSec))
	}
	args = append(args,
		"-i", source,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%s",
			req.Width, req.Height, req.Width, req.Height, formatFPS(req.FPS)),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-ar", "44100",
		"-ac", "2",
		dest,
	)
	return c.run(ctx, args...)
}

func writeConcatList(listPath string, segments ...string) error {
	var b strings.Builder
	for _, segment := range segments {
		fmt.Fprintf(&b, "file '%s'\n", segment)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
