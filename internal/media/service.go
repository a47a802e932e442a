package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"adsplice/internal/services"
)

// Metadata describes a probed media file.
type Metadata struct {
	Width      int
	Height     int
	FPS        float64
	Duration   float64
	Codec      string
	AudioCodec string
	HasAudio   bool
	SizeBytes  int64
}

// Service wraps the ffmpeg and ffprobe binaries for metadata probing,
// audio extraction, and frame extraction.
type Service struct {
	ffmpegBinary  string
	ffprobeBinary string

	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService constructs a media service using the given binaries.
func NewService(ffmpegBinary, ffprobeBinary string) *Service {
	return &Service{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe returns the metadata of a media file.
func (s *Service) Probe(ctx context.Context, path string) (Metadata, error) {
	var meta Metadata
	if _, err := os.Stat(path); err != nil {
		return meta, fmt.Errorf("%w: probe: %s", services.ErrNotFound, path)
	}
	output, err := s.run(ctx, s.ffprobeBinary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return meta, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}
	var probed ffprobeOutput
	if err := json.Unmarshal(output, &probed); err != nil {
		return meta, fmt.Errorf("probe %s: decode output: %w", filepath.Base(path), err)
	}
	for _, stream := range probed.Streams {
		switch stream.CodecType {
		case "video":
			if meta.Codec == "" {
				meta.Codec = stream.CodecName
				meta.Width = stream.Width
				meta.Height = stream.Height
				meta.FPS = parseFrameRate(stream.AvgFrameRate)
			}
		case "audio":
			if !meta.HasAudio {
				meta.HasAudio = true
				meta.AudioCodec = stream.CodecName
			}
		}
	}
	meta.Duration, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	meta.SizeBytes, _ = strconv.ParseInt(probed.Format.Size, 10, 64)
	if meta.Duration <= 0 {
		return meta, fmt.Errorf("%w: probe %s: no duration reported", services.ErrValidation, filepath.Base(path))
	}
	return meta, nil
}

// parseFrameRate parses ffprobe's "num/den" rate notation.
func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		value, _ := strconv.ParseFloat(rate, 64)
		return value
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// ExtractAudio extracts the full audio track as PCM WAV at the given
// sample rate. Mono output when mono is true, which speech recognition
// wants; stereo otherwise.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string, sampleRate int, mono bool) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: extract audio: invalid sample rate %d", services.ErrValidation, sampleRate)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract audio: create dest dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
	}
	if mono {
		args = append(args, "-ac", "1")
	}
	args = append(args,
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	)
	if _, err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

// ExtractAudioClip extracts a time-bounded slice of the audio track as
// PCM WAV. Used to cut the voice reference sample for cloning.
func (s *Service) ExtractAudioClip(ctx context.Context, source, dest string, startSec, durationSec float64, sampleRate int) error {
	if durationSec <= 0 {
		return fmt.Errorf("%w: extract clip: invalid duration %.2f", services.ErrValidation, durationSec)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract clip: create dest dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(durationSec),
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
	if _, err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("extract clip: %w", err)
	}
	return nil
}

// ExtractFrame writes the frame nearest the timestamp as a still image.
func (s *Service) ExtractFrame(ctx context.Context, source string, timestamp float64, dest string) error {
	if timestamp < 0 {
		return fmt.Errorf("%w: extract frame: negative timestamp %.2f", services.ErrValidation, timestamp)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract frame: create dest dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(timestamp),
		"-i", source,
		"-frames:v", "1",
		"-q:v", "2",
		dest,
	}
	if _, err := s.run(ctx, s.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("extract frame: %w", err)
	}
	return nil
}

// ExtractFrames samples count frames evenly across [startSec, endSec]
// and writes them under destDir. Returns the written paths paired with
// their timestamps, in time order.
func (s *Service) ExtractFrames(ctx context.Context, source string, startSec, endSec float64, count int, destDir string) ([]FrameSample, error) {
	if startSec >= endSec {
		return nil, fmt.Errorf("%w: extract frames: invalid range %.2f >= %.2f", services.ErrValidation, startSec, endSec)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: extract frames: invalid count %d", services.ErrValidation, count)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("extract frames: create dest dir: %w", err)
	}
	samples := make([]FrameSample, 0, count)
	for i := 0; i < count; i++ {
		timestamp := startSec
		if count > 1 {
			timestamp = startSec + (endSec-startSec)*float64(i)/float64(count-1)
		}
		dest := filepath.Join(destDir, fmt.Sprintf("frame_%03d.jpg", i))
		if err := s.ExtractFrame(ctx, source, timestamp, dest); err != nil {
			return nil, err
		}
		samples = append(samples, FrameSample{Path: dest, Timestamp: timestamp})
	}
	return samples, nil
}

// FrameSample is one extracted still frame and its source timestamp.
type FrameSample struct {
	Path      string
	Timestamp float64
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
