package speaker

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"adsplice/internal/services"
)

// Face is one detected face bounding box in pixel coordinates.
type Face struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Area returns the box area in pixels.
func (f Face) Area() float64 {
	return float64(f.Width) * float64(f.Height)
}

// Center returns the box center in pixel coordinates.
func (f Face) Center() (float64, float64) {
	return float64(f.X) + float64(f.Width)/2, float64(f.Y) + float64(f.Height)/2
}

// Detector finds faces in a still image.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]Face, error)
}

// CLIDetector shells out to a facedetect-style binary that prints one
// "x y w h" line per detected face.
type CLIDetector struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCLIDetector constructs a detector around the given binary.
func NewCLIDetector(binary string) *CLIDetector {
	if binary == "" {
		binary = "facedetect"
	}
	return &CLIDetector{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (d *CLIDetector) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	d.commandRunner = runner
}

// Detect runs the detector binary on one image. An exit status of 2
// means no faces, which is a valid empty result, not an error.
func (d *CLIDetector) Detect(ctx context.Context, imagePath string) ([]Face, error) {
	output, err := d.run(ctx, d.binary, imagePath)
	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok && exitErr.ExitCode() == 2 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: face detect: %v", services.ErrExternalTool, err)
	}
	return parseFaceLines(string(output))
}

func (d *CLIDetector) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if d.commandRunner != nil {
		return d.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.Output()
}

func asExitError(err error, target **exec.ExitError) bool {
	for err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			*target = exitErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func parseFaceLines(output string) ([]Face, error) {
	var faces []Face
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("face detect: malformed output line %q", line)
		}
		values := make([]int, 4)
		for i := 0; i < 4; i++ {
			value, err := strconv.Atoi(fields[i])
			if err != nil {
				return nil, fmt.Errorf("face detect: malformed output line %q: %w", line, err)
			}
			values[i] = value
		}
		faces = append(faces, Face{X: values[0], Y: values[1], Width: values[2], Height: values[3]})
	}
	return faces, nil
}

// ScoreFaces converts the largest detected face into a 0..1 frame
// quality score. A face covering 10% or more of the frame saturates at
// 1.0; no faces score 0.
func ScoreFaces(faces []Face, frameWidth, frameHeight int) float64 {
	if len(faces) == 0 || frameWidth <= 0 || frameHeight <= 0 {
		return 0
	}
	var best float64
	for _, face := range faces {
		if area := face.Area(); area > best {
			best = area
		}
	}
	ratio := best / (float64(frameWidth) * float64(frameHeight))
	return math.Min(ratio*10, 1.0)
}
