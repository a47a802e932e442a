package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"adsplice/internal/logging"
	"adsplice/internal/media"
)

// Profiling thresholds matching long-observed talking-head footage.
const (
	DefaultSampleInterval = 5.0

	minAppearanceRatio = 0.5
	minFaceSizeRatio   = 0.03
	clusterMaxDistance = 0.2
	clusterMaxSizeDiff = 0.5
)

// Profile summarizes speaker presence across the sampled video.
type Profile struct {
	SingleSpeaker      bool
	BestFrameTimestamp float64
	BestFramePath      string
	Confidence         float64
	AppearanceRatio    float64
	AvgFaceRatio       float64
	SampledFrames      int
	FramesWithFaces    int
}

// FrameSource extracts evenly spaced still frames from a video.
type FrameSource interface {
	ExtractFrames(ctx context.Context, source string, startSec, endSec float64, count int, destDir string) ([]media.FrameSample, error)
}

// Profiler samples frames across a video, detects faces, and clusters
// them to decide whether the footage is a single-speaker talking head.
type Profiler struct {
	frames         FrameSource
	detector       Detector
	sampleInterval float64
	logger         *slog.Logger
}

// NewProfiler constructs a profiler over the given frame source and
// detector.
func NewProfiler(frames FrameSource, detector Detector, logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Profiler{
		frames:         frames,
		detector:       detector,
		sampleInterval: DefaultSampleInterval,
		logger:         logger,
	}
}

// WithSampleInterval overrides the frame sampling interval in seconds.
func (p *Profiler) WithSampleInterval(seconds float64) *Profiler {
	if seconds > 0 {
		p.sampleInterval = seconds
	}
	return p
}

type faceTrack struct {
	sample media.FrameSample
	face   Face
	// normalized center and size relative to the frame
	x, y, size float64
}

type cluster struct {
	count     int
	avgX      float64
	avgY      float64
	avgSize   float64
	bestTrack faceTrack
}

// Profile samples the video and returns the speaker presence summary.
// frameWidth and frameHeight are the source video's dimensions, needed
// to normalize face positions.
func (p *Profiler) Profile(ctx context.Context, videoPath string, duration float64, frameWidth, frameHeight int, workDir string) (Profile, error) {
	var profile Profile
	if duration <= 0 {
		return profile, fmt.Errorf("profile speaker: invalid duration %.2f", duration)
	}
	if frameWidth <= 0 || frameHeight <= 0 {
		return profile, fmt.Errorf("profile speaker: invalid frame size %dx%d", frameWidth, frameHeight)
	}

	count := int(duration/p.sampleInterval) + 1
	if count < 2 {
		count = 2
	}
	samples, err := p.frames.ExtractFrames(ctx, videoPath, 0, duration, count, workDir)
	if err != nil {
		return profile, fmt.Errorf("profile speaker: sample frames: %w", err)
	}
	profile.SampledFrames = len(samples)

	frameArea := float64(frameWidth) * float64(frameHeight)
	tracks := make([]faceTrack, 0, len(samples))
	for _, sample := range samples {
		faces, err := p.detector.Detect(ctx, sample.Path)
		if err != nil {
			return profile, fmt.Errorf("profile speaker: detect at %.1fs: %w", sample.Timestamp, err)
		}
		if len(faces) == 0 {
			continue
		}
		profile.FramesWithFaces++

		// Only the largest face matters; smaller ones are assumed
		// background.
		largest := faces[0]
		for _, face := range faces[1:] {
			if face.Area() > largest.Area() {
				largest = face
			}
		}
		cx, cy := largest.Center()
		tracks = append(tracks, faceTrack{
			sample: sample,
			face:   largest,
			x:      cx / float64(frameWidth),
			y:      cy / float64(frameHeight),
			size:   largest.Area() / frameArea,
		})
	}

	if len(tracks) == 0 {
		p.logger.Warn("no faces found in sampled frames",
			logging.Int("sampled_frames", profile.SampledFrames))
		return profile, nil
	}

	main := dominantCluster(clusterTracks(tracks))
	profile.AppearanceRatio = float64(main.count) / float64(len(samples))
	profile.AvgFaceRatio = main.avgSize

	if profile.AppearanceRatio < minAppearanceRatio {
		p.logger.Info("dominant face appears too rarely for a talking head",
			logging.Float64("appearance_ratio", profile.AppearanceRatio))
		return profile, nil
	}
	if main.avgSize < minFaceSizeRatio {
		p.logger.Info("dominant face too small for a talking head",
			logging.Float64("avg_face_ratio", main.avgSize))
		return profile, nil
	}

	profile.SingleSpeaker = true
	profile.BestFrameTimestamp = main.bestTrack.sample.Timestamp
	profile.BestFramePath = main.bestTrack.sample.Path
	profile.Confidence = profile.AppearanceRatio
	return profile, nil
}

// clusterTracks groups face observations by normalized position and
// size, assuming the same person stays roughly in place across frames.
func clusterTracks(tracks []faceTrack) []*cluster {
	var clusters []*cluster
	for _, track := range tracks {
		var matched *cluster
		for _, c := range clusters {
			dist := math.Hypot(track.x-c.avgX, track.y-c.avgY)
			sizeDiff := math.Abs(track.size-c.avgSize) / math.Max(c.avgSize, 0.01)
			if dist < clusterMaxDistance && sizeDiff < clusterMaxSizeDiff {
				matched = c
				break
			}
		}
		if matched == nil {
			clusters = append(clusters, &cluster{
				count:     1,
				avgX:      track.x,
				avgY:      track.y,
				avgSize:   track.size,
				bestTrack: track,
			})
			continue
		}
		n := float64(matched.count)
		matched.avgX = (matched.avgX*n + track.x) / (n + 1)
		matched.avgY = (matched.avgY*n + track.y) / (n + 1)
		matched.avgSize = (matched.avgSize*n + track.size) / (n + 1)
		matched.count++
		if track.size > matched.bestTrack.size {
			matched.bestTrack = track
		}
	}
	return clusters
}

func dominantCluster(clusters []*cluster) *cluster {
	main := clusters[0]
	for _, c := range clusters[1:] {
		if c.count > main.count {
			main = c
		}
	}
	return main
}
