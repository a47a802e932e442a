package generation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"adsplice/internal/services/comfy"
)

// ErrOutputMissing reports that a job finished successfully but its
// result lacks the output group the stage expects. Treated like a remote
// failure by the orchestrator.
var ErrOutputMissing = errors.New("expected output missing")

// StageID names one remote generation capability.
type StageID string

const (
	StageImageClean   StageID = "image_clean"
	StageVoiceClone   StageID = "voice_clone"
	StageDigitalHuman StageID = "digital_human"
)

// StageInput carries the uploaded asset names and scalars an adapter
// binds into its job graph. Fields irrelevant to a given stage are
// ignored by it.
type StageInput struct {
	ImageName string
	AudioName string
	Script    string
	FrameRate int
}

// StageAdapter translates a domain request into a job-template
// instantiation and pulls the domain result back out of a completed job.
// Adapters are stateless beyond their template and know nothing about
// retries or fallback; that policy lives in the Orchestrator.
type StageAdapter interface {
	ID() StageID
	BuildRequest(input StageInput) (comfy.JobRequest, error)
	Extract(status comfy.JobStatus) (comfy.AssetRef, error)
}

// extractGroup returns the first asset of the expected output group.
// Pure: calling it twice on the same status yields the identical ref.
func extractGroup(stage StageID, status comfy.JobStatus, group string) (comfy.AssetRef, error) {
	assets := status.Outputs[group]
	if len(assets) == 0 {
		available := make([]string, 0, len(status.Outputs))
		for name := range status.Outputs {
			available = append(available, name)
		}
		sort.Strings(available)
		return comfy.AssetRef{}, fmt.Errorf("%w: stage %s expected %q outputs, got [%s]",
			ErrOutputMissing, stage, group, strings.Join(available, " "))
	}
	return assets[0], nil
}

func newCorrelationID(stage StageID) string {
	return string(stage) + "-" + uuid.NewString()
}

// ImageCleanAdapter removes text, watermarks, and overlay clutter from a
// keyframe. Prompt wording lives in the template; only the image slot is
// bound here.
type ImageCleanAdapter struct {
	template *comfy.Template
}

func NewImageCleanAdapter(template *comfy.Template) *ImageCleanAdapter {
	return &ImageCleanAdapter{template: template}
}

func (a *ImageCleanAdapter) ID() StageID { return StageImageClean }

func (a *ImageCleanAdapter) BuildRequest(input StageInput) (comfy.JobRequest, error) {
	if input.ImageName == "" {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: image asset name required", a.ID())
	}
	graph, err := a.template.Bind(comfy.SlotBindings{
		"LoadImage": {"image": input.ImageName},
	})
	if err != nil {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: %w", a.ID(), err)
	}
	return comfy.JobRequest{Graph: graph, CorrelationID: newCorrelationID(a.ID())}, nil
}

func (a *ImageCleanAdapter) Extract(status comfy.JobStatus) (comfy.AssetRef, error) {
	return extractGroup(a.ID(), status, "images")
}

// VoiceCloneAdapter synthesizes the ad script in the source speaker's
// voice from a short reference clip.
type VoiceCloneAdapter struct {
	template *comfy.Template
}

func NewVoiceCloneAdapter(template *comfy.Template) *VoiceCloneAdapter {
	return &VoiceCloneAdapter{template: template}
}

func (a *VoiceCloneAdapter) ID() StageID { return StageVoiceClone }

func (a *VoiceCloneAdapter) BuildRequest(input StageInput) (comfy.JobRequest, error) {
	if input.AudioName == "" {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: audio asset name required", a.ID())
	}
	if strings.TrimSpace(input.Script) == "" {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: script text required", a.ID())
	}
	graph, err := a.template.Bind(comfy.SlotBindings{
		"LoadAudio":            {"audio": input.AudioName},
		"MultiLinePromptIndex": {"multi_line_prompt": input.Script},
	})
	if err != nil {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: %w", a.ID(), err)
	}
	return comfy.JobRequest{Graph: graph, CorrelationID: newCorrelationID(a.ID())}, nil
}

func (a *VoiceCloneAdapter) Extract(status comfy.JobStatus) (comfy.AssetRef, error) {
	return extractGroup(a.ID(), status, "audio")
}

// DigitalHumanAdapter animates the cleaned portrait with the cloned
// audio. The video-combine node labels its mp4 output "gifs"; that label
// is part of the executor contract.
type DigitalHumanAdapter struct {
	template *comfy.Template
}

func NewDigitalHumanAdapter(template *comfy.Template) *DigitalHumanAdapter {
	return &DigitalHumanAdapter{template: template}
}

func (a *DigitalHumanAdapter) ID() StageID { return StageDigitalHuman }

func (a *DigitalHumanAdapter) BuildRequest(input StageInput) (comfy.JobRequest, error) {
	if input.ImageName == "" {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: image asset name required", a.ID())
	}
	if input.AudioName == "" {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: audio asset name required", a.ID())
	}
	bindings := comfy.SlotBindings{
		"LoadImage": {"image": input.ImageName},
		"LoadAudio": {"audio": input.AudioName},
	}
	if input.FrameRate > 0 {
		bindings["VHS_VideoCombine"] = map[string]any{"frame_rate": input.FrameRate}
	}
	graph, err := a.template.Bind(bindings)
	if err != nil {
		return comfy.JobRequest{}, fmt.Errorf("stage %s: %w", a.ID(), err)
	}
	return comfy.JobRequest{Graph: graph, CorrelationID: newCorrelationID(a.ID())}, nil
}

func (a *DigitalHumanAdapter) Extract(status comfy.JobStatus) (comfy.AssetRef, error) {
	return extractGroup(a.ID(), status, "gifs")
}
