package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TranscriptSegment is one timed line of the source video's transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// InsertionCandidate is one model-recommended ad insertion point.
// Priority 1 is the strongest recommendation.
type InsertionCandidate struct {
	Time           float64 `json:"time"`
	Priority       int     `json:"priority"`
	Reason         string  `json:"reason"`
	ContextBefore  string  `json:"context_before"`
	ContextAfter   string  `json:"context_after"`
	TransitionHint string  `json:"transition_hint"`
}

// VideoAnalysis is the model's read of the source video plus its ranked
// insertion point recommendations.
type VideoAnalysis struct {
	Theme           string               `json:"theme"`
	Category        string               `json:"category"`
	KeyPoints       []string             `json:"key_points"`
	Tone            string               `json:"tone"`
	TargetAudience  string               `json:"target_audience"`
	InsertionPoints []InsertionCandidate `json:"insertion_points"`
	Raw             string               `json:"-"`
}

// AnalysisRequest bounds the content analysis call.
type AnalysisRequest struct {
	Segments      []TranscriptSegment
	VideoDuration float64
	AvoidStart    float64
	AvoidEnd      float64
	NumCandidates int
}

// AnalyzeContent asks the model to characterize the video and recommend
// insertion points. Candidates are returned sorted by priority; points
// falling inside the avoid margins are dropped rather than surfaced.
func (c *Client) AnalyzeContent(ctx context.Context, req AnalysisRequest) (VideoAnalysis, error) {
	var empty VideoAnalysis
	if len(req.Segments) == 0 {
		return empty, errors.New("llm analyze: transcript required")
	}
	if req.VideoDuration <= 0 {
		return empty, errors.New("llm analyze: video duration required")
	}
	if req.NumCandidates <= 0 {
		req.NumCandidates = 3
	}

	content, err := c.CompleteJSON(ctx, contentAnalysisSystemPrompt, buildAnalysisUserPrompt(req))
	if err != nil {
		return empty, err
	}
	var parsed VideoAnalysis
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("llm analyze: parse payload: %w", err)
	}
	parsed.Raw = content
	parsed.Theme = strings.TrimSpace(parsed.Theme)
	parsed.Category = strings.TrimSpace(parsed.Category)
	parsed.Tone = strings.TrimSpace(parsed.Tone)
	parsed.InsertionPoints = filterCandidates(parsed.InsertionPoints, req)
	if len(parsed.InsertionPoints) == 0 {
		return empty, errors.New("llm analyze: no usable insertion points in response")
	}
	return parsed, nil
}

// filterCandidates drops candidates outside the usable window and orders
// the survivors by priority, then time.
func filterCandidates(candidates []InsertionCandidate, req AnalysisRequest) []InsertionCandidate {
	usable := make([]InsertionCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Time < req.AvoidStart {
			continue
		}
		if candidate.Time > req.VideoDuration-req.AvoidEnd {
			continue
		}
		usable = append(usable, candidate)
	}
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Priority != usable[j].Priority {
			return usable[i].Priority < usable[j].Priority
		}
		return usable[i].Time < usable[j].Time
	})
	if len(usable) > req.NumCandidates {
		usable = usable[:req.NumCandidates]
	}
	return usable
}

// ScriptRequest carries the video context and product facts the script
// generator needs.
type ScriptRequest struct {
	Theme          string
	Category       string
	Tone           string
	ContextBefore  string
	ContextAfter   string
	TransitionHint string

	Product       string
	SellingPoints []string
	Template      string

	MinLength int
	MaxLength int
}

const scriptTemperature = 0.8

// GenerateAdScript produces a short spoken ad line that fits the
// surrounding transcript. Responses shorter than MinLength fall back to
// the catalog template; longer ones are truncated to MaxLength runes.
func (c *Client) GenerateAdScript(ctx context.Context, req ScriptRequest) (string, error) {
	if strings.TrimSpace(req.Product) == "" {
		return "", errors.New("llm script: product required")
	}
	if req.MinLength <= 0 {
		req.MinLength = 15
	}
	if req.MaxLength <= req.MinLength {
		req.MaxLength = 2 * req.MinLength
	}

	content, err := c.CompleteText(ctx, scriptSystemPrompt, buildScriptUserPrompt(req), scriptTemperature)
	if err != nil {
		return "", err
	}
	script := strings.TrimSpace(content)
	if runes := []rune(script); len(runes) < req.MinLength {
		if strings.TrimSpace(req.Template) == "" {
			return "", fmt.Errorf("llm script: response too short (%d runes) and no template to fall back to", len(runes))
		}
		return strings.TrimSpace(req.Template), nil
	} else if len(runes) > req.MaxLength {
		script = strings.TrimSpace(string(runes[:req.MaxLength]))
	}
	return script, nil
}

func buildAnalysisUserPrompt(req AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following video transcript.\n\n")
	fmt.Fprintf(&b, "Video duration: %.1f seconds\n", req.VideoDuration)
	fmt.Fprintf(&b, "Avoid margins: first %.1f seconds, last %.1f seconds\n\n", req.AvoidStart, req.AvoidEnd)
	b.WriteString("Transcript:\n")
	for _, seg := range req.Segments {
		fmt.Fprintf(&b, "[%.1fs - %.1fs] %s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text))
	}
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, `Return a JSON object with these fields:
{
  "theme": "one-sentence description of the video's theme",
  "category": "content category (tech, education, lifestyle, entertainment, ...)",
  "key_points": ["point 1", "point 2", "point 3"],
  "tone": "tone of voice (formal, casual, humorous, professional, ...)",
  "target_audience": "who the video is for",
  "insertion_points": [
    {
      "time": <timestamp in seconds, float>,
      "priority": <1 = strongest, 2 = next, ...>,
      "reason": "why this timestamp works",
      "context_before": "the 2-3 sentences spoken before this point",
      "context_after": "the 1-2 sentences spoken after this point",
      "transition_hint": "how to segue into the ad naturally"
    }
  ]
}
Provide exactly %d insertion points.`, req.NumCandidates)
	return b.String()
}

func buildScriptUserPrompt(req ScriptRequest) string {
	var b strings.Builder
	b.WriteString("Video:\n")
	fmt.Fprintf(&b, "- theme: %s\n", req.Theme)
	fmt.Fprintf(&b, "- category: %s\n", req.Category)
	fmt.Fprintf(&b, "- tone: %s\n\n", req.Tone)
	b.WriteString("Product:\n")
	fmt.Fprintf(&b, "- name: %s\n", req.Product)
	if len(req.SellingPoints) > 0 {
		fmt.Fprintf(&b, "- selling points: %s\n", strings.Join(req.SellingPoints, "; "))
	}
	b.WriteString("\nInsertion point context:\n")
	fmt.Fprintf(&b, "before: %s\n", req.ContextBefore)
	fmt.Fprintf(&b, "after: %s\n", req.ContextAfter)
	if strings.TrimSpace(req.TransitionHint) != "" {
		fmt.Fprintf(&b, "transition hint: %s\n", req.TransitionHint)
	}
	if strings.TrimSpace(req.Template) != "" {
		fmt.Fprintf(&b, "\nReference template (adjust as needed):\n%s\n", req.Template)
	}
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, `Write one spoken ad line, %d to %d characters, that:
1. flows naturally between the before and after context
2. highlights the product's selling points
3. keeps the video's tone

Return only the ad line, with no explanation or markup.`, req.MinLength, req.MaxLength)
	return b.String()
}
