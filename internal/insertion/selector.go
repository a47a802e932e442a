package insertion

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoInsertionPoint reports that neither face scoring nor speaker
// profiling produced a usable insertion point.
var ErrNoInsertionPoint = errors.New("no usable insertion point")

// Candidate is an LLM-recommended insertion point, optionally annotated
// with a face-quality score once face detection has run on its frame.
type Candidate struct {
	Timestamp     float64
	SemanticRank  int
	Justification string
	FaceScore     float64
	HasFaceScore  bool
}

// SpeakerProfile summarizes speaker presence across the source video.
type SpeakerProfile struct {
	HasPrimarySpeaker   bool
	BestFrameTimestamp  float64
	BestFrameConfidence float64
}

// Tier identifies which selection strategy produced a decision.
type Tier string

const (
	TierPrimaryMatch    Tier = "primary_candidate_match"
	TierSpeakerFallback Tier = "speaker_fallback"
)

// Decision is the committed insertion point. It is produced exactly once
// per pipeline run and never mutated afterwards.
type Decision struct {
	Timestamp     float64 `json:"timestamp"`
	SourceTier    Tier    `json:"source_tier"`
	CombinedScore float64 `json:"combined_score"`
	Justification string  `json:"justification"`
	SemanticRank  int     `json:"semantic_rank"`
}

// Selector scores candidates by combining semantic rank with face
// quality. The default weights favor face quality: a verified
// face-bearing frame matters more than how well the moment reads
// semantically.
type Selector struct {
	semanticWeight float64
	faceWeight     float64
}

// NewSelector builds a selector with the given scoring weights. The
// weights are expected to sum to 1; config validation enforces that.
func NewSelector(semanticWeight, faceWeight float64) *Selector {
	return &Selector{semanticWeight: semanticWeight, faceWeight: faceWeight}
}

type strategy func(candidates []Candidate, profile SpeakerProfile) (Decision, bool)

// Select applies the tiered strategies in order and returns the first
// decision produced. Tier ordering is load-bearing: whenever any face
// score exists, the primary tier decides, even if that score is low.
func (s *Selector) Select(candidates []Candidate, profile SpeakerProfile) (Decision, error) {
	for _, tier := range []strategy{s.primaryMatch, s.speakerFallback} {
		if decision, ok := tier(candidates, profile); ok {
			return decision, nil
		}
	}
	return Decision{}, fmt.Errorf("%w: the video should contain a single clearly visible speaker", ErrNoInsertionPoint)
}

// primaryMatch scores every candidate with a face score as
// semanticWeight*normalizedRank + faceWeight*faceScore and picks the
// highest. Ties fall to the lower semantic rank, then to the earlier
// timestamp.
func (s *Selector) primaryMatch(candidates []Candidate, _ SpeakerProfile) (Decision, bool) {
	ranked := rankOrder(candidates)

	type scored struct {
		candidate Candidate
		combined  float64
	}
	var best *scored
	for position, candidate := range ranked {
		if !candidate.HasFaceScore {
			continue
		}
		combined := s.semanticWeight*normalizedRank(position, len(ranked)) + s.faceWeight*candidate.FaceScore
		entry := scored{candidate: candidate, combined: combined}
		if best == nil || betterScore(entry.combined, entry.candidate, best.combined, best.candidate) {
			copied := entry
			best = &copied
		}
	}
	if best == nil {
		return Decision{}, false
	}
	return Decision{
		Timestamp:     best.candidate.Timestamp,
		SourceTier:    TierPrimaryMatch,
		CombinedScore: best.combined,
		Justification: best.candidate.Justification,
		SemanticRank:  best.candidate.SemanticRank,
	}, true
}

// speakerFallback is used only when no candidate carries a face score. It
// trusts the speaker profile's best frame and borrows the top-ranked
// candidate's justification.
func (s *Selector) speakerFallback(candidates []Candidate, profile SpeakerProfile) (Decision, bool) {
	if !profile.HasPrimarySpeaker {
		return Decision{}, false
	}
	decision := Decision{
		Timestamp:     profile.BestFrameTimestamp,
		SourceTier:    TierSpeakerFallback,
		CombinedScore: profile.BestFrameConfidence,
	}
	if ranked := rankOrder(candidates); len(ranked) > 0 {
		decision.Justification = ranked[0].Justification
		decision.SemanticRank = ranked[0].SemanticRank
	}
	return decision, true
}

// rankOrder returns the candidates sorted most-preferred first without
// mutating the caller's slice.
func rankOrder(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SemanticRank < ranked[j].SemanticRank
	})
	return ranked
}

// normalizedRank maps a position in the preference order to a descending
// value in [0,1]: the best rank scores 1.0, the worst 0.0. A single
// candidate scores 1.0.
func normalizedRank(position, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - float64(position)/float64(total-1)
}

func betterScore(score float64, candidate Candidate, bestScore float64, bestCandidate Candidate) bool {
	if score != bestScore {
		return score > bestScore
	}
	if candidate.SemanticRank != bestCandidate.SemanticRank {
		return candidate.SemanticRank < bestCandidate.SemanticRank
	}
	return candidate.Timestamp < bestCandidate.Timestamp
}
