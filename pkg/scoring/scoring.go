// Package scoring is the deterministic evaluation engine.
//
// Scores are derived purely by set intersection and difference between the
// evidence collected during the interview and a per-skill rubric. There is
// no AI, no heuristics and no external calls: the same input always
// produces the same output.
package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Confidence is the reliability grade attached to a score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// SkillRubric defines what evidence a single skill requires and what
// evidence explicitly disqualifies it.
type SkillRubric struct {
	SkillID                      string   `json:"skill_id"`
	RequiredEvidence             []string `json:"required_evidence"`
	ExplicitlyDisallowedEvidence []string `json:"explicitly_disallowed_evidence"`
}

// Section groups skill rubrics by interview section.
type Section struct {
	SectionID string        `json:"section_id"`
	Skills    []SkillRubric `json:"skills"`
}

// Rubric is the full per-role scoring rubric.
type Rubric struct {
	Sections []Section `json:"sections"`
}

// LoadRubric reads a rubric from a JSON file.
func LoadRubric(path string) (Rubric, error) {
	var r Rubric
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("scoring: reading rubric %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("scoring: parsing rubric %s: %w", path, err)
	}
	return r, nil
}

// skillsByID flattens the rubric into a lookup map.
func (r Rubric) skillsByID() map[string]SkillRubric {
	m := make(map[string]SkillRubric)
	for _, section := range r.Sections {
		for _, skill := range section.Skills {
			m[skill.SkillID] = skill
		}
	}
	return m
}

// Response is the evidence collected for one question node.
type Response struct {
	NodeID    string   `json:"node_id"`
	SectionID string   `json:"section_id"`
	SkillID   string   `json:"skill_id"`
	Evidence  []string `json:"evidence"`
}

// Input is the candidate's full evidence bundle.
type Input struct {
	CandidateID string     `json:"candidate_id"`
	Role        string     `json:"role"`
	Level       []string   `json:"level"`
	Responses   []Response `json:"responses"`
}

// SkillResult is the per-skill scoring outcome.
type SkillResult struct {
	Score               int        `json:"score"`
	Confidence          Confidence `json:"confidence"`
	EvidenceUsed        []string   `json:"evidence_used"`
	MissingEvidence     []string   `json:"missing_evidence"`
	Conflicts           []string   `json:"conflicts"`
	HumanReviewRequired bool       `json:"human_review_required"`
}

// Evaluation is the full deterministic scoring output for a candidate.
type Evaluation struct {
	CandidateID         string                  `json:"candidate_id"`
	FinalScores         map[string]*SkillResult `json:"final_scores"`
	OverallConfidence   Confidence              `json:"overall_confidence"`
	HumanReviewRequired bool                    `json:"human_review_required"`
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func intersect(a map[string]bool, b map[string]bool) []string {
	var out []string
	for item := range a {
		if b[item] {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}

func subtract(a map[string]bool, b map[string]bool) []string {
	var out []string
	for item := range a {
		if !b[item] {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for item := range set {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// ScoreSkill scores one skill against the provided evidence.
//
// The ladder is fixed: full required evidence scores 9 (HIGH), partial
// scores 6 (MEDIUM), none scores 2 (LOW, review). Disallowed evidence
// alone scores 3; disallowed plus required evidence is a conflict and
// scores 4. Both conflict cases are LOW confidence and flag human review.
func ScoreSkill(rubric SkillRubric, providedEvidence []string) *SkillResult {
	required := toSet(rubric.RequiredEvidence)
	forbidden := toSet(rubric.ExplicitlyDisallowedEvidence)
	provided := toSet(providedEvidence)

	matchedRequired := intersect(required, provided)
	matchedForbidden := intersect(forbidden, provided)
	missingRequired := subtract(required, provided)

	switch {
	case len(matchedRequired) > 0 && len(matchedForbidden) > 0:
		return &SkillResult{
			Score:               4,
			Confidence:          ConfidenceLow,
			EvidenceUsed:        matchedRequired,
			MissingEvidence:     missingRequired,
			Conflicts:           matchedForbidden,
			HumanReviewRequired: true,
		}

	case len(matchedForbidden) > 0:
		return &SkillResult{
			Score:               3,
			Confidence:          ConfidenceLow,
			EvidenceUsed:        []string{},
			MissingEvidence:     sorted(required),
			Conflicts:           matchedForbidden,
			HumanReviewRequired: true,
		}

	case len(matchedRequired) == len(required):
		return &SkillResult{
			Score:               9,
			Confidence:          ConfidenceHigh,
			EvidenceUsed:        matchedRequired,
			MissingEvidence:     []string{},
			Conflicts:           []string{},
			HumanReviewRequired: false,
		}

	case len(matchedRequired) > 0:
		return &SkillResult{
			Score:               6,
			Confidence:          ConfidenceMedium,
			EvidenceUsed:        matchedRequired,
			MissingEvidence:     missingRequired,
			Conflicts:           []string{},
			HumanReviewRequired: false,
		}

	default:
		return &SkillResult{
			Score:               2,
			Confidence:          ConfidenceLow,
			EvidenceUsed:        []string{},
			MissingEvidence:     sorted(required),
			Conflicts:           []string{},
			HumanReviewRequired: true,
		}
	}
}

// EvaluateCandidate scores every response in the input against the rubric.
// An unknown skill ID is an error: rubrics and question graphs are authored
// together, and a mismatch means the wrong rubric was loaded.
func EvaluateCandidate(input Input, rubric Rubric) (*Evaluation, error) {
	skills := rubric.skillsByID()

	results := make(map[string]*SkillResult)
	humanReview := false

	for _, response := range input.Responses {
		skillRubric, ok := skills[response.SkillID]
		if !ok {
			return nil, fmt.Errorf("scoring: skill %q not in rubric", response.SkillID)
		}

		result := ScoreSkill(skillRubric, response.Evidence)
		results[response.SkillID] = result

		if result.HumanReviewRequired {
			humanReview = true
		}
	}

	overall := ConfidenceHigh
	for _, result := range results {
		if result.Confidence != ConfidenceHigh {
			overall = ConfidenceMedium
			break
		}
	}
	if humanReview {
		overall = ConfidenceLow
	}

	return &Evaluation{
		CandidateID:         input.CandidateID,
		FinalScores:         results,
		OverallConfidence:   overall,
		HumanReviewRequired: humanReview,
	}, nil
}
