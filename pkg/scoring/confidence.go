package scoring

// OverallAssessment is the confidence summary derived from a full set of
// skill results.
type OverallAssessment struct {
	OverallConfidence   Confidence         `json:"overall_confidence"`
	ConfidenceBreakdown map[Confidence]int `json:"confidence_breakdown"`
	HumanReviewRequired bool               `json:"human_review_required"`
}

// mediumRatioReviewThreshold is the share of MEDIUM-confidence skills
// above which a human review is always requested.
const mediumRatioReviewThreshold = 0.3

// DeriveSkillConfidence recomputes the confidence grade of one skill
// result from its evidence sets.
func DeriveSkillConfidence(result *SkillResult) Confidence {
	if len(result.Conflicts) > 0 {
		return ConfidenceLow
	}
	if len(result.MissingEvidence) == 0 && len(result.EvidenceUsed) > 0 {
		return ConfidenceHigh
	}
	if len(result.EvidenceUsed) > 0 {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// DeriveOverallConfidence recomputes every skill's confidence in place and
// aggregates an overall grade. Any LOW skill or any conflict forces human
// review, as does a MEDIUM share above the review threshold.
func DeriveOverallConfidence(finalScores map[string]*SkillResult) OverallAssessment {
	breakdown := map[Confidence]int{
		ConfidenceHigh:   0,
		ConfidenceMedium: 0,
		ConfidenceLow:    0,
	}

	humanReview := false
	for _, result := range finalScores {
		confidence := DeriveSkillConfidence(result)
		result.Confidence = confidence
		breakdown[confidence]++

		if confidence == ConfidenceLow {
			humanReview = true
		}
		if len(result.Conflicts) > 0 {
			humanReview = true
		}
	}

	total := len(finalScores)
	if total > 0 {
		mediumRatio := float64(breakdown[ConfidenceMedium]) / float64(total)
		if mediumRatio > mediumRatioReviewThreshold {
			humanReview = true
		}
	}

	overall := ConfidenceHigh
	switch {
	case breakdown[ConfidenceLow] > 0:
		overall = ConfidenceLow
	case breakdown[ConfidenceMedium] > 0:
		overall = ConfidenceMedium
	}

	return OverallAssessment{
		OverallConfidence:   overall,
		ConfidenceBreakdown: breakdown,
		HumanReviewRequired: humanReview,
	}
}
