// Package advisory contains the stateless interviewer-facing layer:
// question rendering with bounded follow-up prompts, and transcription.
//
// Nothing in this package scores, evaluates or stores anything. Every
// function is pure so the runtime engine stays the single source of truth.
package advisory

// followUpTemplates is the locked set of allowed follow-up prompts.
// Follow-ups outside this set are silently dropped.
var followUpTemplates = map[string]string{
	"F1": "Please repeat your answer.",
	"F2": "Please speak a bit more clearly.",
	"F3": "Your response was not audible. Please repeat.",
	"F4": "Please continue your response.",
}

// FollowupPolicy bounds how many follow-ups a rendered question may carry.
type FollowupPolicy struct {
	Enabled      bool `json:"enabled"`
	MaxFollowups int  `json:"max_followups"`
}

// Followup is one rendered follow-up prompt.
type Followup struct {
	TemplateID string `json:"template_id"`
	Text       string `json:"text"`
}

// RenderedQuestion is the output of RenderQuestion.
type RenderedQuestion struct {
	SpokenQuestionAudio string     `json:"spoken_question_audio"`
	OptionalFollowups   []Followup `json:"optional_followups"`
	QuestionID          string     `json:"question_id"`
}

// RenderQuestion prepares a question for delivery. The audio field is a
// placeholder for a TTS service. Follow-ups are restricted to the locked
// template set and capped by the policy.
func RenderQuestion(questionID, questionText string, allowedTemplateIDs []string, policy FollowupPolicy) RenderedQuestion {
	rendered := RenderedQuestion{
		SpokenQuestionAudio: "[AUDIO] " + questionText,
		OptionalFollowups:   []Followup{},
		QuestionID:          questionID,
	}

	if !policy.Enabled {
		return rendered
	}

	limit := policy.MaxFollowups
	if limit > len(allowedTemplateIDs) {
		limit = len(allowedTemplateIDs)
	}
	for _, templateID := range allowedTemplateIDs[:limit] {
		text, ok := followUpTemplates[templateID]
		if !ok {
			continue
		}
		rendered.OptionalFollowups = append(rendered.OptionalFollowups, Followup{
			TemplateID: templateID,
			Text:       text,
		})
	}
	return rendered
}

// FollowupTemplateIDs returns the locked template IDs, for policy authoring.
func FollowupTemplateIDs() []string {
	return []string{"F1", "F2", "F3", "F4"}
}
