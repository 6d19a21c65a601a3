package advisory

import "strings"

// TranscriptConfidence carries the acoustic confidence of a transcript.
type TranscriptConfidence struct {
	AcousticConfidence float64 `json:"acoustic_confidence"`
}

// TranscriptFlags marks capture problems a reviewer may care about.
type TranscriptFlags struct {
	LowAudioQuality   bool `json:"low_audio_quality"`
	IncompleteCapture bool `json:"incomplete_capture"`
}

// Transcript is the output of Transcribe.
type Transcript struct {
	TranscriptText string               `json:"transcript_text"`
	Confidence     TranscriptConfidence `json:"confidence"`
	Flags          TranscriptFlags      `json:"flags"`
}

// lowQualityThreshold is the acoustic confidence below which a transcript
// is flagged for low audio quality.
const lowQualityThreshold = 0.5

// Transcribe converts an audio blob into text. This is a placeholder for a
// real STT backend; the output shape is what the rest of the system
// consumes, so swapping the backend later does not ripple outward.
func Transcribe(audioBlob string) Transcript {
	text := strings.TrimSpace(strings.ReplaceAll(audioBlob, "[AUDIO]", ""))

	confidence := 1.0
	if text == "" {
		confidence = 0.3
	}

	return Transcript{
		TranscriptText: text,
		Confidence:     TranscriptConfidence{AcousticConfidence: confidence},
		Flags: TranscriptFlags{
			LowAudioQuality:   confidence < lowQualityThreshold,
			IncompleteCapture: text == "",
		},
	}
}
