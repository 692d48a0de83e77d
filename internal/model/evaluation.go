package model

import "time"

// PublishVerdict is the evaluator's publishability call for a generation.
type PublishVerdict string

const (
	PublishYes       PublishVerdict = "yes"
	PublishNo        PublishVerdict = "no"
	PublishWithEdits PublishVerdict = "with_edits"
)

// Valid reports whether the verdict is one of the known values.
func (v PublishVerdict) Valid() bool {
	switch v {
	case PublishYes, PublishNo, PublishWithEdits:
		return true
	}
	return false
}

// Scores holds the five 1-5 rating dimensions of a blind evaluation.
type Scores struct {
	VoiceMatch int `json:"voice_match"`
	Coherence  int `json:"coherence"`
	Engagement int `json:"engagement"`
	BriefFit   int `json:"brief_fit"`
	Overall    int `json:"overall"`
}

// Composite returns the mean of the five dimensions.
func (s Scores) Composite() float64 {
	return float64(s.VoiceMatch+s.Coherence+s.Engagement+s.BriefFit+s.Overall) / 5
}

// InRange reports whether every dimension is within [1, 5].
func (s Scores) InRange() bool {
	for _, v := range []int{s.VoiceMatch, s.Coherence, s.Engagement, s.BriefFit, s.Overall} {
		if v < 1 || v > 5 {
			return false
		}
	}
	return true
}

// EvaluationEntry is the write-once human judgment for one generation result.
type EvaluationEntry struct {
	ID           string         `json:"id"`
	ResultID     string         `json:"result_id"`
	ExperimentID string         `json:"experiment_id"`
	BlindID      string         `json:"blind_id"`
	Scores       Scores         `json:"scores"`
	Verdict      PublishVerdict `json:"verdict"`
	EditMinutes  int            `json:"edit_minutes"`
	Notes        string         `json:"notes,omitempty"`
	EvalSeconds  int            `json:"eval_seconds,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BlindItem is what the evaluator sees: content plus task context, with every
// field that could identify the source model or strategy stripped.
type BlindItem struct {
	BlindID     string `json:"blind_id"`
	Content     string `json:"content"`
	TaskTitle   string `json:"task_title"`
	TaskBrief   string `json:"task_brief"`
	ContentType string `json:"content_type"`
	Position    int    `json:"position"`
	Remaining   int    `json:"remaining"`
}
