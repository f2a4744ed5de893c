package model

import "time"

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// ReviewStatus maps a review action to the resulting status.
// Anything other than approved or rejected leaves the submission pending.
func ReviewStatus(action string) SubmissionStatus {
	switch SubmissionStatus(action) {
	case SubmissionApproved, SubmissionRejected:
		return SubmissionStatus(action)
	}
	return SubmissionPending
}

// Submission is one recording of a script.
type Submission struct {
	ID            int64            `json:"id"`
	UserID        *int64           `json:"user_id"`
	ScriptID      int64            `json:"script_id"`
	LanguageCode  string           `json:"language"`
	TextContent   string           `json:"text_content,omitempty"`
	Transcript    *string          `json:"transcript"`
	AudioFilename string           `json:"audio_filename,omitempty"`
	Status        SubmissionStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`

	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy   *int64     `json:"reviewed_by,omitempty"`
	ReviewNotes  string     `json:"review_notes,omitempty"`
	QualityScore *int       `json:"quality_score,omitempty"`

	WordCount int      `json:"word_count"`
	Duration  *float64 `json:"duration,omitempty"`

	ProviderGender   string `json:"provider_gender,omitempty"`
	ProviderAgeGroup string `json:"provider_age_group,omitempty"`

	CollectedByAdminID *int64 `json:"collected_by_admin_id,omitempty"`
	SpeakerName        string `json:"speaker_name,omitempty"`
	SpeakerLocation    string `json:"speaker_location,omitempty"`
	IsFieldCollection  bool   `json:"is_field_collection"`
}

// OwnedBy reports whether userID submitted this recording.
func (s *Submission) OwnedBy(userID int64) bool {
	return s.UserID != nil && *s.UserID == userID
}

// SubmissionView is a submission joined with display names.
type SubmissionView struct {
	Submission
	ScriptTitle     string `json:"script_title,omitempty"`
	ScriptContent   string `json:"-"`
	ScriptLanguage  string `json:"-"`
	SubmitterFirst  string `json:"-"`
	SubmitterLast   string `json:"-"`
	CollectorFirst  string `json:"-"`
	CollectorLast   string `json:"-"`
	CollectorExists bool   `json:"-"`
}

// SubmitterName returns the human-readable origin of the recording.
func (v *SubmissionView) SubmitterName() string {
	if v.IsFieldCollection {
		speaker := v.SpeakerName
		if speaker == "" {
			speaker = "Anonymous"
		}
		collector := joinName(v.CollectorFirst, v.CollectorLast)
		if collector == "" {
			collector = "Unknown Admin"
		}
		return "Field: " + speaker + " (collected by " + collector + ")"
	}
	if name := joinName(v.SubmitterFirst, v.SubmitterLast); name != "" {
		return name
	}
	return "Unknown User"
}

// CollectorName returns the collecting admin's name, if any.
func (v *SubmissionView) CollectorName() string {
	return joinName(v.CollectorFirst, v.CollectorLast)
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
