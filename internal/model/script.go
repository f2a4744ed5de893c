package model

import (
	"strconv"
	"strings"
	"time"
)

// PreviewLength is the number of characters shown in script listings.
const PreviewLength = 200

// Script is a text prompt that providers read aloud.
type Script struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Category       string    `json:"category"`
	Difficulty     string    `json:"difficulty"`
	TargetDuration *int      `json:"target_duration,omitempty"`
	Language       string    `json:"language"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// DisplayTitle returns the title or a generated fallback.
func (s *Script) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "Script " + strconv.FormatInt(s.ID, 10)
}

// DisplayCategory returns the category or "General".
func (s *Script) DisplayCategory() string {
	if s.Category != "" {
		return s.Category
	}
	return "General"
}

// DisplayDifficulty returns the difficulty or "Medium".
func (s *Script) DisplayDifficulty() string {
	if s.Difficulty != "" {
		return s.Difficulty
	}
	return "Medium"
}

// Preview truncates content to n characters, appending "..." when cut.
func (s *Script) Preview(n int) string {
	runes := []rune(s.Content)
	if len(runes) <= n {
		return s.Content
	}
	return string(runes[:n]) + "..."
}

// WordCount counts whitespace-separated words in the content.
func (s *Script) WordCount() int {
	return CountWords(s.Content)
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// VariantRequirement sets how many approved recordings a script needs
// from one demographic.
type VariantRequirement struct {
	ID          int64  `json:"id"`
	ScriptID    int64  `json:"script_id"`
	Gender      string `json:"gender"`
	AgeGroup    string `json:"age_group"`
	TargetTotal int    `json:"target_total"`
	Enabled     bool   `json:"enabled"`
}

// DemographicKey returns "{gender}_{age_group}".
func DemographicKey(gender, ageGroup string) string {
	return gender + "_" + ageGroup
}

// Key returns the requirement's demographic key.
func (r *VariantRequirement) Key() string {
	return DemographicKey(r.Gender, r.AgeGroup)
}
