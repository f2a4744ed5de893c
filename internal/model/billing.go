package model

import (
	"math"
	"time"
)

// BillingType distinguishes provider and reviewer payouts.
type BillingType string

const (
	BillingProvider BillingType = "provider"
	BillingReviewer BillingType = "reviewer"
)

// BillingRecord is a payout entry written when a submission is approved.
type BillingRecord struct {
	ID                int64       `json:"id"`
	UserID            int64       `json:"user_id"`
	SubmissionID      int64       `json:"submission_id"`
	Amount            float64     `json:"amount"`
	RatePerWord       *float64    `json:"rate_per_word,omitempty"`
	RatePerSubmission *float64    `json:"rate_per_submission,omitempty"`
	BillingType       BillingType `json:"billing_type"`
	LanguageCode      string      `json:"language_code"`
	WordCount         *int        `json:"word_count,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ProviderAmount returns words × rate rounded to cents.
// The product is taken in micro-units so that 0.1-style rates don't drift.
func ProviderAmount(words int, ratePerWord float64) float64 {
	micros := math.Round(ratePerWord * 1e6)
	return RoundCents(float64(words) * micros / 1e6)
}

// RoundCents rounds v half away from zero to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
