package model

import "time"

// Default rates applied when a language has no pricing row.
const (
	DefaultProviderRatePerWord       = 0.01
	DefaultReviewerRatePerSubmission = 2.00
	DefaultCurrency                  = "USD"
	DefaultLanguageCode              = "en"
)

// Language is a recording language.
type Language struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	NativeName string    `json:"native_name,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// PricingRate holds the billing rates for one language.
type PricingRate struct {
	ID                        int64     `json:"id"`
	LanguageCode              string    `json:"language_code"`
	ProviderRatePerWord       float64   `json:"provider_rate_per_word"`
	ReviewerRatePerSubmission float64   `json:"reviewer_rate_per_submission"`
	Currency                  string    `json:"currency"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// DefaultPricing returns the fallback rates for a language.
func DefaultPricing(code string) *PricingRate {
	return &PricingRate{
		LanguageCode:              code,
		ProviderRatePerWord:       DefaultProviderRatePerWord,
		ReviewerRatePerSubmission: DefaultReviewerRatePerSubmission,
		Currency:                  DefaultCurrency,
	}
}
