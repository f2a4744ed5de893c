package dto

import "github.com/voicescript/collector/internal/model"

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileRequest updates the caller's own profile.
type ProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Gender    *string `json:"gender" validate:"omitempty,max=20"`
	AgeGroup  *string `json:"age_group" validate:"omitempty,max=30"`
}

// CreateUserRequest is the admin user creation body.
type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role" validate:"omitempty,oneof=provider reviewer admin"`
	Gender    string `json:"gender" validate:"max=20"`
	AgeGroup  string `json:"age_group" validate:"max=30"`
}

// UpdateUserRequest is the admin user update body.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Gender    *string `json:"gender" validate:"omitempty,max=20"`
	AgeGroup  *string `json:"age_group" validate:"omitempty,max=30"`
}

// RoleRequest changes a user's role.
type RoleRequest struct {
	Role string `json:"role" validate:"required,oneof=provider reviewer admin"`
}

// LanguageRequest creates or updates a language. Code is ignored on update.
type LanguageRequest struct {
	Code                      string   `json:"code" validate:"omitempty,max=10"`
	Name                      *string  `json:"name" validate:"omitempty,min=1,max=100"`
	NativeName                *string  `json:"native_name" validate:"omitempty,max=100"`
	IsActive                  *bool    `json:"is_active"`
	ProviderRatePerWord       *float64 `json:"provider_rate_per_word" validate:"omitempty,gte=0"`
	ReviewerRatePerSubmission *float64 `json:"reviewer_rate_per_submission" validate:"omitempty,gte=0"`
	Currency                  string   `json:"currency" validate:"omitempty,len=3"`
}

// PricingRequest updates a language's rates.
type PricingRequest struct {
	ProviderRatePerWord       *float64 `json:"provider_rate_per_word" validate:"required,gte=0"`
	ReviewerRatePerSubmission *float64 `json:"reviewer_rate_per_submission" validate:"required,gte=0"`
	Currency                  string   `json:"currency" validate:"omitempty,len=3"`
}

// ScriptRequest creates or updates a script.
type ScriptRequest struct {
	Title          *string `json:"title" validate:"omitempty,max=200"`
	Content        *string `json:"content"`
	Category       *string `json:"category" validate:"omitempty,max=100"`
	Difficulty     *string `json:"difficulty" validate:"omitempty,max=50"`
	TargetDuration *int    `json:"target_duration" validate:"omitempty,gte=0"`
	Language       *string `json:"language" validate:"omitempty,max=10"`
	IsActive       *bool   `json:"is_active"`
}

// BulkDeleteRequest lists scripts to delete.
type BulkDeleteRequest struct {
	ScriptIDs []int64 `json:"script_ids" validate:"required,min=1,dive,gt=0"`
}

// BulkTextRequest imports one script per line.
type BulkTextRequest struct {
	Language   string `json:"language" validate:"required"`
	ScriptText string `json:"scriptText" validate:"required"`
}

// RequirementRequest is one demographic target.
type RequirementRequest struct {
	Gender      string `json:"gender" validate:"required"`
	AgeGroup    string `json:"age_group" validate:"required"`
	TargetTotal *int   `json:"target_total" validate:"omitempty,gte=0"`
	Enabled     *bool  `json:"enabled"`
}

// RequirementsRequest replaces a script's requirements.
type RequirementsRequest struct {
	Requirements []RequirementRequest `json:"requirements" validate:"dive"`
}

// ReviewRequest approves or rejects a submission.
type ReviewRequest struct {
	Action       string `json:"action" validate:"required"`
	Notes        string `json:"notes" validate:"max=2000"`
	QualityScore *int   `json:"quality_score" validate:"omitempty,gte=0,lte=10"`
}

// TranscriptRequest replaces a transcript. Empty clears it.
type TranscriptRequest struct {
	Transcript string `json:"transcript"`
}

// EarningsSettingRequest toggles earnings visibility.
type EarningsSettingRequest struct {
	ShowEarnings string `json:"show_earnings" validate:"required,oneof=true false"`
}

// WebhookRequest registers an outbound webhook.
type WebhookRequest struct {
	TargetURL   string   `json:"target_url" validate:"required,url,max=1024"`
	EventTypes  []string `json:"event_types" validate:"omitempty,dive,required"`
	Description string   `json:"description" validate:"max=500"`
}

// UserResponse is a user as returned by the API.
type UserResponse struct {
	*model.User
	Name string `json:"name"`
}

// NewUserResponse decorates u with its display name.
func NewUserResponse(u *model.User) *UserResponse {
	return &UserResponse{User: u, Name: u.FullName()}
}

// NewUserResponses maps a user list.
func NewUserResponses(users []*model.User) []*UserResponse {
	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u))
	}
	return out
}
