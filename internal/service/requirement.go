package service

import (
	"context"
	"errors"
	"strings"

	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// RequirementService manages per-script demographic targets and the
// provider recording queue.
type RequirementService struct {
	repo *repository.Repository
}

// NewRequirementService creates a new RequirementService.
func NewRequirementService(repo *repository.Repository) *RequirementService {
	return &RequirementService{repo: repo}
}

// RequirementInput is one requested target. Zero values take defaults.
type RequirementInput struct {
	Gender      string
	AgeGroup    string
	TargetTotal *int
	Enabled     *bool
}

// ProgressEntry is one cell of a script's progress matrix.
type ProgressEntry struct {
	Gender   string `json:"gender"`
	AgeGroup string `json:"age_group"`
	Target   int    `json:"target"`
	Approved int64  `json:"approved"`
	Pending  int64  `json:"pending"`
	Rejected int64  `json:"rejected"`
}

// ScriptProgress is the progress matrix of a script.
type ScriptProgress struct {
	ScriptID int64           `json:"script_id"`
	Progress []ProgressEntry `json:"progress"`
}

// NextTask is the provider's next recording assignment.
type NextTask struct {
	HasTask         bool             `json:"has_task"`
	Message         string           `json:"message,omitempty"`
	Script          *TaskScript      `json:"script,omitempty"`
	Requirement     *TaskRequirement `json:"requirement,omitempty"`
	UserDemographic *Demographic     `json:"user_demographic,omitempty"`
}

// TaskScript is the script portion of a NextTask.
type TaskScript struct {
	ID       int64  `json:"id"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// TaskRequirement reports how far a demographic target has come.
type TaskRequirement struct {
	TargetTotal     int   `json:"target_total"`
	CurrentApproved int64 `json:"current_approved"`
}

// Demographic is a gender and age group pair.
type Demographic struct {
	Gender   string `json:"gender"`
	AgeGroup string `json:"age_group"`
}

// List returns a script's requirements.
func (s *RequirementService) List(ctx context.Context, scriptID int64) ([]*model.VariantRequirement, error) {
	if _, err := s.repo.GetScript(ctx, scriptID); err != nil {
		if errors.Is(err, repository.ErrScriptNotFound) {
			return nil, ErrScriptNotFound
		}
		return nil, err
	}
	reqs, err := s.repo.ListRequirements(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []*model.VariantRequirement{}
	}
	return reqs, nil
}

// Replace swaps a script's requirements.
func (s *RequirementService) Replace(ctx context.Context, scriptID int64, inputs []RequirementInput) ([]*model.VariantRequirement, error) {
	if _, err := s.repo.GetScript(ctx, scriptID); err != nil {
		if errors.Is(err, repository.ErrScriptNotFound) {
			return nil, ErrScriptNotFound
		}
		return nil, err
	}

	reqs, err := buildRequirements(inputs)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceRequirements(ctx, scriptID, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func buildRequirements(inputs []RequirementInput) ([]*model.VariantRequirement, error) {
	reqs := make([]*model.VariantRequirement, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		req := &model.VariantRequirement{
			Gender:      strings.TrimSpace(in.Gender),
			AgeGroup:    strings.TrimSpace(in.AgeGroup),
			TargetTotal: 1,
			Enabled:     true,
		}
		if req.Gender == "" {
			return nil, invalid("gender", "gender is required")
		}
		if req.AgeGroup == "" {
			return nil, invalid("age_group", "age group is required")
		}
		if in.TargetTotal != nil {
			if *in.TargetTotal < 0 {
				return nil, invalid("target_total", "target cannot be negative")
			}
			req.TargetTotal = *in.TargetTotal
		}
		if in.Enabled != nil {
			req.Enabled = *in.Enabled
		}
		if _, dup := seen[req.Key()]; dup {
			return nil, invalid("requirements", "duplicate demographic "+req.Key())
		}
		seen[req.Key()] = struct{}{}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Progress builds the matrix of enabled requirements against submission counts.
func (s *RequirementService) Progress(ctx context.Context, scriptID int64) (*ScriptProgress, error) {
	reqs, err := s.List(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountSubmissionsByDemographic(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	return &ScriptProgress{ScriptID: scriptID, Progress: buildProgress(reqs, counts)}, nil
}

func buildProgress(reqs []*model.VariantRequirement, counts map[string]repository.StatusCounts) []ProgressEntry {
	out := make([]ProgressEntry, 0, len(reqs))
	for _, req := range reqs {
		if !req.Enabled {
			continue
		}
		c := counts[req.Key()]
		out = append(out, ProgressEntry{
			Gender:   req.Gender,
			AgeGroup: req.AgeGroup,
			Target:   req.TargetTotal,
			Approved: c[model.SubmissionApproved],
			Pending:  c[model.SubmissionPending],
			Rejected: c[model.SubmissionRejected],
		})
	}
	return out
}

// NextTask finds the next script the user should record in language.
func (s *RequirementService) NextTask(ctx context.Context, userID int64, language string) (*NextTask, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.HasDemographics() {
		return nil, ErrProfileIncomplete
	}

	language = normalizeCode(language)
	if language == "" {
		language = model.DefaultLanguageCode
	}

	cand, err := s.repo.NextCandidateScript(ctx, user.ID, language, user.Gender, user.AgeGroup)
	if err != nil {
		if errors.Is(err, repository.ErrNoCandidateScript) {
			return &NextTask{Message: "No scripts available for your demographic profile"}, nil
		}
		return nil, err
	}

	approved, err := s.repo.CountApprovedForDemographic(ctx, cand.Script.ID, user.Gender, user.AgeGroup)
	if err != nil {
		return nil, err
	}
	if approved >= int64(cand.Requirement.TargetTotal) {
		return &NextTask{Message: "Target reached for your demographic"}, nil
	}

	return &NextTask{
		HasTask: true,
		Script: &TaskScript{
			ID:       cand.Script.ID,
			Content:  cand.Script.Content,
			Language: cand.Script.Language,
		},
		Requirement: &TaskRequirement{
			TargetTotal:     cand.Requirement.TargetTotal,
			CurrentApproved: approved,
		},
		UserDemographic: &Demographic{Gender: user.Gender, AgeGroup: user.AgeGroup},
	}, nil
}
