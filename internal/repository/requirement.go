package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voicescript/collector/internal/model"
)

// ErrNoCandidateScript is returned when no script needs the demographic.
var ErrNoCandidateScript = errors.New("no candidate script")

// StatusCounts maps submission status to count.
type StatusCounts map[model.SubmissionStatus]int64

// Candidate is a script offered to a provider together with its requirement.
type Candidate struct {
	Script      *model.Script
	Requirement *model.VariantRequirement
}

// ListRequirements returns a script's demographic requirements.
func (r *Repository) ListRequirements(ctx context.Context, scriptID int64) ([]*model.VariantRequirement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, script_id, gender, age_group, target_total, enabled
		FROM script_variant_requirements
		WHERE script_id = $1
		ORDER BY gender, age_group
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	defer rows.Close()

	var reqs []*model.VariantRequirement
	for rows.Next() {
		var req model.VariantRequirement
		if err := rows.Scan(&req.ID, &req.ScriptID, &req.Gender, &req.AgeGroup, &req.TargetTotal, &req.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

// ReplaceRequirements swaps a script's requirements for reqs atomically.
func (r *Repository) ReplaceRequirements(ctx context.Context, scriptID int64, reqs []*model.VariantRequirement) error {
	return r.InTx(ctx, func(tx *Repository) error {
		if _, err := tx.db.Exec(ctx, `DELETE FROM script_variant_requirements WHERE script_id = $1`, scriptID); err != nil {
			return fmt.Errorf("failed to clear requirements: %w", err)
		}
		for _, req := range reqs {
			req.ScriptID = scriptID
			err := tx.db.QueryRow(ctx, `
				INSERT INTO script_variant_requirements (script_id, gender, age_group, target_total, enabled)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
			`, scriptID, req.Gender, req.AgeGroup, req.TargetTotal, req.Enabled).Scan(&req.ID)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("duplicate requirement %s: %w", req.Key(), err)
				}
				return fmt.Errorf("failed to insert requirement: %w", err)
			}
		}
		return nil
	})
}

// CountSubmissionsByDemographic returns per-demographic status counts for a script.
// Keys are model.DemographicKey values.
func (r *Repository) CountSubmissionsByDemographic(ctx context.Context, scriptID int64) (map[string]StatusCounts, error) {
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(provider_gender, ''), COALESCE(provider_age_group, ''), status, COUNT(*)
		FROM submissions
		WHERE script_id = $1
		GROUP BY 1, 2, 3
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]StatusCounts)
	for rows.Next() {
		var (
			gender, ageGroup string
			status           model.SubmissionStatus
			n                int64
		)
		if err := rows.Scan(&gender, &ageGroup, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan submission count: %w", err)
		}
		key := model.DemographicKey(gender, ageGroup)
		if counts[key] == nil {
			counts[key] = make(StatusCounts)
		}
		counts[key][status] = n
	}
	return counts, rows.Err()
}

// NextCandidateScript finds the oldest active script in language with an
// enabled requirement for the demographic that userID has not yet recorded.
func (r *Repository) NextCandidateScript(ctx context.Context, userID int64, language, gender, ageGroup string) (*Candidate, error) {
	var (
		s                           model.Script
		req                         model.VariantRequirement
		title, category, difficulty *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT s.id, s.title, s.content, s.category, s.difficulty, s.target_duration,
		       s.language, s.is_active, s.created_at,
		       r.id, r.gender, r.age_group, r.target_total, r.enabled
		FROM scripts s
		JOIN script_variant_requirements r ON r.script_id = s.id
		WHERE s.is_active = TRUE
		  AND s.language = $2
		  AND r.enabled = TRUE
		  AND r.gender = $3
		  AND r.age_group = $4
		  AND NOT EXISTS (
		      SELECT 1 FROM submissions sub WHERE sub.script_id = s.id AND sub.user_id = $1
		  )
		ORDER BY s.created_at ASC, s.id ASC
		LIMIT 1
	`, userID, language, gender, ageGroup).Scan(
		&s.ID, &title, &s.Content, &category, &difficulty, &s.TargetDuration,
		&s.Language, &s.IsActive, &s.CreatedAt,
		&req.ID, &req.Gender, &req.AgeGroup, &req.TargetTotal, &req.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCandidateScript
		}
		return nil, fmt.Errorf("failed to find candidate script: %w", err)
	}
	s.Title = derefString(title)
	s.Category = derefString(category)
	s.Difficulty = derefString(difficulty)
	req.ScriptID = s.ID

	return &Candidate{Script: &s, Requirement: &req}, nil
}

// CountApprovedForDemographic counts approved recordings of a script for one demographic.
func (r *Repository) CountApprovedForDemographic(ctx context.Context, scriptID int64, gender, ageGroup string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM submissions
		WHERE script_id = $1 AND provider_gender = $2 AND provider_age_group = $3 AND status = 'approved'
	`, scriptID, gender, ageGroup).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count approved submissions: %w", err)
	}
	return n, nil
}
