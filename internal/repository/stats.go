package repository

import (
	"context"
	"fmt"
)

// ProviderStats counts one provider's submissions.
type ProviderStats struct {
	Total    int64 `json:"total_submissions"`
	Approved int64 `json:"approved_submissions"`
	Pending  int64 `json:"pending_submissions"`
	Rejected int64 `json:"rejected_submissions"`
}

// AdminStats summarizes the whole system.
type AdminStats struct {
	TotalUsers          int64 `json:"total_users"`
	TotalSubmissions    int64 `json:"total_submissions"`
	PendingSubmissions  int64 `json:"pending_submissions"`
	ApprovedSubmissions int64 `json:"approved_submissions"`
	TotalScripts        int64 `json:"total_scripts"`
	ActiveScripts       int64 `json:"active_scripts"`
}

// GetProviderStats counts a user's submissions by status.
func (r *Repository) GetProviderStats(ctx context.Context, userID int64) (*ProviderStats, error) {
	var s ProviderStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'rejected')
		FROM submissions WHERE user_id = $1
	`, userID).Scan(&s.Total, &s.Approved, &s.Pending, &s.Rejected)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider stats: %w", err)
	}
	return &s, nil
}

// GetAdminStats returns system-wide counts.
func (r *Repository) GetAdminStats(ctx context.Context) (*AdminStats, error) {
	var s AdminStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM submissions),
			(SELECT COUNT(*) FROM submissions WHERE status = 'pending'),
			(SELECT COUNT(*) FROM submissions WHERE status = 'approved'),
			(SELECT COUNT(*) FROM scripts),
			(SELECT COUNT(*) FROM scripts WHERE is_active = TRUE)
	`).Scan(&s.TotalUsers, &s.TotalSubmissions, &s.PendingSubmissions,
		&s.ApprovedSubmissions, &s.TotalScripts, &s.ActiveScripts)
	if err != nil {
		return nil, fmt.Errorf("failed to get admin stats: %w", err)
	}
	return &s, nil
}
