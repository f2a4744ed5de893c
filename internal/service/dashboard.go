package service

import (
	"context"

	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

const dashboardRecent = 10

// DashboardService assembles the role-specific landing data.
type DashboardService struct {
	repo *repository.Repository
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo *repository.Repository) *DashboardService {
	return &DashboardService{repo: repo}
}

// ProviderDashboard summarizes a provider's work.
type ProviderDashboard struct {
	Role              model.Role              `json:"role"`
	TotalSubmissions  int64                   `json:"total_submissions"`
	Approved          int64                   `json:"approved"`
	Pending           int64                   `json:"pending"`
	Rejected          int64                   `json:"rejected"`
	Earnings          float64                 `json:"earnings"`
	RecentSubmissions []*model.SubmissionView `json:"recent_submissions"`
}

// ReviewerDashboard lists the review queue and recent decisions.
type ReviewerDashboard struct {
	Role               model.Role              `json:"role"`
	PendingSubmissions []*model.SubmissionView `json:"pending_submissions"`
	RecentReviews      []*model.SubmissionView `json:"recent_reviews"`
}

// AdminDashboard summarizes the system.
type AdminDashboard struct {
	Role           model.Role              `json:"role"`
	Stats          *repository.AdminStats  `json:"stats"`
	RecentActivity []*model.SubmissionView `json:"recent_activity"`
}

// For returns the dashboard matching the principal's role.
func (s *DashboardService) For(ctx context.Context, p *model.Principal) (any, error) {
	switch p.Role {
	case model.RoleAdmin:
		return s.Admin(ctx)
	case model.RoleReviewer:
		return s.Reviewer(ctx, p.UserID)
	}
	return s.Provider(ctx, p.UserID)
}

// Provider builds a provider dashboard.
func (s *DashboardService) Provider(ctx context.Context, userID int64) (*ProviderDashboard, error) {
	stats, err := s.repo.GetProviderStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	earnings, err := s.repo.SumBilling(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListSubmissions(ctx, repository.SubmissionFilter{UserID: &userID, Limit: dashboardRecent})
	if err != nil {
		return nil, err
	}

	return &ProviderDashboard{
		Role:              model.RoleProvider,
		TotalSubmissions:  stats.Total,
		Approved:          stats.Approved,
		Pending:           stats.Pending,
		Rejected:          stats.Rejected,
		Earnings:          model.RoundCents(earnings),
		RecentSubmissions: nonNilViews(recent),
	}, nil
}

// Reviewer builds a reviewer dashboard.
func (s *DashboardService) Reviewer(ctx context.Context, reviewerID int64) (*ReviewerDashboard, error) {
	pending, err := s.repo.ListSubmissions(ctx, repository.SubmissionFilter{Status: model.SubmissionPending})
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListSubmissions(ctx, repository.SubmissionFilter{
		ReviewedBy: &reviewerID,
		Order:      repository.OrderReviewedDesc,
		Limit:      dashboardRecent,
	})
	if err != nil {
		return nil, err
	}
	return &ReviewerDashboard{
		Role:               model.RoleReviewer,
		PendingSubmissions: nonNilViews(pending),
		RecentReviews:      nonNilViews(recent),
	}, nil
}

// Admin builds the admin dashboard.
func (s *DashboardService) Admin(ctx context.Context) (*AdminDashboard, error) {
	stats, err := s.repo.GetAdminStats(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListSubmissions(ctx, repository.SubmissionFilter{Limit: dashboardRecent})
	if err != nil {
		return nil, err
	}
	return &AdminDashboard{Role: model.RoleAdmin, Stats: stats, RecentActivity: nonNilViews(recent)}, nil
}

func nonNilViews(v []*model.SubmissionView) []*model.SubmissionView {
	if v == nil {
		return []*model.SubmissionView{}
	}
	return v
}
