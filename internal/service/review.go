package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// ReviewService records review decisions and the billing they trigger.
type ReviewService struct {
	repo      *repository.Repository
	publisher EventPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(repo *repository.Repository, publisher EventPublisher, recorder metrics.Recorder, logger *slog.Logger) *ReviewService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		repo:      repo,
		publisher: publisherOrNoop(publisher),
		metrics:   recorder,
		logger:    logger.With("component", "reviews"),
	}
}

// ReviewInput is a reviewer's decision.
type ReviewInput struct {
	Action       string
	Notes        string
	QualityScore *int
}

// ReviewResult reports the new state and any billing created.
type ReviewResult struct {
	Submission *model.Submission      `json:"submission"`
	Billing    []*model.BillingRecord `json:"billing,omitempty"`
}

// Review applies a decision. Actions other than approved/rejected leave the
// submission pending. Approval bills the provider per word and the reviewer
// per submission, atomically with the status change.
func (s *ReviewService) Review(ctx context.Context, reviewerID, id int64, in ReviewInput) (*ReviewResult, error) {
	if in.QualityScore != nil && (*in.QualityScore < 0 || *in.QualityScore > 10) {
		return nil, invalid("quality_score", "quality score must be between 0 and 10")
	}
	status := model.ReviewStatus(strings.ToLower(strings.TrimSpace(in.Action)))

	var (
		sub     *model.Submission
		records []*model.BillingRecord
	)
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		sub, err = tx.GetSubmissionForUpdate(ctx, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		sub.Status = status
		sub.ReviewedBy = &reviewerID
		sub.ReviewedAt = &now
		sub.ReviewNotes = strings.TrimSpace(in.Notes)
		sub.QualityScore = in.QualityScore
		if err := tx.UpdateReview(ctx, sub); err != nil {
			return err
		}

		if status != model.SubmissionApproved {
			return nil
		}
		records, err = s.bill(ctx, tx, sub, reviewerID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	s.metrics.IncSubmissionReviewed(string(status))
	s.publisher.PublishAsync(submissionEvent(model.EventSubmissionReviewed, sub, reviewerID))
	for _, b := range records {
		s.metrics.AddBillingAmount(string(b.BillingType), int64(math.Round(b.Amount*100)))
		ev := submissionEvent(model.EventBillingRecorded, sub, reviewerID)
		uid := b.UserID
		ev.UserID = &uid
		ev.Amount = b.Amount
		s.publisher.PublishAsync(ev)
	}

	s.logger.Info("submission_reviewed",
		"submission_id", sub.ID,
		"reviewer_id", reviewerID,
		"status", status,
		"billing_records", len(records),
	)
	return &ReviewResult{Submission: sub, Billing: records}, nil
}

// bill writes the approval billing rows inside tx.
func (s *ReviewService) bill(ctx context.Context, tx *repository.Repository, sub *model.Submission, reviewerID int64) ([]*model.BillingRecord, error) {
	language := model.DefaultLanguageCode
	scriptWords := 0
	script, err := tx.GetScript(ctx, sub.ScriptID)
	switch {
	case err == nil:
		if script.Language != "" {
			language = script.Language
		}
		scriptWords = script.WordCount()
	case !errors.Is(err, repository.ErrScriptNotFound):
		return nil, err
	}

	pricing, err := tx.GetOrCreatePricing(ctx, language)
	if err != nil {
		return nil, err
	}

	records := planBilling(sub, reviewerID, language, scriptWords, pricing)
	for _, b := range records {
		if err := tx.CreateBillingRecord(ctx, b); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// planBilling computes the billing rows for an approved submission. The
// provider row is skipped for field collections and when no words count.
func planBilling(sub *model.Submission, reviewerID int64, language string, scriptWords int, pricing *model.PricingRate) []*model.BillingRecord {
	var records []*model.BillingRecord

	words := sub.WordCount
	if words == 0 {
		words = scriptWords
	}
	if sub.UserID != nil && words > 0 {
		rate := pricing.ProviderRatePerWord
		w := words
		records = append(records, &model.BillingRecord{
			UserID:       *sub.UserID,
			SubmissionID: sub.ID,
			Amount:       model.ProviderAmount(words, rate),
			RatePerWord:  &rate,
			BillingType:  model.BillingProvider,
			LanguageCode: language,
			WordCount:    &w,
		})
	}

	perSub := pricing.ReviewerRatePerSubmission
	records = append(records, &model.BillingRecord{
		UserID:            reviewerID,
		SubmissionID:      sub.ID,
		Amount:            model.RoundCents(perSub),
		RatePerSubmission: &perSub,
		BillingType:       model.BillingReviewer,
		LanguageCode:      language,
	})
	return records
}

// PendingQueue lists submissions awaiting review, newest first.
func (s *ReviewService) PendingQueue(ctx context.Context) ([]*model.SubmissionView, error) {
	views, err := s.repo.ListSubmissions(ctx, repository.SubmissionFilter{Status: model.SubmissionPending})
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []*model.SubmissionView{}
	}
	return views, nil
}
