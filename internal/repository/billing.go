package repository

import (
	"context"
	"fmt"

	"github.com/voicescript/collector/internal/model"
)

// CreateBillingRecord inserts a billing row.
func (r *Repository) CreateBillingRecord(ctx context.Context, b *model.BillingRecord) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO billing_records (user_id, submission_id, amount, rate_per_word,
			rate_per_submission, billing_type, language_code, word_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, b.UserID, b.SubmissionID, b.Amount, b.RatePerWord, b.RatePerSubmission,
		b.BillingType, b.LanguageCode, b.WordCount).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create billing record: %w", err)
	}
	return nil
}

// ListBillingRecords returns a user's billing rows of one type, newest first.
func (r *Repository) ListBillingRecords(ctx context.Context, userID int64, billingType model.BillingType) ([]*model.BillingRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, submission_id, amount, rate_per_word, rate_per_submission,
		       billing_type, language_code, word_count, created_at
		FROM billing_records
		WHERE user_id = $1 AND billing_type = $2
		ORDER BY created_at DESC, id DESC
	`, userID, billingType)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing records: %w", err)
	}
	defer rows.Close()

	var records []*model.BillingRecord
	for rows.Next() {
		var b model.BillingRecord
		if err := rows.Scan(&b.ID, &b.UserID, &b.SubmissionID, &b.Amount, &b.RatePerWord,
			&b.RatePerSubmission, &b.BillingType, &b.LanguageCode, &b.WordCount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan billing record: %w", err)
		}
		records = append(records, &b)
	}
	return records, rows.Err()
}

// SumBilling totals a user's billing. An empty billingType sums every type.
func (r *Repository) SumBilling(ctx context.Context, userID int64, billingType model.BillingType) (float64, error) {
	query := psql.Select("COALESCE(SUM(amount), 0)").From("billing_records").Where("user_id = ?", userID)
	if billingType != "" {
		query = query.Where("billing_type = ?", billingType)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build billing sum: %w", err)
	}

	var total float64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum billing: %w", err)
	}
	return total, nil
}
