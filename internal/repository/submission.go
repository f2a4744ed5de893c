package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/voicescript/collector/internal/model"
)

// ErrSubmissionNotFound is returned when a submission does not exist.
var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionOrder selects the sort order of a submission listing.
type SubmissionOrder int

const (
	OrderCreatedDesc SubmissionOrder = iota
	OrderReviewedDesc
)

// SubmissionFilter narrows submission listings. Zero values are ignored.
type SubmissionFilter struct {
	UserID     *int64
	ScriptID   *int64
	ReviewedBy *int64
	Status     model.SubmissionStatus
	Language   string
	Order      SubmissionOrder
	Limit      uint64
}

const submissionColumns = `sub.id, sub.user_id, sub.script_id, sub.language_code, sub.text_content,
	sub.transcript, sub.audio_filename, sub.status, sub.created_at,
	sub.reviewed_at, sub.reviewed_by, sub.review_notes, sub.quality_score,
	sub.word_count, sub.duration, sub.provider_gender, sub.provider_age_group,
	sub.collected_by_admin_id, sub.speaker_name, sub.speaker_location, sub.is_field_collection`

// CreateSubmission inserts a submission.
func (r *Repository) CreateSubmission(ctx context.Context, s *model.Submission) error {
	if s.Status == "" {
		s.Status = model.SubmissionPending
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO submissions (user_id, script_id, language_code, text_content, transcript,
			audio_filename, status, word_count, duration, provider_gender, provider_age_group,
			collected_by_admin_id, speaker_name, speaker_location, is_field_collection)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at
	`,
		s.UserID, s.ScriptID, s.LanguageCode, nullString(s.TextContent), s.Transcript,
		nullString(s.AudioFilename), s.Status, s.WordCount, s.Duration,
		nullString(s.ProviderGender), nullString(s.ProviderAgeGroup),
		s.CollectedByAdminID, nullString(s.SpeakerName), nullString(s.SpeakerLocation), s.IsFieldCollection,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by ID.
func (r *Repository) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	s, err := scanSubmission(r.db.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions sub WHERE sub.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

// GetSubmissionForUpdate retrieves a submission and locks its row.
// Must be called inside InTx.
func (r *Repository) GetSubmissionForUpdate(ctx context.Context, id int64) (*model.Submission, error) {
	s, err := scanSubmission(r.db.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions sub WHERE sub.id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to lock submission: %w", err)
	}
	return s, nil
}

// ListSubmissions returns submissions joined with script and people names.
func (r *Repository) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]*model.SubmissionView, error) {
	query := psql.Select(submissionColumns,
		"COALESCE(sc.title, '')", "COALESCE(sc.content, '')", "COALESCE(sc.language, '')",
		"COALESCE(u.first_name, '')", "COALESCE(u.last_name, '')",
		"COALESCE(a.first_name, '')", "COALESCE(a.last_name, '')", "a.id IS NOT NULL",
	).
		From("submissions sub").
		LeftJoin("scripts sc ON sc.id = sub.script_id").
		LeftJoin("users u ON u.id = sub.user_id").
		LeftJoin("users a ON a.id = sub.collected_by_admin_id")

	if f.UserID != nil {
		query = query.Where(sq.Eq{"sub.user_id": *f.UserID})
	}
	if f.ScriptID != nil {
		query = query.Where(sq.Eq{"sub.script_id": *f.ScriptID})
	}
	if f.ReviewedBy != nil {
		query = query.Where(sq.Eq{"sub.reviewed_by": *f.ReviewedBy})
	}
	if f.Status != "" {
		query = query.Where(sq.Eq{"sub.status": f.Status})
	}
	if f.Language != "" {
		query = query.Where(sq.Eq{"sub.language_code": f.Language})
	}

	switch f.Order {
	case OrderReviewedDesc:
		query = query.Where(sq.NotEq{"sub.reviewed_at": nil}).OrderBy("sub.reviewed_at DESC", "sub.id DESC")
	default:
		query = query.OrderBy("sub.created_at DESC", "sub.id DESC")
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build submission query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var views []*model.SubmissionView
	for rows.Next() {
		v, err := scanSubmissionView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// UpdateTranscript sets or clears (nil) a submission's transcript.
func (r *Repository) UpdateTranscript(ctx context.Context, id int64, transcript *string) error {
	result, err := r.db.Exec(ctx, `UPDATE submissions SET transcript = $2 WHERE id = $1`, id, transcript)
	if err != nil {
		return fmt.Errorf("failed to update transcript: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// UpdateReview records a review decision.
func (r *Repository) UpdateReview(ctx context.Context, s *model.Submission) error {
	result, err := r.db.Exec(ctx, `
		UPDATE submissions
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5, quality_score = $6
		WHERE id = $1
	`, s.ID, s.Status, s.ReviewedBy, s.ReviewedAt, nullString(s.ReviewNotes), s.QualityScore)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// DeleteSubmission removes a submission and its billing rows.
func (r *Repository) DeleteSubmission(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var s model.Submission
	nf := &nullableSubmissionFields{}
	if err := row.Scan(submissionDest(&s, nf)...); err != nil {
		return nil, err
	}
	nf.apply(&s)
	return &s, nil
}

func scanSubmissionView(row pgx.Row) (*model.SubmissionView, error) {
	var v model.SubmissionView
	nf := &nullableSubmissionFields{}
	dest := append(submissionDest(&v.Submission, nf),
		&v.ScriptTitle, &v.ScriptContent, &v.ScriptLanguage,
		&v.SubmitterFirst, &v.SubmitterLast,
		&v.CollectorFirst, &v.CollectorLast, &v.CollectorExists,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	nf.apply(&v.Submission)
	return &v, nil
}

// nullableSubmissionFields receives nullable text columns during a scan.
type nullableSubmissionFields struct {
	textContent, audio, notes, gender, ageGroup, speaker, location *string
}

func (n *nullableSubmissionFields) apply(s *model.Submission) {
	s.TextContent = derefString(n.textContent)
	s.AudioFilename = derefString(n.audio)
	s.ReviewNotes = derefString(n.notes)
	s.ProviderGender = derefString(n.gender)
	s.ProviderAgeGroup = derefString(n.ageGroup)
	s.SpeakerName = derefString(n.speaker)
	s.SpeakerLocation = derefString(n.location)
}

// submissionDest lists scan targets in submissionColumns order.
func submissionDest(s *model.Submission, n *nullableSubmissionFields) []any {
	return []any{
		&s.ID, &s.UserID, &s.ScriptID, &s.LanguageCode, &n.textContent,
		&s.Transcript, &n.audio, &s.Status, &s.CreatedAt,
		&s.ReviewedAt, &s.ReviewedBy, &n.notes, &s.QualityScore,
		&s.WordCount, &s.Duration, &n.gender, &n.ageGroup,
		&s.CollectedByAdminID, &n.speaker, &n.location, &s.IsFieldCollection,
	}
}

