package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
	"github.com/voicescript/collector/internal/storage"
)

// AudioStore persists and locates uploaded audio.
type AudioStore interface {
	Save(original string, r io.Reader) (string, error)
	Resolve(name string) (string, error)
	Remove(name string) error
}

// SubmissionService handles recordings.
type SubmissionService struct {
	repo      *repository.Repository
	audio     AudioStore
	publisher EventPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(repo *repository.Repository, audio AudioStore, publisher EventPublisher,
	recorder metrics.Recorder, logger *slog.Logger) *SubmissionService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{
		repo:      repo,
		audio:     audio,
		publisher: publisherOrNoop(publisher),
		metrics:   recorder,
		logger:    logger.With("component", "submissions"),
	}
}

// AudioUpload is an uploaded audio part.
type AudioUpload struct {
	Filename string
	Body     io.Reader
}

// SubmitInput defines a provider recording.
type SubmitInput struct {
	ScriptID    int64
	Language    string
	TextContent string
	Transcript  string
	Duration    *float64
	Audio       *AudioUpload
}

// FieldCollectInput defines a recording captured by an admin.
type FieldCollectInput struct {
	ScriptID         int64
	Language         string
	Transcript       string
	ProviderGender   string
	ProviderAgeGroup string
	SpeakerName      string
	SpeakerLocation  string
	Duration         *float64
	Audio            *AudioUpload
}

// SubmissionItem is a submission as listed for a script.
type SubmissionItem struct {
	ID                int64                  `json:"id"`
	TextContent       string                 `json:"text_content"`
	Transcript        string                 `json:"transcript"`
	AudioFilename     string                 `json:"audio_filename,omitempty"`
	AudioURL          *string                `json:"audio_url"`
	Status            model.SubmissionStatus `json:"status"`
	CreatedAt         string                 `json:"created_at"`
	WordCount         int                    `json:"word_count"`
	Duration          *float64               `json:"duration"`
	Submitter         string                 `json:"submitter,omitempty"`
	SubmitterType     string                 `json:"submitter_type,omitempty"`
	SpeakerLocation   string                 `json:"speaker_location,omitempty"`
	ProviderGender    string                 `json:"provider_gender,omitempty"`
	ProviderAgeGroup  string                 `json:"provider_age_group,omitempty"`
	IsFieldCollection bool                   `json:"is_field_collection"`
}

// AudioFile is a resolved audio path ready to stream.
type AudioFile struct {
	Path        string
	Name        string
	ContentType string
}

// Submit records a provider's audio for a script.
func (s *SubmissionService) Submit(ctx context.Context, userID int64, in SubmitInput) (*model.Submission, error) {
	script, language, err := s.validateTarget(ctx, in.ScriptID, in.Language, in.Audio)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	text := strings.TrimSpace(in.TextContent)
	words := model.CountWords(text)
	if text == "" {
		words = script.WordCount()
	}

	name, err := s.saveAudio(in.Audio)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		UserID:           &user.ID,
		ScriptID:         script.ID,
		LanguageCode:     language,
		TextContent:      text,
		Transcript:       optionalString(in.Transcript),
		AudioFilename:    name,
		Status:           model.SubmissionPending,
		WordCount:        words,
		Duration:         in.Duration,
		ProviderGender:   user.Gender,
		ProviderAgeGroup: user.AgeGroup,
	}
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		s.discardAudio(name)
		return nil, err
	}

	s.metrics.IncSubmissionCreated("recording")
	s.publisher.PublishAsync(submissionEvent(model.EventSubmissionCreated, sub, userID))
	s.logger.Info("submission_created", "submission_id", sub.ID, "user_id", userID, "script_id", sub.ScriptID)
	return sub, nil
}

// FieldCollect records audio on behalf of an anonymous speaker. The
// submission has no user and is approved immediately.
func (s *SubmissionService) FieldCollect(ctx context.Context, adminID int64, in FieldCollectInput) (*model.Submission, error) {
	script, language, err := s.validateTarget(ctx, in.ScriptID, in.Language, in.Audio)
	if err != nil {
		return nil, err
	}
	gender := strings.TrimSpace(in.ProviderGender)
	ageGroup := strings.TrimSpace(in.ProviderAgeGroup)
	if gender == "" || ageGroup == "" {
		return nil, invalid("provider_gender", "speaker gender and age group are required")
	}

	name, err := s.saveAudio(in.Audio)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ScriptID:           script.ID,
		LanguageCode:       language,
		Transcript:         optionalString(in.Transcript),
		AudioFilename:      name,
		Status:             model.SubmissionApproved,
		WordCount:          script.WordCount(),
		Duration:           in.Duration,
		ProviderGender:     gender,
		ProviderAgeGroup:   ageGroup,
		CollectedByAdminID: &adminID,
		SpeakerName:        strings.TrimSpace(in.SpeakerName),
		SpeakerLocation:    strings.TrimSpace(in.SpeakerLocation),
		IsFieldCollection:  true,
	}
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		s.discardAudio(name)
		return nil, err
	}

	s.metrics.IncSubmissionCreated("field")
	s.publisher.PublishAsync(submissionEvent(model.EventSubmissionCreated, sub, adminID))
	s.logger.Info("field_collection_created", "submission_id", sub.ID, "admin_id", adminID, "script_id", sub.ScriptID)
	return sub, nil
}

func (s *SubmissionService) validateTarget(ctx context.Context, scriptID int64, language string, audio *AudioUpload) (*model.Script, string, error) {
	if scriptID <= 0 {
		return nil, "", invalid("script_id", "script selection is required")
	}
	code := normalizeCode(language)
	if code == "" {
		return nil, "", invalid("language", "language selection is required")
	}
	if audio == nil || audio.Filename == "" || audio.Body == nil {
		return nil, "", invalid("audio_file", "audio recording is required")
	}
	if !storage.Allowed(audio.Filename) {
		return nil, "", invalid("audio_file", "file type not allowed")
	}

	script, err := s.repo.GetScript(ctx, scriptID)
	if err != nil {
		if errors.Is(err, repository.ErrScriptNotFound) {
			return nil, "", invalid("script_id", "script not found")
		}
		return nil, "", err
	}
	if _, err := s.repo.GetLanguage(ctx, code); err != nil {
		if errors.Is(err, repository.ErrLanguageNotFound) {
			return nil, "", invalid("language", "invalid language selected")
		}
		return nil, "", err
	}
	return script, code, nil
}

func (s *SubmissionService) saveAudio(a *AudioUpload) (string, error) {
	name, err := s.audio.Save(a.Filename, a.Body)
	if err != nil {
		if errors.Is(err, storage.ErrDisallowedType) {
			return "", invalid("audio_file", "file type not allowed")
		}
		return "", fmt.Errorf("failed to store audio: %w", err)
	}
	return name, nil
}

func (s *SubmissionService) discardAudio(name string) {
	if err := s.audio.Remove(name); err != nil {
		s.logger.Warn("audio_remove_failed", "file", name, "error", err)
	}
}

// DeleteOwn lets a provider withdraw a submission that is still pending.
func (s *SubmissionService) DeleteOwn(ctx context.Context, userID, id int64) error {
	sub, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !sub.OwnedBy(userID) {
		return ErrForbidden
	}
	if sub.Status != model.SubmissionPending {
		return ErrNotPending
	}
	_, err = s.delete(ctx, sub, userID)
	return err
}

// AdminDelete removes any submission and reports whether its audio was deleted.
func (s *SubmissionService) AdminDelete(ctx context.Context, adminID, id int64) (bool, error) {
	sub, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.delete(ctx, sub, adminID)
}

func (s *SubmissionService) delete(ctx context.Context, sub *model.Submission, actorID int64) (bool, error) {
	deletedFile := false
	if sub.AudioFilename != "" {
		if _, err := s.audio.Resolve(sub.AudioFilename); err == nil {
			if err := s.audio.Remove(sub.AudioFilename); err != nil {
				return false, fmt.Errorf("failed to delete audio file: %w", err)
			}
			deletedFile = true
		} else {
			s.logger.Warn("audio_missing", "submission_id", sub.ID, "file", sub.AudioFilename)
		}
	}

	if err := s.repo.DeleteSubmission(ctx, sub.ID); err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return false, ErrSubmissionNotFound
		}
		return false, err
	}

	s.publisher.PublishAsync(submissionEvent(model.EventSubmissionDeleted, sub, actorID))
	s.logger.Info("submission_deleted", "submission_id", sub.ID, "actor_id", actorID, "deleted_file", deletedFile)
	return deletedFile, nil
}

// UpdateTranscript sets or clears a transcript. Owners and admins only.
func (s *SubmissionService) UpdateTranscript(ctx context.Context, p *model.Principal, id int64, transcript string) (*model.Submission, error) {
	sub, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !sub.OwnedBy(p.UserID) {
		return nil, ErrForbidden
	}

	sub.Transcript = optionalString(transcript)
	if err := s.repo.UpdateTranscript(ctx, id, sub.Transcript); err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ScriptSubmissions is the admin listing of a script's submissions.
type ScriptSubmissions struct {
	Script      *model.Script     `json:"script"`
	Submissions []*SubmissionItem `json:"submissions"`
}

// ListForScript returns every submission of a script with submitter names.
func (s *SubmissionService) ListForScript(ctx context.Context, scriptID int64) (*ScriptSubmissions, error) {
	script, err := s.repo.GetScript(ctx, scriptID)
	if err != nil {
		if errors.Is(err, repository.ErrScriptNotFound) {
			return nil, ErrScriptNotFound
		}
		return nil, err
	}
	views, err := s.repo.ListSubmissions(ctx, repository.SubmissionFilter{ScriptID: &scriptID})
	if err != nil {
		return nil, err
	}

	items := make([]*SubmissionItem, 0, len(views))
	for _, v := range views {
		item := toItem(v)
		item.Submitter = v.SubmitterName()
		item.SubmitterType = submitterType(v)
		items = append(items, item)
	}
	return &ScriptSubmissions{Script: script, Submissions: items}, nil
}

// ListUserScriptSubmissions returns all submissions of a script for admins
// and the caller's own otherwise.
func (s *SubmissionService) ListUserScriptSubmissions(ctx context.Context, p *model.Principal, scriptID int64) ([]*SubmissionItem, error) {
	if _, err := s.repo.GetScript(ctx, scriptID); err != nil {
		if errors.Is(err, repository.ErrScriptNotFound) {
			return nil, ErrScriptNotFound
		}
		return nil, err
	}

	filter := repository.SubmissionFilter{ScriptID: &scriptID}
	if !p.IsAdmin() {
		uid := p.UserID
		filter.UserID = &uid
	}
	views, err := s.repo.ListSubmissions(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*SubmissionItem, 0, len(views))
	for _, v := range views {
		item := toItem(v)
		if p.IsAdmin() {
			item.SubmitterType = submitterType(v)
			if v.IsFieldCollection {
				item.Submitter = "Field: " + orDefault(v.SpeakerName, "Anonymous")
				item.SpeakerLocation = orDefault(v.SpeakerLocation, "Unknown")
			} else {
				item.Submitter = v.SubmitterName()
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// OpenAudio authorizes and resolves a submission's audio file.
func (s *SubmissionService) OpenAudio(ctx context.Context, p *model.Principal, id int64) (*AudioFile, error) {
	sub, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !sub.OwnedBy(p.UserID) {
		return nil, ErrForbidden
	}
	if sub.AudioFilename == "" {
		return nil, ErrAudioNotFound
	}
	path, err := s.audio.Resolve(sub.AudioFilename)
	if err != nil {
		return nil, ErrAudioNotFound
	}
	return &AudioFile{
		Path:        path,
		Name:        sub.AudioFilename,
		ContentType: storage.ContentType(sub.AudioFilename),
	}, nil
}

func (s *SubmissionService) get(ctx context.Context, id int64) (*model.Submission, error) {
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// AudioURL is the streaming path of a submission's audio.
func AudioURL(id int64) string {
	return "/api/submissions/" + strconv.FormatInt(id, 10) + "/audio"
}

func toItem(v *model.SubmissionView) *SubmissionItem {
	item := &SubmissionItem{
		ID:                v.ID,
		TextContent:       v.TextContent,
		AudioFilename:     v.AudioFilename,
		Status:            v.Status,
		CreatedAt:         v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		WordCount:         v.WordCount,
		Duration:          v.Duration,
		ProviderGender:    v.ProviderGender,
		ProviderAgeGroup:  v.ProviderAgeGroup,
		IsFieldCollection: v.IsFieldCollection,
	}
	if v.Transcript != nil {
		item.Transcript = *v.Transcript
	}
	if v.AudioFilename != "" {
		u := AudioURL(v.ID)
		item.AudioURL = &u
	}
	return item
}

func submitterType(v *model.SubmissionView) string {
	if v.IsFieldCollection {
		return "field_collection"
	}
	return "user"
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
