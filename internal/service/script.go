package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

const (
	defaultPageSize = 20
	minPageSize     = 10
	maxPageSize     = 100
)

// AudioRemover deletes stored audio files.
type AudioRemover interface {
	Remove(name string) error
}

// ScriptService manages scripts.
type ScriptService struct {
	repo    *repository.Repository
	audio   AudioRemover
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewScriptService creates a new ScriptService.
func NewScriptService(repo *repository.Repository, audio AudioRemover, recorder metrics.Recorder, logger *slog.Logger) *ScriptService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptService{
		repo:    repo,
		audio:   audio,
		metrics: recorder,
		logger:  logger.With("component", "scripts"),
	}
}

// SearchInput defines a script search.
type SearchInput struct {
	Query    string
	Language string
	Page     int
	PageSize int
}

// ScriptPage is one page of search results.
type ScriptPage struct {
	Items    []*model.Script `json:"items"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int64           `json:"total"`
	HasNext  bool            `json:"has_next"`
}

// ScriptInput carries script fields. Nil fields are left alone on update.
type ScriptInput struct {
	Title          *string
	Content        *string
	Category       *string
	Difficulty     *string
	TargetDuration *int
	Language       *string
	IsActive       *bool
}

// DeleteResult summarizes a cascading delete.
type DeleteResult struct {
	DeletedCount       int64 `json:"deleted_count"`
	DeletedSubmissions int64 `json:"deleted_submissions"`
	DeletedFiles       int   `json:"deleted_files"`
}

// normalizePage clamps page to >= 1 and page size to [10, 100].
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = defaultPageSize
	case size < minPageSize:
		size = minPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	return page, size
}

// Search lists active scripts matching the query.
func (s *ScriptService) Search(ctx context.Context, in SearchInput) (*ScriptPage, error) {
	page, size := normalizePage(in.Page, in.PageSize)

	items, total, err := s.repo.SearchScripts(ctx, repository.ScriptFilter{
		Query:      strings.TrimSpace(in.Query),
		Language:   normalizeCode(in.Language),
		ActiveOnly: true,
		Offset:     uint64((page - 1) * size),
		Limit:      uint64(size),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Script{}
	}

	return &ScriptPage{
		Items:    items,
		Page:     page,
		PageSize: size,
		Total:    total,
		HasNext:  int64(page*size) < total,
	}, nil
}

// ListAll returns every script for the admin table.
func (s *ScriptService) ListAll(ctx context.Context) ([]*model.Script, error) {
	return s.repo.ListScripts(ctx)
}

// GetActive returns an active script.
func (s *ScriptService) GetActive(ctx context.Context, id int64) (*model.Script, error) {
	script, err := s.repo.GetActiveScript(ctx, id)
	if errors.Is(err, repository.ErrScriptNotFound) {
		return nil, ErrScriptNotFound
	}
	return script, err
}

// Get returns any script.
func (s *ScriptService) Get(ctx context.Context, id int64) (*model.Script, error) {
	script, err := s.repo.GetScript(ctx, id)
	if errors.Is(err, repository.ErrScriptNotFound) {
		return nil, ErrScriptNotFound
	}
	return script, err
}

// Create adds a script. Content is required and language defaults to en.
func (s *ScriptService) Create(ctx context.Context, in ScriptInput) (*model.Script, error) {
	if in.Content == nil || strings.TrimSpace(*in.Content) == "" {
		return nil, invalid("content", "script content is required")
	}

	script := &model.Script{
		Content:        strings.TrimSpace(*in.Content),
		Language:       model.DefaultLanguageCode,
		IsActive:       true,
		TargetDuration: in.TargetDuration,
	}
	if in.Title != nil {
		script.Title = strings.TrimSpace(*in.Title)
	}
	if in.Category != nil {
		script.Category = strings.TrimSpace(*in.Category)
	}
	if in.Difficulty != nil {
		script.Difficulty = strings.TrimSpace(*in.Difficulty)
	}
	if in.Language != nil && normalizeCode(*in.Language) != "" {
		script.Language = normalizeCode(*in.Language)
	}
	if in.IsActive != nil {
		script.IsActive = *in.IsActive
	}

	if err := s.repo.CreateScript(ctx, script); err != nil {
		return nil, err
	}
	s.logger.Info("script_created", "script_id", script.ID, "language", script.Language)
	return script, nil
}

// Update edits content, language and the active flag.
func (s *ScriptService) Update(ctx context.Context, id int64, in ScriptInput) (*model.Script, error) {
	script, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, invalid("content", "script content cannot be empty")
		}
		script.Content = strings.TrimSpace(*in.Content)
	}
	if in.Language != nil && normalizeCode(*in.Language) != "" {
		script.Language = normalizeCode(*in.Language)
	}
	if in.IsActive != nil {
		script.IsActive = *in.IsActive
	}

	if err := s.repo.UpdateScript(ctx, script); err != nil {
		if errors.Is(err, repository.ErrScriptNotFound) {
			return nil, ErrScriptNotFound
		}
		return nil, err
	}
	return script, nil
}

// Delete removes a script, its submissions and their audio.
func (s *ScriptService) Delete(ctx context.Context, id int64) (*DeleteResult, error) {
	res, err := s.deleteScripts(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if res.DeletedCount == 0 {
		return nil, ErrScriptNotFound
	}
	return res, nil
}

// BulkDelete removes several scripts with the same cascade.
func (s *ScriptService) BulkDelete(ctx context.Context, ids []int64) (*DeleteResult, error) {
	if len(ids) == 0 {
		return nil, invalid("script_ids", "no script ids provided")
	}
	return s.deleteScripts(ctx, ids)
}

func (s *ScriptService) deleteScripts(ctx context.Context, ids []int64) (*DeleteResult, error) {
	del, err := s.repo.DeleteScripts(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := &DeleteResult{
		DeletedCount:       del.DeletedScripts,
		DeletedSubmissions: del.DeletedSubmissions,
	}
	for _, name := range del.AudioFilenames {
		if s.audio == nil {
			break
		}
		if err := s.audio.Remove(name); err != nil {
			s.logger.Warn("audio_remove_failed", "file", name, "error", err)
			continue
		}
		res.DeletedFiles++
	}

	s.logger.Info("scripts_deleted",
		"count", res.DeletedCount,
		"submissions", res.DeletedSubmissions,
		"files", res.DeletedFiles,
	)
	return res, nil
}
