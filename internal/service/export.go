package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// ExportHeader is the column layout of the submissions export.
var ExportHeader = []string{
	"ID", "Audio Filename", "Script ID", "Script Content", "Transcript", "Language",
	"Speaker Gender", "Speaker Age Group", "Speaker Name", "Speaker Location",
	"Is Field Collection", "Collected By", "Status", "Word Count", "Created At",
}

// ExportService writes submission metadata as CSV.
type ExportService struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(repo *repository.Repository, logger *slog.Logger) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportService{repo: repo, logger: logger.With("component", "export")}
}

// ExportFilename names an export produced at t.
func ExportFilename(t time.Time) string {
	return "voicescript_export_" + t.Format("20060102_150405") + ".csv"
}

// WriteCSV writes every submission, newest first, optionally limited to one
// language.
func (s *ExportService) WriteCSV(ctx context.Context, w io.Writer, language string) (int, error) {
	views, err := s.repo.ListSubmissions(ctx, repository.SubmissionFilter{Language: normalizeCode(language)})
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("failed to write export header: %w", err)
	}
	for _, v := range views {
		if err := cw.Write(exportRow(v)); err != nil {
			return 0, fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush export: %w", err)
	}

	s.logger.Info("export_written", "rows", len(views), "language", language)
	return len(views), nil
}

func exportRow(v *model.SubmissionView) []string {
	transcript := ""
	if v.Transcript != nil {
		transcript = *v.Transcript
	}
	fieldCollection := "No"
	collector := orDefault(joinNames(v.SubmitterFirst, v.SubmitterLast), "Unknown")
	if v.IsFieldCollection {
		fieldCollection = "Yes"
		collector = orDefault(v.CollectorName(), "Unknown")
	}

	return []string{
		strconv.FormatInt(v.ID, 10),
		v.AudioFilename,
		strconv.FormatInt(v.ScriptID, 10),
		v.ScriptContent,
		transcript,
		v.ScriptLanguage,
		v.ProviderGender,
		v.ProviderAgeGroup,
		v.SpeakerName,
		v.SpeakerLocation,
		fieldCollection,
		collector,
		string(v.Status),
		strconv.Itoa(v.WordCount),
		v.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

func joinNames(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
