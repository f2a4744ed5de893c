package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// ImportResult summarizes a bulk import.
type ImportResult struct {
	CreatedCount int      `json:"created_count"`
	Warnings     []string `json:"warnings,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// importRow is one candidate script with its position for warnings.
type importRow struct {
	label  string
	script *model.Script
}

// ImportCSV creates scripts from a CSV with a required content column.
func (s *ScriptService) ImportCSV(ctx context.Context, r io.Reader, language string) (*ImportResult, error) {
	lang, err := s.requireLanguage(ctx, language)
	if err != nil {
		return nil, err
	}
	rows, warnings, err := parseScriptCSV(r, lang)
	if err != nil {
		return nil, err
	}
	return s.importRows(ctx, rows, warnings)
}

// ImportText creates one script per non-empty line.
func (s *ScriptService) ImportText(ctx context.Context, text, language string) (*ImportResult, error) {
	lang, err := s.requireLanguage(ctx, language)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, invalid("scriptText", "script text is required")
	}
	rows := parseScriptLines(text, lang)
	if len(rows) == 0 {
		return nil, invalid("scriptText", "no valid script lines found")
	}
	return s.importRows(ctx, rows, nil)
}

func (s *ScriptService) requireLanguage(ctx context.Context, language string) (string, error) {
	code := normalizeCode(language)
	if code == "" {
		return "", invalid("language", "language selection is required")
	}
	if _, err := s.repo.GetLanguage(ctx, code); err != nil {
		if errors.Is(err, repository.ErrLanguageNotFound) {
			return "", invalid("language", "invalid language selected")
		}
		return "", err
	}
	return code, nil
}

// importRows inserts rows in one transaction, skipping content that already
// exists in the language or earlier in the same batch.
func (s *ScriptService) importRows(ctx context.Context, rows []importRow, warnings []string) (*ImportResult, error) {
	created := 0
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		seen := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			content := row.script.Content
			if _, dup := seen[content]; dup {
				warnings = append(warnings, row.label+": Script with same content already exists")
				continue
			}
			exists, err := tx.ScriptExistsByContent(ctx, content, row.script.Language)
			if err != nil {
				return err
			}
			if exists {
				warnings = append(warnings, row.label+": Script with same content already exists")
				continue
			}
			if err := tx.CreateScript(ctx, row.script); err != nil {
				return err
			}
			seen[content] = struct{}{}
			created++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import scripts: %w", err)
	}

	res := &ImportResult{CreatedCount: created, Warnings: warnings}
	if len(warnings) > 0 {
		res.Message = fmt.Sprintf("Created %d scripts with %d warnings", created, len(warnings))
	}
	s.metrics.IncScriptsImported(created)
	s.logger.Info("scripts_imported", "created", created, "warnings", len(warnings))
	return res, nil
}

// parseScriptCSV reads a header row (BOM tolerated, names case-insensitive)
// and returns one row per non-empty content cell. Data rows count from 2.
func parseScriptCSV(r io.Reader, language string) ([]importRow, []string, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, invalid("csvFile", "CSV file is empty")
		}
		return nil, nil, invalid("csvFile", "failed to read CSV: "+err.Error())
	}

	cols := make(map[string]int, len(header))
	names := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		names = append(names, h)
		if _, ok := cols[strings.ToLower(h)]; !ok {
			cols[strings.ToLower(h)] = i
		}
	}
	contentIdx, ok := cols["content"]
	if !ok {
		return nil, nil, invalid("csvFile",
			"CSV must have a 'content' column. Found columns: "+strings.Join(names, ", "))
	}

	cell := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		rows     []importRow
		warnings []string
	)
	for rowNum := 2; ; rowNum++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		label := "Row " + strconv.Itoa(rowNum)
		if err != nil {
			warnings = append(warnings, label+": "+err.Error())
			continue
		}

		content := ""
		if contentIdx < len(rec) {
			content = strings.TrimSpace(rec[contentIdx])
		}
		if content == "" {
			warnings = append(warnings, label+": Empty content")
			continue
		}

		script := &model.Script{
			Title:      cell(rec, "title"),
			Content:    content,
			Category:   cell(rec, "category"),
			Difficulty: cell(rec, "difficulty"),
			Language:   language,
			IsActive:   true,
		}
		if d := cell(rec, "target_duration"); d != "" {
			n, err := strconv.Atoi(d)
			if err != nil || n < 0 {
				warnings = append(warnings, label+": Invalid target_duration ignored")
			} else {
				script.TargetDuration = &n
			}
		}
		rows = append(rows, importRow{label: label, script: script})
	}
	return rows, warnings, nil
}

// parseScriptLines numbers the non-empty trimmed lines from 1.
func parseScriptLines(text, language string) []importRow {
	var rows []importRow
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n++
		rows = append(rows, importRow{
			label:  "Line " + strconv.Itoa(n),
			script: &model.Script{Content: line, Language: language, IsActive: true},
		})
	}
	return rows
}
