// Package storage keeps uploaded audio on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrDisallowedType is returned for extensions outside AllowedExtensions.
	ErrDisallowedType = errors.New("file type not allowed")
	// ErrFileNotFound is returned when no candidate path exists.
	ErrFileNotFound = errors.New("audio file not found")
	// ErrInvalidName is returned for names that escape the upload directory.
	ErrInvalidName = errors.New("invalid file name")
)

// AllowedExtensions lists accepted audio extensions.
var AllowedExtensions = []string{".wav", ".mp3", ".webm", ".ogg", ".m4a", ".mp4"}

// AudioStore saves and resolves audio files under an upload root.
type AudioStore struct {
	root     string
	audioDir string
}

// NewAudioStore creates the audio directory under root if needed.
func NewAudioStore(root string) (*AudioStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	audioDir := filepath.Join(abs, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &AudioStore{root: abs, audioDir: audioDir}, nil
}

// Root returns the absolute upload directory.
func (s *AudioStore) Root() string { return s.root }

// Allowed reports whether a filename has an accepted extension.
func Allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Save writes r under a unique name derived from original and returns
// the stored name.
func (s *AudioStore) Save(original string, r io.Reader) (string, error) {
	if !Allowed(original) {
		return "", ErrDisallowedType
	}
	safe := SecureFilename(original)
	if safe == "" {
		safe = "recording" + strings.ToLower(filepath.Ext(original))
	}
	name := uuid.NewString() + "_" + safe

	f, err := os.OpenFile(filepath.Join(s.audioDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close audio file: %w", err)
	}
	return name, nil
}

// Resolve returns the absolute path of a stored file. Candidates are
// root/name, root/audio/name and root/basename(name); older rows may hold
// any of these forms.
func (s *AudioStore) Resolve(name string) (string, error) {
	if name == "" {
		return "", ErrFileNotFound
	}
	candidates := []string{
		filepath.Join(s.root, name),
		filepath.Join(s.audioDir, name),
		filepath.Join(s.root, filepath.Base(name)),
	}
	for _, c := range candidates {
		if !s.within(c) {
			continue
		}
		info, err := os.Stat(c)
		if err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", ErrFileNotFound
}

// Remove deletes a stored file. Missing files are not an error.
func (s *AudioStore) Remove(name string) error {
	path, err := s.Resolve(name)
	if errors.Is(err, ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove audio file: %w", err)
	}
	return nil
}

func (s *AudioStore) within(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// ContentType maps an audio filename to its MIME type.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "audio/mp4"
	}
	return "audio/webm"
}

// SecureFilename reduces name to ASCII letters, digits, '.', '_' and '-'
// and strips leading dots.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}
