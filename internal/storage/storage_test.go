package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"recording.webm", "recording.webm"},
		{"my voice.wav", "my_voice.wav"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\x\clip.mp3`, "clip.mp3"},
		{".hidden.ogg", "hidden.ogg"},
		{"..__x.wav", "__x.wav"},
		{"_take.wav", "_take.wav"},
		{"żółw.m4a", "___w.m4a"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SecureFilename(tt.in))
		})
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/wav", ContentType("a.WAV"))
	assert.Equal(t, "audio/mpeg", ContentType("a.mp3"))
	assert.Equal(t, "audio/mp4", ContentType("a.mp4"))
	assert.Equal(t, "audio/webm", ContentType("a.webm"))
	assert.Equal(t, "audio/webm", ContentType("a.ogg"))
}

func TestAudioStore_SaveResolveRemove(t *testing.T) {
	t.Parallel()

	store, err := NewAudioStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("take one.webm", strings.NewReader("RIFF"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, "_take_one.webm"))

	path, err := store.Resolve(name)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))

	// audio/-prefixed and absolute-looking names resolve to the same file.
	alt, err := store.Resolve("audio/" + name)
	require.NoError(t, err)
	assert.Equal(t, path, alt)

	require.NoError(t, store.Remove(name))
	_, err = store.Resolve(name)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.NoError(t, store.Remove(name), "removing twice is fine")
}

func TestAudioStore_ResolveCandidates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewAudioStore(root)
	require.NoError(t, err)

	atRoot := filepath.Join(root, "legacy.wav")
	require.NoError(t, os.WriteFile(atRoot, []byte("a"), 0o600))
	inAudio := filepath.Join(root, "audio", "clip.wav")
	require.NoError(t, os.WriteFile(inAudio, []byte("b"), 0o600))

	tests := []struct {
		name string
		want string
	}{
		{"legacy.wav", atRoot},
		{"audio/clip.wav", inAudio},
		{"clip.wav", inAudio},
		{"/srv/old/uploads/legacy.wav", atRoot},
		{"exports/2024/legacy.wav", atRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Resolve(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = store.Resolve("exports/2024/clip.wav")
	assert.ErrorIs(t, err, ErrFileNotFound, "basename fallback looks in the root only")
}

func TestAudioStore_RejectsDisallowed(t *testing.T) {
	t.Parallel()

	store, err := NewAudioStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("script.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrDisallowedType)
}

func TestAudioStore_ResolveStaysInside(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	secret := filepath.Join(parent, "secret.wav")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o600))

	store, err := NewAudioStore(filepath.Join(parent, "uploads"))
	require.NoError(t, err)

	_, err = store.Resolve("../secret.wav")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
