package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioOutputPath(t *testing.T) {
	dir := t.TempDir()

	t.Run("already mp3", func(t *testing.T) {
		raw := filepath.Join(dir, "song.mp3")
		assert.Equal(t, raw, audioOutputPath(raw))
	})

	t.Run("transcoded sibling exists", func(t *testing.T) {
		raw := filepath.Join(dir, "clip.webm")
		mp3 := filepath.Join(dir, "clip.mp3")
		require.NoError(t, os.WriteFile(mp3, []byte("audio"), 0644))

		assert.Equal(t, mp3, audioOutputPath(raw))
	})

	t.Run("no transcode happened", func(t *testing.T) {
		raw := filepath.Join(dir, "other.webm")
		assert.Equal(t, raw, audioOutputPath(raw))
	})

	t.Run("extension case insensitive", func(t *testing.T) {
		raw := filepath.Join(dir, "song.MP3")
		assert.Equal(t, raw, audioOutputPath(raw))
	})
}
