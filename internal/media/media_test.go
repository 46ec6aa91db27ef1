package media

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "My Video Title", "my-video-title"},
		{"accents stripped", "Café Déjà Vu", "cafe-deja-vu"},
		{"punctuation removed", "What?! A (Great) Video...", "what-a-great-video"},
		{"dash runs collapsed", "a -- b  -  c", "a-b-c"},
		{"leading trailing dashes", "--hello--", "hello"},
		{"non ascii only", "日本語のタイトル", "untitled"},
		{"empty", "", "untitled"},
		{"underscores kept", "my_video_title", "my_video_title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeTitle(tt.input))
		})
	}
}

func TestSanitizeTitle_Cap(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcdefghij"
	}
	got := SanitizeTitle(long)
	assert.Len(t, got, 100)
}

func TestVerifyWAV(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.wav")
	header := append([]byte("RIFF"), make([]byte, 4)...)
	header = append(header, []byte("WAVEfmt ")...)
	header = append(header, make([]byte, 44-len(header))...)
	require.NoError(t, os.WriteFile(valid, header, 0o600))
	assert.NoError(t, VerifyWAV(valid))

	truncated := filepath.Join(dir, "short.wav")
	require.NoError(t, os.WriteFile(truncated, []byte("RIFF"), 0o600))
	assert.Error(t, VerifyWAV(truncated))

	notWav := filepath.Join(dir, "not.wav")
	require.NoError(t, os.WriteFile(notWav, make([]byte, 44), 0o600))
	assert.Error(t, VerifyWAV(notWav))

	noWaveMarker := filepath.Join(dir, "nowave.wav")
	data := append([]byte("RIFF"), make([]byte, 40)...)
	require.NoError(t, os.WriteFile(noWaveMarker, data, 0o600))
	assert.Error(t, VerifyWAV(noWaveMarker))
}

func TestParseProgressLine(t *testing.T) {
	update, ok := parseProgressLine("[download]  45.2% of 10.00MiB at 2.00MiB/s ETA 00:02")
	require.True(t, ok)
	assert.InDelta(t, 45.2, update.Percent, 0.001)
	assert.Equal(t, int64(10*1024*1024), update.TotalBytes)
	frac := 0.452
	assert.Equal(t, int64(float64(10*1024*1024)*frac), update.DownloadedBytes)
	assert.InDelta(t, 2*1024*1024, update.Speed, 0.1)
	assert.False(t, update.Finished)

	update, ok = parseProgressLine("[download] 100% of 10.00MiB in 00:05")
	require.True(t, ok)
	assert.True(t, update.Finished)

	_, ok = parseProgressLine("[ExtractAudio] Destination: clip.wav")
	assert.False(t, ok)
}

func TestProbeResult_Duration(t *testing.T) {
	r := &ProbeResult{Format: ProbeFormat{Duration: "300.500000"}}
	assert.Equal(t, 300*time.Second+500*time.Millisecond, r.Duration())

	r = &ProbeResult{}
	assert.Equal(t, time.Duration(0), r.Duration())

	r = &ProbeResult{Format: ProbeFormat{Duration: "garbage"}}
	assert.Equal(t, time.Duration(0), r.Duration())
}
