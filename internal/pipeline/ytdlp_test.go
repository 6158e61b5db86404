package pipeline

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outputTemplate returns the value following --output.
func outputTemplate(args []string) string {
	for i, a := range args {
		if a == "--output" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestYTDLP_Download(t *testing.T) {
	dir := t.TempDir()
	y := NewYTDLP("/usr/local/bin/yt-dlp", dir)

	var gotName string
	var gotArgs []string
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		base := strings.TrimSuffix(outputTemplate(args), ".%(ext)s")
		require.NoError(t, os.WriteFile(base+".webm", []byte("raw"), 0600))
		require.NoError(t, os.WriteFile(base+".mp3", []byte("ID3"), 0600))
		return nil, nil
	}

	path, err := y.Download(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/yt-dlp", gotName)
	assert.Equal(t, "https://youtu.be/abc123", gotArgs[len(gotArgs)-1])
	assert.Contains(t, gotArgs, "--extract-audio")
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".mp3", filepath.Ext(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "intermediate files should be removed")
}

func TestYTDLP_UniqueNames(t *testing.T) {
	y := NewYTDLP("", t.TempDir())
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		base := strings.TrimSuffix(outputTemplate(args), ".%(ext)s")
		return nil, os.WriteFile(base+".mp3", nil, 0600)
	}

	a, err := y.Download(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	b, err := y.Download(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestYTDLP_CommandFailure(t *testing.T) {
	y := NewYTDLP("", t.TempDir())
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("ERROR: Video unavailable\n"), stderrors.New("exit status 1")
	}

	_, err := y.Download(context.Background(), "https://youtu.be/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestYTDLP_NoOutputFile(t *testing.T) {
	y := NewYTDLP("", t.TempDir())
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, nil
	}

	_, err := y.Download(context.Background(), "https://youtu.be/abc123")
	assert.ErrorContains(t, err, "no mp3")
}

func TestNewYTDLP_Defaults(t *testing.T) {
	y := NewYTDLP("", "")
	assert.Equal(t, "yt-dlp", y.path)
	assert.Equal(t, filepath.Join(os.TempDir(), "podscribe"), y.tempDir)
}
