package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// YTDLP downloads audio with the yt-dlp executable and converts it to mp3.
type YTDLP struct {
	path    string
	tempDir string
	run     runFunc
}

// NewYTDLP returns a downloader using the executable at path (looked up on
// PATH when bare) and writing into tempDir. An empty tempDir means
// os.TempDir()/podscribe.
func NewYTDLP(path, tempDir string) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "podscribe")
	}
	return &YTDLP{path: path, tempDir: tempDir, run: execRun}
}

// Download fetches url's best audio stream into <tempDir>/<uuid>.mp3.
func (y *YTDLP) Download(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(y.tempDir, 0700); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	base := filepath.Join(y.tempDir, uuid.NewString())
	args := []string{
		"--no-playlist",
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--output", base + ".%(ext)s",
		"--", url,
	}

	out, err := y.run(ctx, y.path, args...)
	// Intermediate containers (webm, m4a) are left behind on failure and
	// sometimes on success.
	defer removeSiblings(base, ".mp3")
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %s: %w", strings.TrimSpace(string(out)), err)
	}

	mp3 := base + ".mp3"
	if _, err := os.Stat(mp3); err != nil {
		return "", fmt.Errorf("yt-dlp produced no mp3 for %s", url)
	}
	return mp3, nil
}

// removeSiblings deletes base.* files except the one with the keep extension.
func removeSiblings(base, keep string) {
	matches, _ := filepath.Glob(base + ".*")
	for _, m := range matches {
		if filepath.Ext(m) != keep {
			_ = os.Remove(m)
		}
	}
}
