// Package pipeline produces transcripts for uncached URLs: it fetches the
// audio track and hands it to a transcription service.
package pipeline

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/logging"
	"github.com/hpungsan/podscribe/internal/transcript"
)

// Downloader fetches the audio of a source URL into a local file.
// The caller owns the returned file and removes it when done.
type Downloader interface {
	Download(ctx context.Context, url string) (audioPath string, err error)
}

// Transcriber turns a local audio file into a transcript record.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcript.Record, error)
}

// Pipeline chains a Downloader and a Transcriber.
type Pipeline struct {
	downloader  Downloader
	transcriber Transcriber
	log         *log.Logger
}

// New returns a Pipeline. A nil logger discards output.
func New(d Downloader, t Transcriber, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{downloader: d, transcriber: t, log: logger}
}

// FromConfig wires yt-dlp and AssemblyAI from configuration.
func FromConfig(cfg *config.Config, logger *log.Logger) *Pipeline {
	return New(
		NewYTDLP(cfg.YTDLPPath, cfg.TempDir),
		NewAssemblyAI(cfg.AssemblyAIAPIKey, cfg.AssemblyAIBaseURL),
		logger,
	)
}

// Compute returns a cache.ComputeFunc that transcribes url.
func (p *Pipeline) Compute(url string) cache.ComputeFunc {
	return func(ctx context.Context) (*transcript.Record, error) {
		return p.Run(ctx, url)
	}
}

// Run downloads and transcribes url. The downloaded audio is always removed.
// Failures are COMPUTE_FAILED errors naming the stage, or CANCELLED if ctx ended.
func (p *Pipeline) Run(ctx context.Context, url string) (*transcript.Record, error) {
	p.log.Info("downloading audio", "url", url)
	audioPath, err := p.downloader.Download(ctx, url)
	if err != nil {
		return nil, stageError(ctx, "download", err)
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			p.log.Warn("failed to remove temp audio", "path", audioPath, "err", err)
		}
	}()

	p.log.Info("transcribing", "url", url, "audio", audioPath)
	rec, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, stageError(ctx, "transcribe", err)
	}
	return rec, nil
}

func stageError(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(stage)
	}
	return errors.NewComputeFailed(stage, err)
}
