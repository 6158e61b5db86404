package pipeline

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/store"
	"github.com/hpungsan/podscribe/internal/transcript"
)

type fakeDownloader struct {
	dir   string
	err   error
	calls int
	path  string
}

func (f *fakeDownloader) Download(ctx context.Context, url string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.path = filepath.Join(f.dir, "audio.mp3")
	return f.path, os.WriteFile(f.path, []byte("ID3"), 0600)
}

type fakeTranscriber struct {
	rec  *transcript.Record
	err  error
	seen string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*transcript.Record, error) {
	f.seen = audioPath
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func sampleRecord() *transcript.Record {
	return &transcript.Record{
		Text:       "hello world",
		Utterances: []transcript.Utterance{{Speaker: "A", Start: 0, End: 1000, Text: "hello world"}},
	}
}

func TestRun_Success(t *testing.T) {
	d := &fakeDownloader{dir: t.TempDir()}
	tr := &fakeTranscriber{rec: sampleRecord()}
	p := New(d, tr, nil)

	rec, err := p.Run(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), rec)
	assert.Equal(t, d.path, tr.seen)

	_, err = os.Stat(d.path)
	assert.True(t, os.IsNotExist(err), "temp audio should be removed")
}

func TestRun_DownloadFailure(t *testing.T) {
	p := New(&fakeDownloader{err: stderrors.New("video unavailable")}, &fakeTranscriber{}, nil)

	_, err := p.Run(context.Background(), "https://youtu.be/gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrComputeFailed))
	assert.Contains(t, err.Error(), "download failed")
}

func TestRun_TranscribeFailureStillCleansUp(t *testing.T) {
	d := &fakeDownloader{dir: t.TempDir()}
	p := New(d, &fakeTranscriber{err: stderrors.New("quota exceeded")}, nil)

	_, err := p.Run(context.Background(), "https://youtu.be/abc123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrComputeFailed))
	assert.Contains(t, err.Error(), "transcribe failed")

	_, statErr := os.Stat(d.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&fakeDownloader{err: context.Canceled}, &fakeTranscriber{}, nil)
	_, err := p.Run(ctx, "https://youtu.be/abc123")
	assert.True(t, errors.Is(err, errors.ErrCancelled))
}

func TestCompute_WithCacheService(t *testing.T) {
	ctx := context.Background()
	d := &fakeDownloader{dir: t.TempDir()}
	p := New(d, &fakeTranscriber{rec: sampleRecord()}, nil)
	svc := cache.New(store.NewMemory())
	url := "https://youtu.be/abc123"

	first, err := svc.GetOrCompute(ctx, url, p.Compute(url))
	require.NoError(t, err)
	second, err := svc.GetOrCompute(ctx, url, p.Compute(url))
	require.NoError(t, err)

	assert.False(t, first.Hit)
	assert.True(t, second.Hit)
	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, 1, d.calls, "second request must not download again")
}

func TestCompute_FailurePropagatesThroughCache(t *testing.T) {
	p := New(&fakeDownloader{err: stderrors.New("403")}, &fakeTranscriber{}, nil)
	svc := cache.New(store.NewMemory())

	_, err := svc.GetOrCompute(context.Background(), "u", p.Compute("u"))
	assert.True(t, errors.Is(err, errors.ErrComputeFailed))
}
