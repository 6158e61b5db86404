package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/transcript"
)

// ProcessInput contains parameters for the Process operation.
type ProcessInput struct {
	URL     string            // required
	Compute cache.ComputeFunc // required; called only on a miss
}

// ProcessOutput contains the result of the Process operation.
type ProcessOutput struct {
	Key       string             `json:"key"`
	URL       string             `json:"url"`
	Hit       bool               `json:"hit"`
	Persisted bool               `json:"persisted"`
	Warning   string             `json:"warning,omitempty"`
	Record    *transcript.Record `json:"record"`
}

// Process returns the transcript for a URL, computing and caching it on a miss.
// A failed cache write is reported as a warning; the transcript is still returned.
func Process(ctx context.Context, svc *cache.Service, input ProcessInput) (*ProcessOutput, error) {
	if strings.TrimSpace(input.URL) == "" {
		return nil, errors.NewInvalidRequest("url is required")
	}
	if input.Compute == nil {
		return nil, errors.NewInvalidRequest("no transcription pipeline configured")
	}

	res, err := svc.GetOrCompute(ctx, input.URL, input.Compute)
	if err != nil {
		return nil, err
	}

	out := &ProcessOutput{
		Key:       res.Key.String(),
		URL:       input.URL,
		Hit:       res.Hit,
		Persisted: res.Persisted(),
		Record:    res.Record,
	}
	if res.PersistErr != nil {
		out.Warning = res.PersistErr.Error()
	}
	return out, nil
}
