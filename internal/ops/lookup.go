package ops

import (
	"context"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/transcript"
)

// LookupInput contains parameters for the Lookup operation.
type LookupInput struct {
	URL string // either URL or Key
	Key string

	// Analytics adds speaker and entity statistics to the output.
	Analytics bool
}

// LookupOutput contains the result of the Lookup operation.
type LookupOutput struct {
	Key    string             `json:"key"`
	URL    string             `json:"url,omitempty"`
	Record *transcript.Record `json:"record"`

	Analytics *transcript.Analytics `json:"analytics,omitempty"`
}

// Lookup returns a cached transcript without computing one.
// Unreadable entries are reported as NOT_FOUND, the same as absent ones.
func Lookup(ctx context.Context, svc *cache.Service, input LookupInput) (*LookupOutput, error) {
	addr, err := ResolveAddress(input.URL, input.Key)
	if err != nil {
		return nil, err
	}

	rec, ok := svc.LookupKey(ctx, addr.Key)
	if !ok {
		id := addr.URL
		if id == "" {
			id = addr.Key.String()
		}
		return nil, errors.NewNotFound(id)
	}

	out := &LookupOutput{
		Key:    addr.Key.String(),
		URL:    addr.URL,
		Record: rec,
	}
	if input.Analytics {
		out.Analytics = rec.Analyze()
	}
	return out, nil
}
