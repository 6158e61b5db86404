package ops

import (
	"context"
	"database/sql"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/db"
)

// StatsOutput contains the result of the Stats operation.
type StatsOutput struct {
	Entries     int    `json:"entries"`
	StoredBytes int64  `json:"stored_bytes"`
	StoredHuman string `json:"stored_human"`
	LastWrite   string `json:"last_write,omitempty"`

	// Service counters cover this process only.
	Service cache.Stats `json:"service"`
}

// Stats reports cache size and the service's hit/miss counters.
func Stats(ctx context.Context, database *sql.DB, svc *cache.Service) (*StatsOutput, error) {
	count, bytes, err := db.Totals(ctx, database)
	if err != nil {
		return nil, err
	}

	out := &StatsOutput{
		Entries:     count,
		StoredBytes: bytes,
		StoredHuman: humanize.Bytes(uint64(bytes)),
	}
	if svc != nil {
		out.Service = svc.Stats()
	}

	if count > 0 {
		recent, _, err := db.List(ctx, database, 1, 0)
		if err != nil {
			return nil, err
		}
		if len(recent) > 0 {
			out.LastWrite = humanize.Time(unixTime(recent[0].UpdatedAt))
		}
	}
	return out, nil
}
