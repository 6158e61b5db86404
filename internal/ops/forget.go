package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/podscribe/internal/db"
	"github.com/hpungsan/podscribe/internal/errors"
)

// ForgetInput contains parameters for the Forget operation.
type ForgetInput struct {
	URL string // either URL or Key
	Key string
}

// ForgetOutput contains the result of the Forget operation.
type ForgetOutput struct {
	Key       string `json:"key"`
	Forgotten bool   `json:"forgotten"`
}

// Forget removes a cached transcript so the next request recomputes it.
// Returns NOT_FOUND if nothing was cached.
func Forget(ctx context.Context, database *sql.DB, input ForgetInput) (*ForgetOutput, error) {
	addr, err := ResolveAddress(input.URL, input.Key)
	if err != nil {
		return nil, err
	}

	existed, err := db.Delete(ctx, database, addr.Key.String())
	if err != nil {
		return nil, err
	}
	if !existed {
		return nil, errors.NewNotFound(addr.Key.String())
	}

	return &ForgetOutput{Key: addr.Key.String(), Forgotten: true}, nil
}
