package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/podscribe/internal/db"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int
	Offset int
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []db.Summary `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

// List returns cached transcript summaries, most recently written first.
// Summaries come straight from the table, so unreadable entries still list.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	limit, offset := clampLimit(input.Limit, input.Offset)

	items, total, err := db.List(ctx, database, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []db.Summary{}
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}
