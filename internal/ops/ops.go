package ops

import (
	"strings"

	"github.com/hpungsan/podscribe/internal/cachekey"
	"github.com/hpungsan/podscribe/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Address identifies a cached transcript either by its source URL or by an
// already derived key.
type Address struct {
	URL string // empty when addressed by key
	Key cachekey.Key
}

// ResolveAddress validates addressing parameters.
// Rules:
// - Must specify exactly one of url or key
// - url is used byte-for-byte; it is never trimmed or normalized
// - key must be 64 lowercase hex characters
func ResolveAddress(url, key string) (*Address, error) {
	hasURL := strings.TrimSpace(url) != ""
	key = strings.TrimSpace(key)
	hasKey := key != ""

	if hasURL && hasKey {
		return nil, errors.NewInvalidRequest("specify either url or key, not both")
	}
	if !hasURL && !hasKey {
		return nil, errors.NewInvalidRequest("must specify either url or key")
	}

	if hasURL {
		return &Address{URL: url, Key: cachekey.Derive(url)}, nil
	}

	k, ok := cachekey.Parse(key)
	if !ok {
		return nil, errors.NewInvalidRequest("key must be 64 lowercase hex characters")
	}
	return &Address{Key: k}, nil
}

// clampLimit applies list pagination defaults and bounds.
func clampLimit(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
