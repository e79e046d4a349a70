package broker

import (
	"context"
	"strings"
)

// Resolver returns the broker webhook URL configured for an owner. An empty
// URL or ErrNoEndpoint means the owner cannot trade.
type Resolver interface {
	ResolveEndpoint(ctx context.Context, owner string) (string, error)
}

// StaticResolver maps owners to endpoints from configuration. The "*" key,
// when present, serves every owner without an explicit entry.
type StaticResolver map[string]string

func (r StaticResolver) ResolveEndpoint(ctx context.Context, owner string) (string, error) {
	if r == nil {
		return "", ErrNoEndpoint
	}
	if url := strings.TrimSpace(r[strings.ToLower(owner)]); url != "" {
		return url, nil
	}
	if url := strings.TrimSpace(r["*"]); url != "" {
		return url, nil
	}
	return "", ErrNoEndpoint
}
