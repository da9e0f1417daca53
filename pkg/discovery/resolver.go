package discovery

import (
	"context"

	"github.com/grandcat/zeroconf"
)

// Resolver is the interface for mDNS service browsing. This allows
// for dependency injection in tests.
//
// Browse starts browsing and returns; entries receive asynchronously.
// The resolver closes the entries channel when the browse ends
// (zeroconf does this when ctx is done).
type Resolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using
// grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

var _ Resolver = (*zeroconfResolver)(nil)

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}
