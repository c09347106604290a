package musiclink

import (
	"context"
	"fmt"
)

// Manager dispatches a link to the first resolver that accepts it.
type Manager struct {
	resolvers []Resolver
}

// NewManager creates a manager with every supported provider. Options apply
// to all of them.
func NewManager(opts ...Option) *Manager {
	return &Manager{
		resolvers: []Resolver{
			NewSoundCloudResolver(opts...),
			NewTidalResolver(opts...),
			NewAppleMusicResolver(opts...),
		},
	}
}

func (m *Manager) Resolve(ctx context.Context, url string) (*TrackInfo, error) {
	for _, resolver := range m.resolvers {
		if resolver.CanResolve(url) {
			return resolver.Resolve(ctx, url)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLink, url)
}

func (m *Manager) CanResolve(url string) bool {
	for _, resolver := range m.resolvers {
		if resolver.CanResolve(url) {
			return true
		}
	}
	return false
}
