package identity

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Resolver applies identity sources in precedence order. SSO is consulted
// before legacy when both credentials are present.
type Resolver struct {
	sources []Source
	logger  *logrus.Logger
}

// NewResolver creates a resolver. Sources are tried in the order given.
func NewResolver(logger *logrus.Logger, sources ...Source) *Resolver {
	return &Resolver{sources: sources, logger: logger}
}

// ResolveUser returns the first identity any source yields, or nil when the
// request is unauthenticated. Backend errors degrade to nil rather than
// propagate: an auth check must never crash a request.
func (r *Resolver) ResolveUser(ctx context.Context, creds Credentials) *UnifiedUser {
	for _, source := range r.sources {
		user, err := source.Resolve(ctx, creds)
		if err != nil {
			r.logger.WithError(err).Warn("identity source failed, treating as unauthenticated")
			continue
		}
		if user != nil {
			return user
		}
	}
	return nil
}
