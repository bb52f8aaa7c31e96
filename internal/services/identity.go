package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
)

// IdentityProvider supplies the user the current request acts for.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (*models.Identity, error)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// ContextIdentityProvider reads the identity stored by WithIdentity.
type ContextIdentityProvider struct{}

func (ContextIdentityProvider) CurrentUser(ctx context.Context) (*models.Identity, error) {
	identity, ok := ctx.Value(identityKey{}).(*models.Identity)
	if !ok || identity == nil || identity.ID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	return identity, nil
}
