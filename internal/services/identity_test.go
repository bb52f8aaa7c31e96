package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIdentityProvider(t *testing.T) {
	var provider IdentityProvider = ContextIdentityProvider{}

	_, err := provider.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = provider.CurrentUser(WithIdentity(context.Background(), &models.Identity{}))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	id := uuid.New()
	identity, err := provider.CurrentUser(WithIdentity(context.Background(), &models.Identity{ID: id}))
	require.NoError(t, err)
	assert.Equal(t, id, identity.ID)
}
