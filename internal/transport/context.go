package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type identityIDKey struct{}

// errNoIdentity is returned by identityFromContext when requireAuth was not
// applied upstream of the handler.
var errNoIdentity = errors.New("transport: no identity in context")

func withIdentityID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, identityIDKey{}, id)
}

func identityFromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(identityIDKey{}).(uuid.UUID)
	if !ok {
		return uuid.Nil, errNoIdentity
	}
	return id, nil
}
