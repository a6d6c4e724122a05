package auth

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// RoleOperator marks accounts allowed to bypass the fraud gate
const RoleOperator = "operator"

// Identity is the authenticated caller as resolved from a bearer token
type Identity struct {
	UserID       string
	RestaurantID uuid.UUID // uuid.Nil when the token carries no restaurant
	Roles        []string
}

// HasRole reports whether the identity carries role
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Roles, role)
}

// HasRestaurant reports whether the token is scoped to a restaurant
func (i *Identity) HasRestaurant() bool {
	return i != nil && i.RestaurantID != uuid.Nil
}

type identityKey struct{}

// WithIdentity stores the identity in ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, if any
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
