// Package middleware provides connect interceptors for the play API.
package middleware

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/avisly/playengine/internal/apperr"
	"github.com/avisly/playengine/internal/auth"
)

// Auth attaches the bearer token identity to the request context.
// With required set, requests without a token are refused. A token that
// fails verification is always refused.
func Auth(verifier *auth.Verifier, required bool) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			identity, err := verifier.ParseAuthorization(req.Header().Get("Authorization"))
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				if required {
					return nil, apperr.ToConnect(apperr.New(apperr.Unauthenticated))
				}
			case err != nil:
				return nil, apperr.ToConnect(apperr.Wrap(err, apperr.Unauthenticated))
			default:
				ctx = auth.WithIdentity(ctx, identity)
			}
			return next(ctx, req)
		}
	}
}
