package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingToken is returned when no bearer token is present
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when a token fails verification
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims represents the JWT claims structure
type Claims struct {
	UserID       string   `json:"user_id"`
	RestaurantID string   `json:"restaurant_id,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed bearer tokens
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier for tokens signed with secret
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// ParseAuthorization extracts and verifies the token of an Authorization header
func (v *Verifier) ParseAuthorization(header string) (*Identity, error) {
	if header == "" {
		return nil, ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("%w: expected Bearer <token>", ErrInvalidToken)
	}
	return v.Parse(strings.TrimSpace(parts[1]))
}

// Parse verifies a raw token and returns the identity it carries
func (v *Verifier) Parse(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	identity := &Identity{
		UserID: claims.UserID,
		Roles:  claims.Roles,
	}
	if claims.RestaurantID != "" {
		restaurantID, err := uuid.Parse(claims.RestaurantID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad restaurant_id", ErrInvalidToken)
		}
		identity.RestaurantID = restaurantID
	}

	return identity, nil
}

// GenerateToken signs a token for identity, valid for expiration
func GenerateToken(secret, issuer string, identity Identity, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: identity.UserID,
		Roles:  identity.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if identity.RestaurantID != uuid.Nil {
		claims.RestaurantID = identity.RestaurantID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
