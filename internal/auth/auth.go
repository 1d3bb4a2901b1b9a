// Package auth issues and verifies the HS256 bearer tokens that identify callers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medlink/m/domain"
)

type ctxKey string

const ctxActor ctxKey = "actor"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the actor identity inside the token.
type Claims struct {
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	PharmacyID int64  `json:"pharmacy_id,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) Actor() domain.Actor {
	return domain.Actor{UserID: c.UserID, Role: c.Role, PharmacyID: c.PharmacyID}
}

// Issuer signs and parses tokens with a shared secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

func (i *Issuer) Generate(actor domain.Actor, ttl time.Duration) (string, error) {
	switch actor.Role {
	case domain.RolePatient, domain.RoleAdmin:
	case domain.RolePharmacy:
		if actor.PharmacyID <= 0 {
			return "", fmt.Errorf("pharmacy tokens need a pharmacy id")
		}
	default:
		return "", fmt.Errorf("unknown role %q", actor.Role)
	}

	now := i.now()
	claims := Claims{
		UserID:     actor.UserID,
		Role:       actor.Role,
		PharmacyID: actor.PharmacyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) Parse(tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID <= 0 || claims.Role == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	return claims.Actor(), nil
}

// FromHeader extracts the actor from an "Authorization: Bearer" header.
func (i *Issuer) FromHeader(header string) (domain.Actor, error) {
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return domain.Actor{}, ErrMissingToken
	}
	return i.Parse(strings.TrimSpace(header[len("Bearer "):]))
}

// Middleware rejects requests without a valid token and stores the actor in the context.
// onError writes the rejection; it receives ErrMissingToken or ErrInvalidToken.
func (i *Issuer) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := i.FromHeader(r.Header.Get("Authorization"))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxActor, actor)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ctxActor).(domain.Actor)
	return actor, ok
}

// HasRole reports whether the actor holds one of the allowed roles.
func HasRole(actor domain.Actor, allowed ...string) bool {
	for _, role := range allowed {
		if actor.Role == role {
			return true
		}
	}
	return false
}
