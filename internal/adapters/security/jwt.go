package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
)

// JWTVerifier validates HS256 bearer tokens issued by the identity service.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}, nil
}

type exchangeClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(raw string) (ports.AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &exchangeClaims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ports.AuthClaims{}, fmt.Errorf("%w: session expired", domain.ErrUnauthorized)
		}
		return ports.AuthClaims{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	claims, ok := parsed.Claims.(*exchangeClaims)
	if !ok || !parsed.Valid {
		return ports.AuthClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("%w: invalid user_id claim", domain.ErrUnauthorized)
	}
	return ports.AuthClaims{
		UserID: userID,
		Email:  claims.Email,
		Role:   domain.NormalizeRole(claims.Role),
	}, nil
}

// Sign issues a token with the verifier's secret. Used by local tooling and tests.
func (v *JWTVerifier) Sign(claims ports.AuthClaims, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, exchangeClaims{
		UserID: claims.UserID.String(),
		Email:  claims.Email,
		Role:   claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}
