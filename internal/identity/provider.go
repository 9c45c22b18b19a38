package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
	"github.com/autoseers/carseer/internal/verify"
)

// AccountStore is the slice of user persistence the provider needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	RevokeSessions(ctx context.Context, id string, at time.Time) error
	DeleteAccount(ctx context.Context, id string) error
}

// Provider verifies the HS256 access tokens issued by this service and
// answers revocation queries from the users table.  It implements
// verify.IdentityProvider.
type Provider struct {
	secret   []byte
	accounts AccountStore
	now      func() time.Time
}

// NewProvider returns a Provider using secret to validate signatures.
func NewProvider(secret string, accounts AccountStore) *Provider {
	return &Provider{secret: []byte(secret), accounts: accounts, now: time.Now}
}

// VerifyToken checks structure, signature and expiry.  It does not consult
// storage.
func (p *Provider) VerifyToken(_ context.Context, token string) (verify.Identity, error) {
	claims, err := p.parse(token)
	if err != nil {
		return verify.Identity{}, err
	}
	return identityFrom(claims)
}

// VerifyTokenCheckRevoked is VerifyToken plus a revocation check: the
// account must still exist, be active, and the token must have been issued
// at or after the account's TokensValidAfter.  Both instants are compared
// in milliseconds.
func (p *Provider) VerifyTokenCheckRevoked(ctx context.Context, token string) (verify.Identity, error) {
	claims, err := p.parse(token)
	if err != nil {
		return verify.Identity{}, err
	}
	id, err := identityFrom(claims)
	if err != nil {
		return verify.Identity{}, err
	}
	u, err := p.accounts.GetByID(ctx, id.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return verify.Identity{}, fmt.Errorf("%w: account %s no longer exists", verify.ErrRevoked, id.Subject)
		}
		return verify.Identity{}, apperr.Unavailable("identity store", err)
	}
	if !u.IsActive {
		return verify.Identity{}, fmt.Errorf("%w: account disabled", verify.ErrRevoked)
	}
	issued, err := issuedAtMillis(claims)
	if err != nil {
		return verify.Identity{}, err
	}
	if issued < u.TokensValidAfter.UnixMilli() {
		return verify.Identity{}, fmt.Errorf("%w: issued before %s", verify.ErrRevoked, u.TokensValidAfter.UTC().Format(time.RFC3339))
	}
	return id, nil
}

// DeleteAccount revokes every session of subject and removes the account.
func (p *Provider) DeleteAccount(ctx context.Context, subject string) error {
	if err := p.accounts.RevokeSessions(ctx, subject, p.revocationInstant()); err != nil {
		return apperr.Unavailable("identity store", err)
	}
	if err := p.accounts.DeleteAccount(ctx, subject); err != nil {
		return apperr.Unavailable("identity store", err)
	}
	return nil
}

// RevokeSessions invalidates every access token issued to subject up to now
// together with all refresh tokens.
func (p *Provider) RevokeSessions(ctx context.Context, subject string) error {
	return p.accounts.RevokeSessions(ctx, subject, p.revocationInstant())
}

// revocationInstant is now truncated to the millisecond so the stored
// DATETIME(3) value equals what the comparison sees.
func (p *Provider) revocationInstant() time.Time {
	return p.now().UTC().Truncate(time.Millisecond)
}

// issuedAtMillis reads iat_ms, falling back to iat in whole seconds for
// tokens minted without it.
func issuedAtMillis(claims jwt.MapClaims) (int64, error) {
	switch v := claims["iat_ms"].(type) {
	case float64:
		if v > 0 && v < math.MaxInt64 {
			return int64(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return n, nil
		}
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return 0, fmt.Errorf("%w: missing iat", verify.ErrInvalidToken)
	}
	return iat.Unix() * 1000, nil
}

func (p *Provider) parse(token string) (jwt.MapClaims, error) {
	if token == "" {
		return nil, verify.ErrMalformedToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %v", verify.ErrMalformedToken, err)
	default:
		return nil, fmt.Errorf("%w: %v", verify.ErrInvalidToken, err)
	}
}

func identityFrom(claims jwt.MapClaims) (verify.Identity, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return verify.Identity{}, fmt.Errorf("%w: missing sub", verify.ErrInvalidToken)
	}
	return verify.Identity{Subject: sub, Claims: map[string]any(claims)}, nil
}
