package identity // package identity issues and verifies the service's own identity tokens

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA‑256 hashing for refresh tokens
    "encoding/hex"  // hex encoding of random bytes and digests
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"       // unique token ids (jti)
)

// AccessToken is a signed JWT access token along with its expiry.  Access
// tokens are short‑lived and sent in the Authorization header.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// RefreshToken is a long‑lived opaque token used to obtain new access
// tokens.  Only the SHA‑256 hash of Raw is persisted.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The token
// carries sub, role, jti, iat, iat_ms and exp.  iat_ms is the issue
// instant in Unix milliseconds; it is compared against the subject's
// revocation timestamp on every privileged call.
func NewAccessToken(secret string, userID, role string, ttlMin int, now time.Time) (AccessToken, error) {
    now = now.UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":    userID,
        "role":   role,
        "jti":    uuid.NewString(),
        "iat":    now.Unix(),
        "iat_ms": now.UnixMilli(),
        "exp":    exp.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken returns a random 96 character token valid for ttlDays.
func NewRefreshToken(ttlDays int, now time.Time) (RefreshToken, error) {
    raw, err := randomHex(48)
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: now.UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// HashRefreshRaw returns the hex SHA‑256 digest stored for a refresh token.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
