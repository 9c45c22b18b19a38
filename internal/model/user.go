package model

import "time"

// User represents an account record as stored in the `users` table.
// The vehicle link is exposed as a VehicleRef; the empty-string column
// sentinel never leaves the repository layer.
//
// Fields:
//  ID               – primary key, also the token subject.
//  Email            – unique, lower-cased email address.
//  PasswordHash     – bcrypt hashed password.
//  Name             – display name set by profile creation.
//  Role             – CUSTOMER or ADMIN.
//  Vehicle          – link to the user's vehicle, if any.
//  TokensValidAfter – access tokens issued before this instant are revoked.
//  IsActive         – disabled accounts fail revocation checks.
//  CreatedAt        – timestamp of creation.
//  UpdatedAt        – timestamp of last update.
type User struct {
    ID               string     // users.id
    Email            string     // users.email
    PasswordHash     string     // users.password_hash
    Name             string     // users.name
    Role             string     // users.role
    Vehicle          VehicleRef // users.vehicle_id ('' = unlinked)
    TokensValidAfter time.Time  // users.tokens_valid_after
    IsActive         bool       // users.is_active
    CreatedAt        time.Time  // users.created_at
    UpdatedAt        time.Time  // users.updated_at
}

// Roles accepted in the access token "role" claim.
const (
    RoleCustomer = "CUSTOMER"
    RoleAdmin    = "ADMIN"
)

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA‑256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    string     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
