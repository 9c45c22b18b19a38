// Package verify implements the identity verification gateway that guards
// every privileged operation.  A token is first checked for structure,
// signature and expiry, then checked again against the identity provider
// with revocation enabled.  The second step runs on every call.
package verify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Sentinel errors an IdentityProvider uses to classify a rejected token.
var (
	// ErrMalformedToken is returned for an empty or structurally invalid token.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidToken is returned for a bad signature or an expired token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRevoked is returned when a token was revoked after issuance.
	ErrRevoked = errors.New("token revoked")
)

// IdentityProvider is the external identity-token capability.
type IdentityProvider interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
	VerifyTokenCheckRevoked(ctx context.Context, token string) (Identity, error)
	DeleteAccount(ctx context.Context, subject string) error
}

// Recorder receives one observation per verification outcome.
type Recorder interface {
	ObserveVerification(o Outcome)
}

// Verifier implements Verify and DeleteAccount on top of an IdentityProvider.
// It never retries; retry policy belongs to the caller.
type Verifier struct {
	provider IdentityProvider
	recorder Recorder
	log      zerolog.Logger
}

// New returns a Verifier.  rec may be nil.
func New(p IdentityProvider, rec Recorder, log zerolog.Logger) *Verifier {
	return &Verifier{provider: p, recorder: rec, log: log}
}

// Verify decides whether token grants access.  When wantIdentity is true a
// Success carries the identity decoded by the revocation-checked call.
func (v *Verifier) Verify(ctx context.Context, token string, wantIdentity bool) Outcome {
	o := v.verify(ctx, token, wantIdentity)
	v.observe(o)
	return o
}

func (v *Verifier) verify(ctx context.Context, token string, wantIdentity bool) Outcome {
	if token == "" {
		return Failure(MissingToken)
	}
	if _, err := v.provider.VerifyToken(ctx, token); err != nil {
		if errors.Is(err, ErrMalformedToken) {
			return Failure(MissingToken)
		}
		v.log.Debug().Err(err).Msg("token verification failed")
		return Failure(FailedToParseToken)
	}
	// A token that passed the first step can still have been revoked since
	// issuance; the provider only asserts freshness on this call.
	id, err := v.provider.VerifyTokenCheckRevoked(ctx, token)
	if err != nil {
		v.log.Debug().Err(err).Msg("revocation check failed")
		return Failure(TokenRevoked)
	}
	if !wantIdentity {
		return Success(nil)
	}
	return Success(&id)
}

// DeleteAccount verifies token and deletes the subject's account.  A
// verification failure is returned unchanged; a failed delete yields
// Failure(AccountDeletionError).
func (v *Verifier) DeleteAccount(ctx context.Context, token string) Outcome {
	o := v.verify(ctx, token, true)
	if !o.IsSuccess() {
		v.observe(o)
		return o
	}
	subject := o.Identity().Subject
	if err := v.provider.DeleteAccount(ctx, subject); err != nil {
		v.log.Error().Err(err).Str("subject", subject).Msg("account deletion failed")
		o = Failure(AccountDeletionError)
	} else {
		v.log.Info().Str("subject", subject).Msg("account deleted")
		o = AccountDeleted(subject)
	}
	v.observe(o)
	return o
}

func (v *Verifier) observe(o Outcome) {
	if v.recorder != nil {
		v.recorder.ObserveVerification(o)
	}
}
