package verify

// Tag discriminates the variants of Outcome.
type Tag int

const (
	TagSuccess Tag = iota
	TagFailure
	TagAccountDeleted
)

func (t Tag) String() string {
	switch t {
	case TagSuccess:
		return "success"
	case TagFailure:
		return "failure"
	case TagAccountDeleted:
		return "account_deleted"
	}
	return "unknown"
}

// FailureKind classifies a failed verification.
type FailureKind int

const (
	MissingToken FailureKind = iota + 1
	FailedToParseToken
	TokenRevoked
	AccountDeletionError
)

func (k FailureKind) String() string {
	switch k {
	case MissingToken:
		return "missing_token"
	case FailedToParseToken:
		return "failed_to_parse_token"
	case TokenRevoked:
		return "token_revoked"
	case AccountDeletionError:
		return "account_deletion_error"
	}
	return "unknown"
}

// Identity is the decoded subject of a verified token.
type Identity struct {
	Subject string
	Claims  map[string]any
}

// Role returns the "role" claim, or "" when absent.
func (i Identity) Role() string {
	if s, ok := i.Claims["role"].(string); ok {
		return s
	}
	return ""
}

// Outcome is the result of a verification call.  Exactly one variant is
// active; use the constructors to build one.
type Outcome struct {
	tag      Tag
	identity *Identity
	kind     FailureKind
	subject  string
}

// Success builds a successful outcome.  id is nil when the caller did not
// ask for the decoded identity.
func Success(id *Identity) Outcome { return Outcome{tag: TagSuccess, identity: id} }

// Failure builds a failed outcome of the given kind.
func Failure(kind FailureKind) Outcome { return Outcome{tag: TagFailure, kind: kind} }

// AccountDeleted builds the outcome of a completed account deletion.
func AccountDeleted(subject string) Outcome {
	return Outcome{tag: TagAccountDeleted, subject: subject}
}

func (o Outcome) Tag() Tag { return o.tag }

func (o Outcome) IsSuccess() bool { return o.tag == TagSuccess }

// Identity returns the decoded identity of a Success, or nil.
func (o Outcome) Identity() *Identity { return o.identity }

// Kind returns the failure kind of a Failure, or 0.
func (o Outcome) Kind() FailureKind { return o.kind }

// Subject returns the deleted account's subject of an AccountDeleted.
func (o Outcome) Subject() string { return o.subject }

// Message is a human readable description suitable for a response body.
func (o Outcome) Message() string {
	switch o.tag {
	case TagSuccess:
		return ""
	case TagAccountDeleted:
		return "account deleted"
	}
	switch o.kind {
	case MissingToken:
		return "Missing authorization token"
	case FailedToParseToken:
		return "Authorization token is invalid"
	case TokenRevoked:
		return "Authorization token has been revoked"
	case AccountDeletionError:
		return "Failed to delete account"
	}
	return "verification failed"
}
