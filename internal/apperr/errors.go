// Package apperr holds the error taxonomy of the play engine.
//
// Expected business outcomes are returned as *Error with a Kind and a
// message that is safe to show to players or staff. Anything else is an
// internal fault and is surfaced with a generic message only.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a failure mode
type Kind string

const (
	FraudLimit         Kind = "FRAUD_LIMIT"
	CampaignInactive   Kind = "CAMPAIGN_INACTIVE"
	NoActiveCampaign   Kind = "NO_ACTIVE_CAMPAIGN"
	AlreadyPlayed      Kind = "ALREADY_PLAYED"
	AlreadyRated       Kind = "ALREADY_RATED"
	AlreadyUsed        Kind = "ALREADY_USED"
	Expired            Kind = "EXPIRED"
	Forbidden          Kind = "FORBIDDEN"
	NotFound           Kind = "NOT_FOUND"
	InvalidSession     Kind = "INVALID_SESSION"
	InvalidCode        Kind = "INVALID_CODE"
	NoRewardsAvailable Kind = "NO_REWARDS_AVAILABLE"
	InvalidInput       Kind = "INVALID_INPUT"
	Unauthenticated    Kind = "UNAUTHENTICATED"
	Internal           Kind = "INTERNAL"
)

// Category groups kinds by cause
type Category string

const (
	CategoryPolicy    Category = "policy"
	CategoryIntegrity Category = "integrity"
	CategoryInput     Category = "input"
	CategoryInternal  Category = "internal"
)

// Category returns the group a kind belongs to
func (k Kind) Category() Category {
	switch k {
	case FraudLimit, CampaignInactive, AlreadyPlayed, AlreadyRated, AlreadyUsed, Expired, Forbidden, Unauthenticated:
		return CategoryPolicy
	case NotFound, NoActiveCampaign, InvalidSession, InvalidCode, NoRewardsAvailable:
		return CategoryIntegrity
	case InvalidInput:
		return CategoryInput
	default:
		return CategoryInternal
	}
}

// Default user-facing messages
var messages = map[Kind]string{
	FraudLimit:         "You have already played today from this device. Come back tomorrow!",
	CampaignInactive:   "This campaign has ended",
	NoActiveCampaign:   "No game is running right now. Come back soon!",
	AlreadyPlayed:      "You have already played",
	AlreadyRated:       "You have already left a rating",
	AlreadyUsed:        "This coupon has already been used",
	Expired:            "This coupon has expired",
	Forbidden:          "This coupon does not belong to your restaurant",
	NotFound:           "Not found",
	InvalidSession:     "Invalid session",
	InvalidCode:        "Invalid or unknown code",
	NoRewardsAvailable: "No rewards available",
	InvalidInput:       "Invalid input",
	Unauthenticated:    "Authentication required",
	Internal:           "Internal server error",
}

// Message returns the default user-facing message for a kind
func (k Kind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return messages[Internal]
}

// Error is an engine failure with a kind and a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Meta carries public key/value hints for the client, such as a link
	Meta map[string]string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithMeta attaches a public hint and returns e
func (e *Error) WithMeta(key, value string) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]string)
	}
	e.Meta[key] = value
	return e
}

// New creates an Error with the default message of its kind
func New(kind Kind) *Error {
	return &Error{Kind: kind, Message: kind.Message()}
}

// Newf creates an Error with a custom message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error into an Error of the given kind
func Wrap(err error, kind Kind) *Error {
	return &Error{Kind: kind, Message: kind.Message(), Err: err}
}

// Internalf wraps an unexpected failure. The cause stays out of the message.
func Internalf(err error, format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: Internal.Message(), Err: fmt.Errorf(format+": %w", append(args, err)...)}
}

// KindOf extracts the kind of err, or Internal when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// PublicMessage returns the message safe to show to the caller
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return Internal.Message()
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
