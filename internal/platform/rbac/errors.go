package rbac

import (
	"errors"
	"fmt"
)

// Reason classifies a definitive authorization or invitation outcome.
type Reason string

const (
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonNotAMember       Reason = "not_a_member"
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonResourceNotFound Reason = "resource_not_found"
	ReasonTokenInvalid     Reason = "token_invalid"
	ReasonTokenExpired     Reason = "token_expired"
	ReasonEmailMismatch    Reason = "email_mismatch"
)

// ErrStoreUnavailable marks transient persistence failures (timeouts, cancellations, connection loss).
// It is the only retryable outcome; the cause stays reachable through errors.Is/As.
var ErrStoreUnavailable = errors.New("store unavailable")

// DeniedError is a definitive deny. Retrying the same request yields the same outcome.
type DeniedError struct {
	Reason Reason
	Detail string
}

func (e *DeniedError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Detail
}

// Is matches another *DeniedError with the same Reason, so errors.Is(err, Deny(ReasonNotAMember, "")) works.
func (e *DeniedError) Is(target error) bool {
	t, ok := target.(*DeniedError)
	return ok && t.Reason == e.Reason
}

// Deny builds a DeniedError.
func Deny(reason Reason, detail string) *DeniedError {
	return &DeniedError{Reason: reason, Detail: detail}
}

// ReasonOf extracts the Reason from err, or "" when err is not a deny.
func ReasonOf(err error) Reason {
	var d *DeniedError
	if errors.As(err, &d) {
		return d.Reason
	}
	return ""
}

// StoreUnavailable wraps cause as ErrStoreUnavailable.
func StoreUnavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, cause)
}

// IsRetryable reports whether the caller may retry the request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Classify prepares an error from a store call for the caller. Denies, store failures and the passthrough
// errors (domain sentinels such as ErrSlugTaken) are returned unchanged; anything else becomes
// ErrStoreUnavailable. A nil err stays nil.
func Classify(op string, err error, passthrough ...error) error {
	if err == nil {
		return nil
	}
	var d *DeniedError
	if errors.As(err, &d) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	for _, p := range passthrough {
		if errors.Is(err, p) {
			return err
		}
	}
	return StoreUnavailable(op, err)
}
