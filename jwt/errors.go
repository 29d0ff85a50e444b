package jwt

import "errors"

// Decode failure kinds. A *DecodeError matches exactly one of them via errors.Is.
var (
	ErrMalformed      = errors.New("malformed token")
	ErrBadSignature   = errors.New("token signature invalid")
	ErrExpired        = errors.New("token expired")
	ErrWrongAlgorithm = errors.New("token signed with unexpected algorithm")
)

// DecodeError reports why Verify rejected a token.
type DecodeError struct {
	Kind error
	Err  error
}

func newDecodeError(kind, cause error) *DecodeError {
	return &DecodeError{Kind: kind, Err: cause}
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
