package password

import (
	"context"
	"errors"
)

var (
	ErrEmptyPassword   = errors.New("password is empty")
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnknownDigest is returned for digests no registered scheme produced.
	ErrUnknownDigest = errors.New("unrecognized password digest")
)

// Scheme is one password hashing algorithm.
type Scheme interface {
	Name() string
	Identifies(digest string) bool
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
	NeedsUpgrade(digest string) (bool, error)
}

// Hasher hashes with a primary scheme and verifies digests of any registered
// scheme. All work runs on the optional Pool.
type Hasher struct {
	primary Scheme
	schemes []Scheme
	pool    *Pool
}

// NewHasher builds a Hasher. legacy schemes are only used for verification.
func NewHasher(pool *Pool, primary Scheme, legacy ...Scheme) *Hasher {
	schemes := make([]Scheme, 0, 1+len(legacy))
	schemes = append(schemes, primary)
	for _, s := range legacy {
		if s != nil && s.Name() != primary.Name() {
			schemes = append(schemes, s)
		}
	}
	return &Hasher{primary: primary, schemes: schemes, pool: pool}
}

// Primary returns the name of the scheme used for new digests.
func (h *Hasher) Primary() string {
	return h.primary.Name()
}

// Hash produces a digest with the primary scheme.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	var (
		digest string
		err    error
	)
	if poolErr := h.pool.Do(ctx, func() {
		digest, err = h.primary.Hash(password)
	}); poolErr != nil {
		return "", poolErr
	}
	return digest, err
}

// Verify checks password against digest using whichever scheme produced it.
func (h *Hasher) Verify(ctx context.Context, password, digest string) (bool, error) {
	scheme := h.schemeFor(digest)
	if scheme == nil {
		return false, ErrUnknownDigest
	}

	var (
		ok  bool
		err error
	)
	if poolErr := h.pool.Do(ctx, func() {
		ok, err = scheme.Verify(password, digest)
	}); poolErr != nil {
		return false, poolErr
	}
	return ok, err
}

// NeedsUpgrade reports whether digest should be replaced by a primary-scheme
// digest on the next successful login.
func (h *Hasher) NeedsUpgrade(digest string) bool {
	scheme := h.schemeFor(digest)
	if scheme == nil {
		return false
	}
	if scheme.Name() != h.primary.Name() {
		return true
	}
	upgrade, err := scheme.NeedsUpgrade(digest)
	return err == nil && upgrade
}

func (h *Hasher) schemeFor(digest string) Scheme {
	for _, s := range h.schemes {
		if s.Identifies(digest) {
			return s
		}
	}
	return nil
}
