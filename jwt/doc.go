// Package jwt issues and verifies HMAC-signed access tokens.
//
// Exactly one algorithm is accepted per Manager. Verify rejects a token whose
// header names any other algorithm (including "none") before touching the
// signature, and never decodes claims from a token whose signature does not
// match. Failures are reported as *DecodeError values whose Kind is one of
// ErrMalformed, ErrBadSignature, ErrExpired or ErrWrongAlgorithm.
package jwt
