package cryptoutils

import "errors"

var (
	// ErrKeygen is returned when seeding or prime generation fails.
	ErrKeygen = errors.New("key generation failed")

	// ErrEncoding is returned when key material cannot be serialized.
	ErrEncoding = errors.New("encoding failed")

	// ErrVerificationFailed is returned when a certificate does not chain to the CA,
	// is malformed, or expires within the refresh threshold.
	ErrVerificationFailed = errors.New("certificate verification failed")
)
