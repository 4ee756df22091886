// Package cryptoutils implements the key and certificate codec used by the
// trust manager.
//
// It generates RSA-2048 keypairs (exponent 65537) from an injected random
// source, renders them as PEM, builds PKCS#10 certificate signing requests in
// the shape expected by a CFSSL signing endpoint, and verifies issued
// certificates against a CA with an early-refresh threshold.
//
// # Random source
//
// A Codec never reads a package-level RNG. NewDefaultCodec wires a DRBG that
// extracts seed material from crypto/rand with HKDF-SHA256 under a
// personalization string and expands it as a ChaCha20 keystream, reseeding
// after a fixed output budget. Tests may inject any io.Reader.
//
// # Typed PEM artifacts
//
//   - TLSCSR: PEM certificate request
//   - TLSCert: PEM leaf certificate
//   - CACert: PEM CA certificate, able to verify leaves
//   - PublicKeyPEM / PrivateKeyPEM: PEM RSA keys
//
// All PEM rendering uses growable buffers; there is no size cap on artifacts.
//
// # Usage Example
//
//	codec, err := cryptoutils.NewDefaultCodec("inaetics-trust-manager")
//	key, err := codec.GenerateKeypair()
//	csr, err := codec.BuildCSR(key, cryptoutils.SubjectCommonName())
//	body, err := cryptoutils.CSRRequestJSON(csr)
package cryptoutils
