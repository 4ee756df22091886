// Package kms provides a local certificate authority.
//
// LocalCA signs certificate signing requests with an ECDSA P-256 CA key held
// in memory. The key is either random or derived deterministically from a seed,
// so a development CA keeps its identity across restarts. It backs the
// CFSSL-compatible signing API served by cmd/devca and is used by tests as a
// stand-in for a real CFSSL deployment.
//
// It is not meant for production PKI: there is a single root, no revocation and
// no persistence of issued certificates.
package kms
