// Package main (cmd/devca) serves a development certificate authority.
//
// It answers the CFSSL info and sign calls the trust worker makes, signing
// with an in-memory ECDSA key. A fixed --seed yields the same CA certificate
// across restarts, which keeps previously issued node certificates valid.
// Do not use it in production.
package main
