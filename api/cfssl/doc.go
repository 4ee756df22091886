// Package cfssl speaks the CFSSL signing API.
//
// Client is the trust manager's CA client: it fetches the CA certificate from
// /api/v1/cfssl/info and exchanges a freshly built CSR for a signed
// certificate at /api/v1/cfssl/sign. Every call is bounded by a timeout and
// fails with interfaces.ErrCAUnreachable on transport problems or
// interfaces.ErrCAResponseInvalid when the envelope is unusable.
//
// Handler serves the same two endpoints from an interfaces.CertificateAuthority,
// which is enough for development deployments and tests that need a CA.
//
// Both sides share the envelope
//
//	{"success": true, "result": {"certificate": "<PEM>"}, "errors": [], "messages": []}
package cfssl
