// Package trustmanager keeps the node's client certificate valid.
//
// A Worker runs one cycle per refresh interval:
//
//	Idle -> LoadCACert -> LoadClientCert -> Verify -> Rekey | Sleep -> Idle
//
// The CA certificate is read from the store and fetched from the CA when
// missing or unreadable. A client certificate that is missing, signed by
// another CA, malformed or within the refresh threshold of its expiry is
// replaced by a fresh keypair and certificate in a new store generation.
// Rekey failures are logged and retried on the next cycle. Only an unusable
// storage directory stops the worker, in the Failed state.
//
// The Worker also implements interfaces.CertificateProvider so transport
// components can read the current material, and TLSReloader keeps an
// in-memory tls.Certificate in sync with the store for HTTPS clients and servers.
package trustmanager
