// Package interfaces defines the core types and contracts of the node wiring
// trust and discovery system.
//
// It separates contracts from implementations so that the trust worker, the
// discovery watcher and the HTTP surface can be wired together by constructor
// injection and tested against mocks.
//
// # Wiring model
//
//   - NodeDescription: a node in a zone together with its wiring endpoints
//   - WiringEndpointDescription: a property bag identified by its wire id
//   - WiringEndpointListener: receives endpoint added/removed notifications
//
// # Trust contracts
//
//   - CAClient: signing round trip against a CFSSL-compatible CA
//   - CertificateStore: generation-indexed file storage of key material
//   - CertificateProvider: path and content accessors for current material
//   - CertificateAuthority: a CA able to sign CSRs, served over the CFSSL API
//
// # Error Types
//
// Sentinel errors live in errors.go and are always wrapped with %w, so callers
// test them with errors.Is:
//
//   - ErrNotFound: no matching artifact, node or key; expected on first run
//   - ErrStorageUnavailable: key storage directory missing or not creatable
//   - ErrCAUnreachable / ErrStoreUnreachable: transport failures
//   - ErrCAResponseInvalid / ErrMalformedKey: parse failures
//   - ErrVerificationFailed: certificate invalid or close to expiry
//
// # Usage Patterns
//
// Components depend on these interfaces rather than concrete implementations:
//
//	func NewWorker(
//	    store interfaces.CertificateStore,
//	    ca interfaces.CAClient,
//	    codec *cryptoutils.Codec,
//	    log *slog.Logger,
//	) *Worker
package interfaces
