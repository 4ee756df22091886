package interfaces

import (
	"errors"

	"github.com/inaetics/node-wiring-go/cryptoutils"
)

var (
	// ErrNotFound is returned when a requested artifact, node or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable is returned when the key storage directory is missing
	// or cannot be created.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrIO is returned when an artifact cannot be opened, locked or written.
	ErrIO = errors.New("artifact io error")

	// ErrCAUnreachable is returned on transport failures towards the CA.
	ErrCAUnreachable = errors.New("certificate authority unreachable")

	// ErrCAResponseInvalid is returned when the CA answers with an unusable envelope.
	ErrCAResponseInvalid = errors.New("certificate authority response invalid")

	// ErrStoreUnreachable is returned on transport failures towards the discovery store.
	ErrStoreUnreachable = errors.New("discovery store unreachable")

	// ErrStoreResponseInvalid is returned when the discovery store answer cannot be decoded
	// or does not acknowledge the requested mutation.
	ErrStoreResponseInvalid = errors.New("discovery store response invalid")

	// ErrMalformedKey is returned when a discovery key does not follow
	// <root>/<zone>/<node>/<wire>.
	ErrMalformedKey = errors.New("malformed discovery key")

	// ErrDuplicateWireID is returned when an own endpoint with an already known wire id is added.
	ErrDuplicateWireID = errors.New("duplicate wire id")

	// ErrMissingWireID is returned when an endpoint carries no wire id.
	ErrMissingWireID = errors.New("missing wire id")

	// ErrReentrantListenerCall is returned when a listener callback tries to
	// register or unregister listeners while being notified.
	ErrReentrantListenerCall = errors.New("listener registration from within a listener callback")

	// ErrInvalidFilter is returned when a listener filter expression cannot be parsed.
	ErrInvalidFilter = errors.New("invalid filter expression")

	// ErrListenerNotFound is returned when unregistering an unknown listener.
	ErrListenerNotFound = errors.New("listener not registered")

	// ErrRegistryClosed is returned by registry operations after Close.
	ErrRegistryClosed = errors.New("registry closed")
)

var (
	ErrKeygen             = cryptoutils.ErrKeygen
	ErrEncoding           = cryptoutils.ErrEncoding
	ErrVerificationFailed = cryptoutils.ErrVerificationFailed
)
