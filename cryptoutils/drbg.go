package cryptoutils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const (
	drbgSeedSize = 48

	// DefaultReseedInterval is the number of output bytes after which the DRBG
	// pulls fresh entropy.
	DefaultReseedInterval = 1 << 20
)

// DRBG is a deterministic random bit generator reseeded from an entropy source.
// Seed material is extracted with HKDF-SHA256 under a personalization string and
// expanded as a ChaCha20 keystream. It is safe for concurrent use.
type DRBG struct {
	mu              sync.Mutex
	entropy         io.Reader
	personalization []byte
	reseedInterval  uint64

	stream   *chacha20.Cipher
	produced uint64
}

// NewDRBG seeds a generator from entropy. The personalization string separates
// the output of generators sharing one entropy source.
func NewDRBG(entropy io.Reader, personalization string) (*DRBG, error) {
	d := &DRBG{
		entropy:         entropy,
		personalization: []byte(personalization),
		reseedInterval:  DefaultReseedInterval,
	}
	if err := d.reseed(); err != nil {
		return nil, err
	}
	return d, nil
}

// Read fills p with keystream output, reseeding when the output budget is spent.
func (d *DRBG) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.produced+uint64(len(p)) > d.reseedInterval {
		if err := d.reseed(); err != nil {
			return 0, err
		}
	}

	clear(p)
	d.stream.XORKeyStream(p, p)
	d.produced += uint64(len(p))
	return len(p), nil
}

func (d *DRBG) reseed() error {
	seed := make([]byte, drbgSeedSize)
	if _, err := io.ReadFull(d.entropy, seed); err != nil {
		return fmt.Errorf("%w: read entropy: %w", ErrKeygen, err)
	}

	kdf := hkdf.New(sha256.New, seed, nil, d.personalization)
	material := make([]byte, chacha20.KeySize+chacha20.NonceSize)
	if _, err := io.ReadFull(kdf, material); err != nil {
		return fmt.Errorf("%w: derive seed: %w", ErrKeygen, err)
	}

	stream, err := chacha20.NewUnauthenticatedCipher(material[:chacha20.KeySize], material[chacha20.KeySize:])
	if err != nil {
		return fmt.Errorf("%w: init keystream: %w", ErrKeygen, err)
	}

	d.stream = stream
	d.produced = 0
	return nil
}
