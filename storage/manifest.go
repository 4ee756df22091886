package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
)

const manifestFile = "manifest.json"

// Generation is one committed set of client key material.
type Generation struct {
	Seq     uint64    `json:"seq"`
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
}

// Manifest is the generation index of a store. Generations are ordered oldest first.
type Manifest struct {
	Current     uint64       `json:"current"`
	NextSeq     uint64       `json:"nextSeq"`
	Generations []Generation `json:"generations"`
}

func newGeneration(seq uint64, now time.Time) Generation {
	return Generation{
		Seq:     seq,
		ID:      ulid.Make().String(),
		Created: now.UTC(),
	}
}

func generationDir(seq uint64) string {
	return fmt.Sprintf("gen-%06d", seq)
}

// loadManifest reads the manifest of baseDir. A missing manifest yields an empty one.
func loadManifest(baseDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return &Manifest{NextSeq: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.NextSeq == 0 {
		m.NextSeq = 1
	}
	return &m, nil
}

// saveManifest writes the manifest through a temporary file and a rename so
// readers never observe a partial index.
func saveManifest(baseDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(baseDir, manifestFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(baseDir, manifestFile)); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// currentGeneration returns the committed current generation, if any.
func (m *Manifest) currentGeneration() (Generation, bool) {
	for _, g := range m.Generations {
		if g.Seq == m.Current {
			return g, true
		}
	}
	return Generation{}, false
}
