package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/inaetics/node-wiring-go/interfaces"
)

// DefaultRetention is the number of client generations kept on disk,
// the current one included.
const DefaultRetention = 2

// artifactFiles maps each artifact kind to its fixed filename.
var artifactFiles = map[interfaces.ArtifactKind]string{
	interfaces.ArtifactCACertificate: "ca.pem",
	interfaces.ArtifactPrivateKey:    "client_priv.key",
	interfaces.ArtifactPublicKey:     "client_pub.key",
	interfaces.ArtifactCertificate:   "client.pem",
	interfaces.ArtifactFullBundle:    "client_full.pem",
}

// FileStore keeps trust material in a local directory.
//
// Layout:
//
//	<baseDir>/ca.pem
//	<baseDir>/manifest.json
//	<baseDir>/gen-000042/{client_priv.key,client_pub.key,client.pem,client_full.pem}
//
// The manifest is the generation index: "most recent" is whatever it names as
// current, and only Prune deletes old generations.
type FileStore struct {
	baseDir   string
	retention int
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	manifest *Manifest
	pending  *Generation
}

// NewFileStore creates a store rooted at baseDir. The directory is created by EnsureStorageDir.
func NewFileStore(baseDir string, log *slog.Logger) *FileStore {
	return &FileStore{
		baseDir:   baseDir,
		retention: DefaultRetention,
		log:       log,
		now:       time.Now,
	}
}

// WithRetention overrides the number of generations kept by Prune.
func (s *FileStore) WithRetention(n int) *FileStore {
	if n < 1 {
		n = 1
	}
	s.retention = n
	return s
}

// BaseDir returns the storage directory.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// EnsureStorageDir creates the storage directory with mode 0700 if absent.
func (s *FileStore) EnsureStorageDir() error {
	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return fmt.Errorf("%w: create %s: %w", interfaces.ErrStorageUnavailable, s.baseDir, err)
	}

	info, err := os.Stat(s.baseDir)
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", interfaces.ErrStorageUnavailable, s.baseDir)
	}
	return nil
}

// NextPath returns the path the next artifact of kind is written to. Client
// artifacts go to the pending generation, which is allocated on first use.
func (s *FileStore) NextPath(kind interfaces.ArtifactKind) (string, error) {
	name, ok := artifactFiles[kind]
	if !ok {
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}

	if kind == interfaces.ArtifactCACertificate {
		return filepath.Join(s.baseDir, name), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifestLocked()
	if err != nil {
		return "", err
	}

	if s.pending == nil {
		g := newGeneration(m.NextSeq, s.now())
		dir := filepath.Join(s.baseDir, generationDir(g.Seq))

		// A directory with this sequence can only be left over from an
		// attempt that never committed.
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("%w: clear %s: %w", interfaces.ErrIO, dir, err)
		}
		if err := os.Mkdir(dir, 0700); err != nil {
			return "", fmt.Errorf("%w: create %s: %w", interfaces.ErrIO, dir, err)
		}

		m.NextSeq++
		s.pending = &g
		s.log.Debug("Allocated pending generation", "seq", g.Seq, "id", g.ID)
	}

	return filepath.Join(s.baseDir, generationDir(s.pending.Seq), name), nil
}

// WriteArtifact writes pem to path while holding an exclusive lock on the file.
// With appendMode the content is appended, otherwise the file is replaced.
func (s *FileStore) WriteArtifact(pem []byte, path string, appendMode bool) error {
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: lock %s: %w", interfaces.ErrIO, path, err)
	}
	defer lock.Unlock()

	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", interfaces.ErrIO, path, err)
	}

	if _, err := f.Write(pem); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", interfaces.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", interfaces.ErrIO, path, err)
	}

	s.log.Debug("Wrote artifact", slog.String("path", path), slog.Int("size", len(pem)), slog.Bool("append", appendMode))
	return nil
}

// Commit makes the pending generation current.
func (s *FileStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return errors.New("no pending generation")
	}

	m, err := s.loadManifestLocked()
	if err != nil {
		return err
	}

	updated := *m
	updated.Generations = append(append([]Generation(nil), m.Generations...), *s.pending)
	updated.Current = s.pending.Seq
	if updated.NextSeq <= s.pending.Seq {
		updated.NextSeq = s.pending.Seq + 1
	}

	if err := saveManifest(s.baseDir, &updated); err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrIO, err)
	}

	s.log.Info("Committed generation", "seq", s.pending.Seq, "id", s.pending.ID)
	s.manifest = &updated
	s.pending = nil
	return nil
}

// Abort removes the pending generation.
func (s *FileStore) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil
	}

	dir := filepath.Join(s.baseDir, generationDir(s.pending.Seq))
	s.pending = nil
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove %s: %w", interfaces.ErrIO, dir, err)
	}
	return nil
}

// Prune deletes committed generations beyond the retention count and any
// generation directory the manifest does not know about.
func (s *FileStore) Prune() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifestLocked()
	if err != nil {
		return err
	}

	gens := append([]Generation(nil), m.Generations...)
	sort.Slice(gens, func(i, j int) bool { return gens[i].Seq < gens[j].Seq })

	keep := map[string]bool{}
	var kept []Generation
	if len(gens) > s.retention {
		kept = gens[len(gens)-s.retention:]
	} else {
		kept = gens
	}
	for _, g := range kept {
		keep[generationDir(g.Seq)] = true
	}
	if s.pending != nil {
		keep[generationDir(s.pending.Seq)] = true
	}

	if len(kept) != len(m.Generations) {
		updated := *m
		updated.Generations = kept
		if err := saveManifest(s.baseDir, &updated); err != nil {
			return fmt.Errorf("%w: %w", interfaces.ErrIO, err)
		}
		s.manifest = &updated
	}

	dirs, err := filepath.Glob(filepath.Join(s.baseDir, "gen-*"))
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrIO, err)
	}

	var errs []error
	for _, dir := range dirs {
		if keep[filepath.Base(dir)] {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		s.log.Debug("Pruned generation", "dir", dir)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", interfaces.ErrIO, errors.Join(errs...))
	}
	return nil
}

// MostRecent returns the current path of kind. It never modifies the store.
func (s *FileStore) MostRecent(kind interfaces.ArtifactKind) (string, error) {
	name, ok := artifactFiles[kind]
	if !ok {
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}

	if _, err := os.Stat(s.baseDir); err != nil {
		return "", fmt.Errorf("%w: %w", interfaces.ErrStorageUnavailable, err)
	}

	var path string
	if kind == interfaces.ArtifactCACertificate {
		path = filepath.Join(s.baseDir, name)
	} else {
		s.mu.Lock()
		m, err := s.loadManifestLocked()
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		g, found := m.currentGeneration()
		s.mu.Unlock()

		if !found {
			return "", fmt.Errorf("%w: no committed %s", interfaces.ErrNotFound, kind)
		}
		path = filepath.Join(s.baseDir, generationDir(g.Seq), name)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", interfaces.ErrNotFound, kind)
		}
		return "", fmt.Errorf("%w: %w", interfaces.ErrIO, err)
	}
	return path, nil
}

// ReadArtifactContent returns the content of the current artifact of kind.
func (s *FileStore) ReadArtifactContent(kind interfaces.ArtifactKind) ([]byte, error) {
	path, err := s.MostRecent(kind)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, kind)
		}
		return nil, fmt.Errorf("%w: read %s: %w", interfaces.ErrIO, path, err)
	}
	return data, nil
}

// Generations returns a copy of the committed generation index.
func (s *FileStore) Generations() ([]Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifestLocked()
	if err != nil {
		return nil, err
	}
	return append([]Generation(nil), m.Generations...), nil
}

func (s *FileStore) loadManifestLocked() (*Manifest, error) {
	if s.manifest != nil {
		return s.manifest, nil
	}

	if _, err := os.Stat(s.baseDir); err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrStorageUnavailable, err)
	}

	m, err := loadManifest(s.baseDir)
	if err != nil {
		s.log.Warn("Discarding unreadable manifest", "dir", s.baseDir, "err", err)
		m = &Manifest{NextSeq: 1}
	}
	s.manifest = m
	return m, nil
}
