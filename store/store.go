package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"romrando/checksum"
	"romrando/games"
	"romrando/metrics"
	"romrando/rom"
	"romrando/util"
)

var (
	ErrInvalidName       = errors.New("store: invalid checksum or extension")
	ErrNotFound          = errors.New("store: ROM file not found")
	ErrIntegrityMismatch = errors.New("store: checksum mismatch")
	ErrUnrecognized      = errors.New("store: unrecognized ROM file")
)

// DefaultExtensions are the ROM file extensions accepted for upload.
var DefaultExtensions = []string{"gba", "gbc", "nds"}

// Artifact names a stored ROM image by the fingerprint of its contents and its file extension.
type Artifact struct {
	Fingerprint string
	Ext         string
}

// Name is the artifact's file name within the store, "<fingerprint>.<ext>".
func (a Artifact) Name() string {
	return a.Fingerprint + "." + a.Ext
}

func (a Artifact) String() string { return a.Name() }

type Config struct {
	// Root is the directory holding the artifacts. It is created if missing.
	Root string
	// HashBytes is the fingerprint prefix length; <= 0 selects checksum.DefaultPrefix.
	HashBytes int64
	// Extensions allowed for artifacts; empty selects DefaultExtensions.
	Extensions []string
}

// Store is a flat, content-addressed, write-once directory of uploaded ROM images.
type Store struct {
	fs      afero.Fs
	root    string
	prefix  int64
	exts    map[string]struct{}
	logger  *log.Logger
	metrics metrics.Metrics

	// per-path locks serializing save/verify/delete of one artifact:
	locks sync.Map
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = util.Named(l, "store") }
}

func WithMetrics(m metrics.Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

func New(fs afero.Fs, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("store: root directory not configured")
	}
	if err := fs.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("store: could not create '%s': %w", cfg.Root, err)
	}

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	s := &Store{
		fs:      fs,
		root:    cfg.Root,
		prefix:  cfg.HashBytes,
		exts:    make(map[string]struct{}, len(exts)),
		logger:  util.Named(nil, "store"),
		metrics: metrics.Noop{},
	}
	if s.prefix <= 0 {
		s.prefix = checksum.DefaultPrefix
	}
	for _, ext := range exts {
		s.exts[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) Fs() afero.Fs { return s.fs }

// Ref validates a claimed fingerprint and extension and returns the artifact they name.
func (s *Store) Ref(fingerprint, ext string) (Artifact, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !checksum.Valid(fingerprint) {
		return Artifact{}, fmt.Errorf("%w: checksum '%s'", ErrInvalidName, fingerprint)
	}
	if _, ok := s.exts[ext]; !ok {
		return Artifact{}, fmt.Errorf("%w: extension '%s'", ErrInvalidName, ext)
	}
	return Artifact{Fingerprint: fingerprint, Ext: ext}, nil
}

// Parse validates a stored file name of the form "<fingerprint>.<ext>".
func (s *Store) Parse(name string) (Artifact, error) {
	fingerprint, ext, ok := strings.Cut(name, ".")
	if !ok {
		return Artifact{}, fmt.Errorf("%w: name '%s'", ErrInvalidName, name)
	}
	return s.Ref(fingerprint, ext)
}

// Path is the location of the artifact within the store's filesystem.
func (s *Store) Path(a Artifact) string {
	return filepath.Join(s.root, a.Name())
}

func (s *Store) lock(a Artifact) func() {
	v, _ := s.locks.LoadOrStore(a.Name(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Exists reports whether the artifact is stored. It has no side effects.
func (s *Store) Exists(a Artifact) (bool, error) {
	return afero.Exists(s.fs, s.Path(a))
}

// Save persists r as the artifact unless it is already stored, then verifies
// that the stored file's fingerprint matches the artifact's. A mismatch deletes
// the stored file, whether it was just written or already present.
func (s *Store) Save(a Artifact, r io.Reader) (Artifact, error) {
	defer s.lock(a)()

	path := s.Path(a)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return a, fmt.Errorf("store: stat '%s': %w", path, err)
	}

	if exists {
		s.logger.Debug("file already exists", "name", a.Name())
		s.metrics.IncUploads("duplicate")
	} else {
		var n int64
		n, err = s.write(path, r)
		if err != nil {
			s.metrics.IncUploads("error")
			return a, err
		}
		s.logger.Debug("saved", "name", a.Name(), "size", humanize.IBytes(uint64(n)))
	}

	if err = s.verify(a); err != nil {
		if errors.Is(err, ErrIntegrityMismatch) {
			s.metrics.IncUploads("mismatch")
		}
		return a, err
	}

	if !exists {
		s.metrics.IncUploads("stored")
	}
	return a, nil
}

// write copies r into a temporary file next to path and renames it into place.
func (s *Store) write(path string, r io.Reader) (n int64, err error) {
	tmp, err := afero.TempFile(s.fs, s.root, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmpName)
		}
	}()

	n, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("store: write '%s': %w", path, err)
	}

	if err = s.fs.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("store: rename into '%s': %w", path, err)
	}
	return n, nil
}

// verify recomputes the stored file's fingerprint; on mismatch the file is deleted.
// Callers hold the artifact's lock.
func (s *Store) verify(a Artifact) error {
	path := s.Path(a)
	computed, err := checksum.FingerprintFile(s.fs, path, s.prefix)
	if err != nil {
		return fmt.Errorf("store: verify '%s': %w", a.Name(), err)
	}
	if computed == a.Fingerprint {
		return nil
	}

	s.logger.Error("checksum mismatch", "name", a.Name(), "computed", computed)
	if rerr := s.fs.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return fmt.Errorf("%w: %s (and could not delete it: %v)", ErrIntegrityMismatch, a.Name(), rerr)
	}
	return fmt.Errorf("%w: %s", ErrIntegrityMismatch, a.Name())
}

// Identify verifies the stored artifact and classifies it. An artifact that is
// corrupt or not a recognized game is deleted; there is no use in keeping it.
func (s *Store) Identify(a Artifact) (*games.Game, error) {
	defer s.lock(a)()

	exists, err := s.Exists(a)
	if err != nil {
		return nil, fmt.Errorf("store: stat '%s': %w", a.Name(), err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, a.Name())
	}

	if err = s.verify(a); err != nil {
		return nil, err
	}

	g, format, err := s.classify(a)
	if err != nil {
		return nil, err
	}
	if g == nil {
		s.metrics.IncIdentified("unrecognized")
		s.logger.Warn("unrecognized ROM file; deleting", "name", a.Name())
		if err = s.fs.Remove(s.Path(a)); err != nil {
			return nil, fmt.Errorf("store: delete unrecognized '%s': %w", a.Name(), err)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnrecognized, a.Name())
	}

	s.metrics.IncIdentified(g.Family)
	s.logger.Info("identified game", "name", a.Name(), "format", format, "game", g.Name, "presets", g.Presets)
	return g, nil
}

// Classify identifies the stored artifact without verifying or deleting it.
// A nil game means the ROM is not recognized.
func (s *Store) Classify(a Artifact) (*games.Game, error) {
	g, _, err := s.classify(a)
	return g, err
}

func (s *Store) classify(a Artifact) (*games.Game, string, error) {
	f, err := s.fs.Open(s.Path(a))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, a.Name())
		}
		return nil, "", fmt.Errorf("store: open '%s': %w", a.Name(), err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("store: stat '%s': %w", a.Name(), err)
	}

	g, format := games.Identify(rom.New(f, fi.Size()))
	return g, format, nil
}
