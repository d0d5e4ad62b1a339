// Package artifact persists the trained model, the fitted scaler and the
// training data used by the explainer.
//
// Artifacts are written in generations. A training run stages every artifact
// in a private directory, then Commit moves it under generations/ and swaps
// the CURRENT pointer file in one rename. Readers only ever see a complete
// generation: a failed run leaves the previous one current.
//
//	<dir>/
//	  CURRENT                  id of the live generation
//	  generations/<id>/        model.gob scaler.gob X_train.gob y_train.gob manifest.yaml
//	  .staging-*/              in-progress generations
package artifact

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ezoic/pricerange/pkg/errors"
	"github.com/ezoic/pricerange/pkg/log"
)

// Artifact names.
const (
	Model  = "model"
	Scaler = "scaler"
	XTrain = "X_train"
	YTrain = "y_train"
)

const (
	// Format tags every artifact envelope.
	Format = "pricerange-artifact"
	// Version is bumped whenever a payload layout changes incompatibly.
	Version = 1

	CurrentFile    = "CURRENT"
	manifestFile   = "manifest.yaml"
	generationsDir = "generations"
	stagingPrefix  = ".staging-"
	fileExt        = ".gob"
	defaultKeep    = 3
)

// Required lists the artifacts every committed generation must contain.
var Required = []string{Model, Scaler, XTrain, YTrain}

type envelope struct {
	Format  string
	Version int
	Name    string
	Payload []byte
}

// Manifest describes a committed generation.
type Manifest struct {
	Generation string            `yaml:"generation"`
	CreatedAt  time.Time         `yaml:"created_at"`
	Version    int               `yaml:"version"`
	Artifacts  []string          `yaml:"artifacts"`
	Metadata   map[string]string `yaml:"metadata,omitempty"`
}

// Store is a directory of artifact generations.
type Store struct {
	dir    string
	keep   int
	logger log.Logger

	mu      sync.Mutex // serializes commits
	lastID  string
	nowFunc func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithKeep sets how many committed generations survive pruning, the current
// one included. Values below 1 keep every generation.
func WithKeep(n int) Option {
	return func(s *Store) { s.keep = n }
}

// WithLogger overrides the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates dir if needed and returns a Store rooted there.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{dir: dir, keep: defaultKeep, nowFunc: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("artifact")
	}
	if err := os.MkdirAll(filepath.Join(dir, generationsDir), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create artifact directory %s", dir)
	}
	return s, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// CurrentPath returns the path of the CURRENT pointer file.
func (s *Store) CurrentPath() string { return filepath.Join(s.dir, CurrentFile) }

// Current returns the id of the live generation.
func (s *Store) Current() (string, error) {
	b, err := os.ReadFile(s.CurrentPath())
	if err != nil {
		return "", errors.NewArtifactError(errors.ErrArtifactMissing, CurrentFile, s.CurrentPath(), err)
	}
	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", errors.NewArtifactError(errors.ErrArtifactMissing, CurrentFile, s.CurrentPath(),
			errors.New("empty generation pointer"))
	}
	return id, nil
}

// Load decodes artifact name of the live generation into `into`, which must
// be a pointer. Decode into a zero value: gob leaves fields that were zero
// when encoded untouched.
func (s *Store) Load(name string, into interface{}) error {
	id, err := s.Current()
	if err != nil {
		return err
	}
	return s.LoadFrom(id, name, into)
}

// LoadFrom decodes artifact name of generation id.
func (s *Store) LoadFrom(id, name string, into interface{}) error {
	path := filepath.Join(s.dir, generationsDir, id, name+fileExt)
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.NewArtifactError(errors.ErrArtifactMissing, name, path, err)
	}

	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		// unreadable bytes are reported like an absent file
		return errors.NewArtifactError(errors.ErrArtifactMissing, name, path,
			errors.Wrap(err, "failed to decode envelope"))
	}
	if env.Format != Format || env.Version != Version {
		return errors.NewArtifactError(errors.ErrArtifactIncompatible, name, path,
			errors.Newf("found %s v%d, want %s v%d", env.Format, env.Version, Format, Version))
	}
	if env.Name != name {
		return errors.NewArtifactError(errors.ErrArtifactIncompatible, name, path,
			errors.Newf("envelope holds %q", env.Name))
	}
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(into); err != nil {
		return errors.NewArtifactError(errors.ErrArtifactIncompatible, name, path,
			errors.Wrap(err, "failed to decode payload"))
	}

	s.logger.Debug("Artifact loaded",
		log.OperationKey, log.OperationLoad,
		log.ArtifactKey, name,
		log.GenerationKey, id,
	)
	return nil
}

// Manifest returns the manifest of the live generation.
func (s *Store) Manifest() (*Manifest, error) {
	id, err := s.Current()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, generationsDir, id, manifestFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewArtifactError(errors.ErrArtifactMissing, manifestFile, path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, errors.NewArtifactError(errors.ErrArtifactIncompatible, manifestFile, path, err)
	}
	return &m, nil
}

// Generations lists committed generation ids, oldest first.
func (s *Store) Generations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, generationsDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list generations")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Begin starts a new generation in a staging directory.
func (s *Store) Begin() (*Generation, error) {
	staging, err := os.MkdirTemp(s.dir, stagingPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create staging directory")
	}
	return &Generation{
		store:    s,
		staging:  staging,
		metadata: make(map[string]string),
	}, nil
}

// nextID returns a sortable id that is strictly greater than every id this
// store has handed out.
func (s *Store) nextID() string {
	id := s.nowFunc().UTC().Format("20060102T150405.000000000Z")
	if id <= s.lastID {
		id = s.lastID + "1"
	}
	s.lastID = id
	return id
}

func (s *Store) prune(current string) {
	if s.keep < 1 {
		return
	}
	ids, err := s.Generations()
	if err != nil {
		s.logger.Warn("Failed to list generations for pruning", "error", err)
		return
	}
	for len(ids) > s.keep {
		id := ids[0]
		ids = ids[1:]
		if id == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, generationsDir, id)); err != nil {
			s.logger.Warn("Failed to prune generation", log.GenerationKey, id, "error", err)
			continue
		}
		s.logger.Debug("Generation pruned", log.GenerationKey, id)
	}
}

// Generation is a set of artifacts being written. It becomes visible only
// after Commit.
type Generation struct {
	store    *Store
	staging  string
	saved    []string
	metadata map[string]string
	done     bool
}

// Save gob-encodes obj as artifact name.
func (g *Generation) Save(name string, obj interface{}) error {
	if g.done {
		return errors.Newf("artifact: generation already finished, cannot save %s", name)
	}
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(obj); err != nil {
		return errors.Wrapf(err, "failed to encode artifact %s", name)
	}
	env := envelope{Format: Format, Version: Version, Name: name, Payload: payload.Bytes()}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return errors.Wrapf(err, "failed to encode envelope %s", name)
	}
	path := filepath.Join(g.staging, name+fileExt)
	if err := writeFileSync(path, buf.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write artifact %s", name)
	}
	if !contains(g.saved, name) {
		g.saved = append(g.saved, name)
	}

	g.store.logger.Debug("Artifact staged",
		log.OperationKey, log.OperationSave,
		log.ArtifactKey, name,
		"bytes", buf.Len(),
	)
	return nil
}

// SetMetadata records a key in the generation manifest.
func (g *Generation) SetMetadata(key, value string) {
	g.metadata[key] = value
}

// Commit publishes the generation and makes it current. Every name in
// Required must have been saved.
func (g *Generation) Commit() (string, error) {
	if g.done {
		return "", errors.New("artifact: generation already finished")
	}
	for _, name := range Required {
		if !contains(g.saved, name) {
			return "", errors.NewArtifactError(errors.ErrArtifactMissing, name, g.staging,
				errors.New("required artifact was not saved"))
		}
	}

	s := g.store
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID()
	manifest := Manifest{
		Generation: id,
		CreatedAt:  s.nowFunc().UTC(),
		Version:    Version,
		Artifacts:  append([]string(nil), g.saved...),
		Metadata:   g.metadata,
	}
	b, err := yaml.Marshal(&manifest)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode manifest")
	}
	if err := writeFileSync(filepath.Join(g.staging, manifestFile), b); err != nil {
		return "", errors.Wrap(err, "failed to write manifest")
	}

	final := filepath.Join(s.dir, generationsDir, id)
	if err := os.Rename(g.staging, final); err != nil {
		return "", errors.Wrapf(err, "failed to publish generation %s", id)
	}
	g.done = true

	if err := s.swapCurrent(id); err != nil {
		// CURRENT still names the previous generation
		_ = os.RemoveAll(final)
		return "", err
	}

	s.logger.Info("Generation committed",
		log.OperationKey, log.OperationSave,
		log.GenerationKey, id,
		"artifacts", manifest.Artifacts,
	)
	s.prune(id)
	return id, nil
}

// Abort discards the staged artifacts. It is safe to call after Commit.
func (g *Generation) Abort() error {
	if g.done {
		return nil
	}
	g.done = true
	if err := os.RemoveAll(g.staging); err != nil {
		return errors.Wrap(err, "failed to remove staging directory")
	}
	return nil
}

// swapCurrent points CURRENT at id with a write-then-rename.
func (s *Store) swapCurrent(id string) error {
	tmp, err := os.CreateTemp(s.dir, CurrentFile+".tmp-")
	if err != nil {
		return errors.Wrap(err, "failed to create pointer file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := fmt.Fprintln(tmp, id); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write pointer file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync pointer file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close pointer file")
	}
	if err := os.Rename(tmpName, s.CurrentPath()); err != nil {
		return errors.Wrap(err, "failed to swap pointer file")
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(0o644))
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
