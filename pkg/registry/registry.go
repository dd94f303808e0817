// Package registry implements the persistent skill registry: a single JSON
// document mapping skill names to source descriptors. The registry is the
// only writer of its document; mutations are serialized with an advisory
// file lock and persisted atomically.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/asrlabs/asr/pkg/skills"
	"github.com/asrlabs/asr/pkg/store"
)

const (
	registryFileName = "registry.json"
	documentVersion  = 1
)

var (
	// ErrNotFound indicates the requested skill is not registered.
	ErrNotFound = errors.New("skill not found in registry")
	// ErrNameConflict indicates an add collided with an existing entry of the
	// same name pointing at a different source.
	ErrNameConflict = errors.New("skill name conflict")
)

// Entry is one registered skill: a name, where its authoritative bytes live,
// and when it was registered.
type Entry struct {
	Name         string        `json:"-"`
	Source       skills.Source `json:"source"`
	RegisteredAt time.Time     `json:"registered_at"`
}

type document struct {
	Version int              `json:"version"`
	Skills  map[string]Entry `json:"skills"`
}

// Registry is a scoped handle on the persisted registry document. Callers
// must Close it; the advisory lock (taken lazily on first mutation) is held
// until then.
type Registry struct {
	dir  string
	path string
	doc  document
	lock *store.Lock
}

// Open loads the registry document from dir, creating an empty in-memory
// document when none exists yet. An unparsable document fails with
// store.ErrCorrupt and is never repaired.
func Open(dir string) (*Registry, error) {
	r := &Registry{
		dir:  dir,
		path: filepath.Join(dir, registryFileName),
		doc:  document{Version: documentVersion, Skills: map[string]Entry{}},
	}

	if err := store.LoadJSON(r.path, &r.doc); err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		if errors.Is(err, store.ErrCorrupt) {
			return nil, errors.Wrap(err, "registry document is corrupt")
		}
		return nil, errors.Wrap(err, "failed to load registry")
	}

	if r.doc.Skills == nil {
		r.doc.Skills = map[string]Entry{}
	}

	return r, nil
}

// Close releases the advisory lock if one was taken.
func (r *Registry) Close() error {
	if r.lock == nil {
		return nil
	}
	err := r.lock.Release()
	r.lock = nil
	return err
}

func (r *Registry) ensureLock() error {
	if r.lock != nil {
		return nil
	}
	lock, err := store.Acquire(r.dir)
	if err != nil {
		return err
	}
	r.lock = lock
	return nil
}

func (r *Registry) save() error {
	return store.SaveJSON(r.path, &r.doc)
}

// Put registers a skill, overwriting any existing entry with the same name
// (last-write-wins). It reports whether the entry is new.
func (r *Registry) Put(name string, source skills.Source) (bool, error) {
	if err := source.Validate(); err != nil {
		return false, err
	}
	if err := r.ensureLock(); err != nil {
		return false, err
	}

	_, exists := r.doc.Skills[name]
	r.doc.Skills[name] = Entry{
		Source:       source,
		RegisteredAt: time.Now().UTC(),
	}

	if err := r.save(); err != nil {
		return false, err
	}
	return !exists, nil
}

// PutStrict registers a skill like Put but fails with ErrNameConflict when
// an entry of the same name already points at a different source.
func (r *Registry) PutStrict(name string, source skills.Source) (bool, error) {
	if existing, ok := r.doc.Skills[name]; ok && existing.Source.String() != source.String() {
		return false, errors.Wrapf(ErrNameConflict, "%s already registered from %s", name, existing.Source.String())
	}
	return r.Put(name, source)
}

// Get returns the entry for name, or ErrNotFound.
func (r *Registry) Get(name string) (Entry, error) {
	entry, ok := r.doc.Skills[name]
	if !ok {
		return Entry{}, errors.Wrapf(ErrNotFound, "%s", name)
	}
	entry.Name = name
	return entry, nil
}

// Remove unregisters a skill. It reports whether an entry was removed; the
// skill's source directory is never touched.
func (r *Registry) Remove(name string) (bool, error) {
	if _, ok := r.doc.Skills[name]; !ok {
		return false, nil
	}
	if err := r.ensureLock(); err != nil {
		return false, err
	}

	delete(r.doc.Skills, name)
	if err := r.save(); err != nil {
		return false, err
	}
	return true, nil
}

// List returns all entries ordered by name.
func (r *Registry) List() []Entry {
	entries := make([]Entry, 0, len(r.doc.Skills))
	for name, entry := range r.doc.Skills {
		entry.Name = name
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// FindByPathPrefix returns entries whose local source path sits under root.
// Remote entries never match. This backs recursive remove. Root is resolved
// to an absolute path first since registered source paths always are.
func (r *Registry) FindByPathPrefix(root string) []Entry {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	root = filepath.Clean(root)
	prefix := root + string(os.PathSeparator)

	var matched []Entry
	for _, entry := range r.List() {
		if entry.Source.Kind != skills.SourceLocal {
			continue
		}
		path := filepath.Clean(entry.Source.Path)
		if path == root || strings.HasPrefix(path, prefix) {
			matched = append(matched, entry)
		}
	}
	return matched
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	return len(r.doc.Skills)
}
