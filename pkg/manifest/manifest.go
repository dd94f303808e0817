// Package manifest persists per-skill content snapshots and classifies
// registered skills against them to detect drift. It also tracks clone
// records for materialized copies of skills.
package manifest

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

// Status classifies a registered skill against its last snapshot.
type Status string

const (
	StatusValid     Status = "valid"
	StatusModified  Status = "modified"
	StatusMissing   Status = "missing"
	StatusUntracked Status = "untracked"
)

const (
	manifestVersion = 1
	manifestSuffix  = ".manifest.json"
	clonesSuffix    = ".clones.json"
)

// Manifest is one skill's recorded content snapshot.
type Manifest struct {
	Version       int                `json:"version"`
	Name          string             `json:"name"`
	Source        skills.Source      `json:"source"`
	ContentDigest string             `json:"content_digest"`
	CapturedAt    time.Time          `json:"captured_at"`
	Files         []skills.FileEntry `json:"files"`
}

// Clone records one materialized copy of a skill.
type Clone struct {
	Path        string    `json:"path"`
	Digest      string    `json:"digest"`
	FirstCloned time.Time `json:"first_cloned"`
	LastSynced  time.Time `json:"last_synced"`
}

type cloneDocument struct {
	Version int     `json:"version"`
	Name    string  `json:"name"`
	Clones  []Clone `json:"clones"`
}

// Tracker reads and writes manifests under <stateHome>/manifests.
type Tracker struct {
	dir string
}

func NewTracker(stateHome string) *Tracker {
	return &Tracker{dir: filepath.Join(stateHome, "manifests")}
}

func (t *Tracker) manifestPath(name string) string {
	return filepath.Join(t.dir, name+manifestSuffix)
}

func (t *Tracker) clonesPath(name string) string {
	return filepath.Join(t.dir, name+clonesSuffix)
}

// Snapshot hashes the skill content at dir and persists the result as the
// new baseline for name.
func (t *Tracker) Snapshot(name string, source skills.Source, dir string) (*Manifest, error) {
	digest, files, err := skills.HashTree(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to snapshot %s", name)
	}

	m := &Manifest{
		Version:       manifestVersion,
		Name:          name,
		Source:        source,
		ContentDigest: digest,
		CapturedAt:    time.Now().UTC(),
		Files:         files,
	}
	if err := store.SaveJSON(t.manifestPath(name), m); err != nil {
		return nil, errors.Wrapf(err, "failed to save manifest for %s", name)
	}
	return m, nil
}

// Load returns the stored manifest for name, or nil when none exists.
func (t *Tracker) Load(name string) (*Manifest, error) {
	var m Manifest
	if err := store.LoadJSON(t.manifestPath(name), &m); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Remove deletes the manifest and clone records for name. Missing files are
// not an error.
func (t *Tracker) Remove(name string) error {
	for _, path := range []string{t.manifestPath(name), t.clonesPath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove manifest state for %s", name)
		}
	}
	return nil
}

// List returns the names of all skills with a stored manifest, sorted.
func (t *Tracker) List() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read manifests directory")
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), manifestSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), manifestSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Classification is the drift verdict for one skill.
type Classification struct {
	Name     string
	Status   Status
	Manifest *Manifest
	// Changed lists relative paths that differ from the snapshot, present
	// only for StatusModified.
	Changed []string
}

// Classify compares the skill material at dir against the stored snapshot.
// A missing directory yields StatusMissing; a skill without a snapshot is
// StatusUntracked.
func (t *Tracker) Classify(name, dir string) (Classification, error) {
	c := Classification{Name: name}

	m, err := t.Load(name)
	if err != nil {
		return c, err
	}
	c.Manifest = m

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			c.Status = StatusMissing
			return c, nil
		}
		return c, errors.Wrapf(err, "failed to stat %s", dir)
	}

	if m == nil {
		c.Status = StatusUntracked
		return c, nil
	}

	digest, files, err := skills.HashTree(dir)
	if err != nil {
		return c, errors.Wrapf(err, "failed to hash %s", name)
	}

	if digest == m.ContentDigest {
		c.Status = StatusValid
		return c, nil
	}

	c.Status = StatusModified
	c.Changed = diffFiles(m.Files, files)
	return c, nil
}

// diffFiles returns the union of added, removed, and changed paths between
// two file listings, sorted.
func diffFiles(before, after []skills.FileEntry) []string {
	old := make(map[string]string, len(before))
	for _, f := range before {
		old[f.Path] = f.Hash
	}

	changed := make(map[string]struct{})
	for _, f := range after {
		if hash, ok := old[f.Path]; !ok || hash != f.Hash {
			changed[f.Path] = struct{}{}
		}
		delete(old, f.Path)
	}
	for path := range old {
		changed[path] = struct{}{}
	}

	out := make([]string, 0, len(changed))
	for path := range changed {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) loadClones(name string) (cloneDocument, error) {
	doc := cloneDocument{Version: manifestVersion, Name: name}
	if err := store.LoadJSON(t.clonesPath(name), &doc); err != nil && !os.IsNotExist(err) {
		return doc, err
	}
	return doc, nil
}

// RecordClone registers a materialized copy of name at path with the given
// content digest. An existing record for the same path keeps its
// first_cloned timestamp and gets its digest and last_synced refreshed.
func (t *Tracker) RecordClone(name, path, digest string) error {
	doc, err := t.loadClones(name)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updated := false
	for i := range doc.Clones {
		if doc.Clones[i].Path == path {
			doc.Clones[i].Digest = digest
			doc.Clones[i].LastSynced = now
			updated = true
			break
		}
	}
	if !updated {
		doc.Clones = append(doc.Clones, Clone{
			Path:        path,
			Digest:      digest,
			FirstCloned: now,
			LastSynced:  now,
		})
	}
	sort.Slice(doc.Clones, func(i, j int) bool { return doc.Clones[i].Path < doc.Clones[j].Path })

	return store.SaveJSON(t.clonesPath(name), doc)
}

// RemoveClone drops the clone record for path. The record file is deleted
// once its last clone is removed.
func (t *Tracker) RemoveClone(name, path string) error {
	doc, err := t.loadClones(name)
	if err != nil {
		return err
	}

	kept := doc.Clones[:0]
	for _, c := range doc.Clones {
		if c.Path != path {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		if err := os.Remove(t.clonesPath(name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove clone records for %s", name)
		}
		return nil
	}
	doc.Clones = kept
	return store.SaveJSON(t.clonesPath(name), doc)
}

// Clones returns the recorded materializations of name, sorted by path.
func (t *Tracker) Clones(name string) ([]Clone, error) {
	doc, err := t.loadClones(name)
	if err != nil {
		return nil, err
	}
	return doc.Clones, nil
}
