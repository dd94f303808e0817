// Package syncer reconciles registered skills with their recorded
// snapshots and refreshes materialized clones.
package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/asrlabs/asr/pkg/adapters"
	"github.com/asrlabs/asr/pkg/fetch"
	"github.com/asrlabs/asr/pkg/logger"
	"github.com/asrlabs/asr/pkg/manifest"
	"github.com/asrlabs/asr/pkg/registry"
	"github.com/asrlabs/asr/pkg/skills"
)

// Action is what the syncer did for one skill.
type Action string

const (
	ActionNone           Action = "none"
	ActionSnapshotted    Action = "snapshotted"
	ActionPruned         Action = "pruned"
	ActionCloneRefreshed Action = "clone-refreshed"
)

// Options controls one sync run.
type Options struct {
	// Names limits the run to the given skills; empty means all.
	Names []string
	// Prune removes registry entries and state for skills whose source is
	// gone.
	Prune bool
	// RegistryOnly skips clone refresh.
	RegistryOnly bool
}

// ItemReport is the outcome for one skill.
type ItemReport struct {
	Name    string          `json:"name"`
	Status  manifest.Status `json:"status"`
	Action  Action          `json:"action"`
	Changed []string        `json:"changed,omitempty"`
	Clones  int             `json:"clones_refreshed,omitempty"`
	Err     string          `json:"error,omitempty"`
}

// Report is the full sync outcome, ordered by skill name.
type Report struct {
	Items []ItemReport `json:"items"`
}

// Counts returns the number of items per action.
func (r *Report) Counts() map[Action]int {
	counts := make(map[Action]int)
	for _, item := range r.Items {
		counts[item.Action]++
	}
	return counts
}

type Syncer struct {
	reg     *registry.Registry
	tracker *manifest.Tracker
	fetcher *fetch.Fetcher
}

func New(reg *registry.Registry, tracker *manifest.Tracker, fetcher *fetch.Fetcher) *Syncer {
	return &Syncer{reg: reg, tracker: tracker, fetcher: fetcher}
}

// Run classifies each selected skill and applies the resulting action.
// Untracked and modified skills are snapshotted; missing skills only get
// touched with Prune. Per-skill failures, including names that are simply
// not registered, are aggregated and do not stop the run.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Report, error) {
	log := logger.G(ctx)

	entries, unknown := s.selectEntries(opts.Names)

	report := &Report{}
	var errs *multierror.Error

	for _, name := range unknown {
		report.Items = append(report.Items, ItemReport{Name: name, Action: ActionNone, Err: "not registered"})
		errs = multierror.Append(errs, errors.Errorf("skill %s: not registered", name))
	}

	prefetched := s.prefetch(ctx, entries)

	for _, entry := range entries {
		item := s.syncOne(ctx, entry, opts, prefetched)
		if item.Err != "" {
			errs = multierror.Append(errs, errors.Errorf("skill %s: %s", entry.Name, item.Err))
		} else {
			log.WithField("skill", entry.Name).
				WithField("status", item.Status).
				WithField("action", item.Action).
				Debug("synced")
		}
		report.Items = append(report.Items, item)
	}

	sort.Slice(report.Items, func(i, j int) bool { return report.Items[i].Name < report.Items[j].Name })
	return report, errs.ErrorOrNil()
}

// selectEntries resolves names against the registry, splitting off the ones
// that are not registered so the caller can report them without aborting.
func (s *Syncer) selectEntries(names []string) ([]registry.Entry, []string) {
	if len(names) == 0 {
		return s.reg.List(), nil
	}

	var entries []registry.Entry
	var unknown []string
	for _, name := range names {
		entry, err := s.reg.Get(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, unknown
}

// prefetch resolves every remote entry up front through the fetcher's
// bounded worker pool. Per-skill failures are carried in the results and
// surfaced by syncOne.
func (s *Syncer) prefetch(ctx context.Context, entries []registry.Entry) map[string]fetch.Result {
	remotes := make(map[string]*skills.RemoteSource)
	for _, entry := range entries {
		if entry.Source.IsRemote() {
			remotes[entry.Name] = entry.Source.Remote
		}
	}
	if len(remotes) == 0 {
		return nil
	}

	results, _ := s.fetcher.FetchAll(ctx, remotes)
	return results
}

func (s *Syncer) resolveDir(ctx context.Context, entry registry.Entry, prefetched map[string]fetch.Result) (string, error) {
	if res, ok := prefetched[entry.Name]; ok {
		return res.Dir, res.Err
	}
	return s.fetcher.Resolve(ctx, entry.Source)
}

func (s *Syncer) syncOne(ctx context.Context, entry registry.Entry, opts Options, prefetched map[string]fetch.Result) ItemReport {
	item := ItemReport{Name: entry.Name, Action: ActionNone}

	dir, err := s.resolveDir(ctx, entry, prefetched)
	if err != nil && !fetch.IsUnreachable(err) {
		item.Err = err.Error()
		return item
	}

	if err != nil {
		item.Status = manifest.StatusMissing
		if opts.Prune {
			if pruneErr := s.prune(entry.Name); pruneErr != nil {
				item.Err = pruneErr.Error()
				return item
			}
			item.Action = ActionPruned
		}
		return item
	}

	c, err := s.tracker.Classify(entry.Name, dir)
	if err != nil {
		item.Err = err.Error()
		return item
	}
	item.Status = c.Status
	item.Changed = c.Changed

	switch c.Status {
	case manifest.StatusMissing:
		if opts.Prune {
			if err := s.prune(entry.Name); err != nil {
				item.Err = err.Error()
				return item
			}
			item.Action = ActionPruned
		}
		return item
	case manifest.StatusUntracked, manifest.StatusModified:
		// fall through to snapshot
	case manifest.StatusValid:
		if !opts.RegistryOnly {
			item.Clones, err = s.refreshClones(entry.Name, dir)
			if err != nil {
				item.Err = err.Error()
			} else if item.Clones > 0 {
				item.Action = ActionCloneRefreshed
			}
		}
		return item
	}

	if _, err := s.tracker.Snapshot(entry.Name, entry.Source, dir); err != nil {
		item.Err = err.Error()
		return item
	}
	item.Action = ActionSnapshotted

	if !opts.RegistryOnly {
		item.Clones, err = s.refreshClones(entry.Name, dir)
		if err != nil {
			item.Err = err.Error()
		}
	}
	return item
}

func (s *Syncer) prune(name string) error {
	if _, err := s.reg.Remove(name); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}
	return s.tracker.Remove(name)
}

// refreshClones re-copies the current skill content into every recorded
// materialization whose digest is stale. Records whose parent project
// directory is gone are dropped.
func (s *Syncer) refreshClones(name, srcDir string) (int, error) {
	clones, err := s.tracker.Clones(name)
	if err != nil {
		return 0, err
	}
	if len(clones) == 0 {
		return 0, nil
	}

	digest, _, err := skills.HashTree(srcDir)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to hash %s", srcDir)
	}

	refreshed := 0
	var errs *multierror.Error
	for _, clone := range clones {
		if _, err := os.Stat(filepath.Dir(clone.Path)); os.IsNotExist(err) {
			if err := s.tracker.RemoveClone(name, clone.Path); err != nil {
				errs = multierror.Append(errs, err)
			}
			continue
		}
		if clone.Digest == digest {
			continue
		}
		if err := adapters.SyncTree(srcDir, clone.Path); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "clone %s", clone.Path))
			continue
		}
		if err := s.tracker.RecordClone(name, clone.Path, digest); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		refreshed++
	}
	return refreshed, errs.ErrorOrNil()
}
