package adapters

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/asrlabs/asr/pkg/logger"
	"github.com/asrlabs/asr/pkg/manifest"
	"github.com/asrlabs/asr/pkg/registry"
	"github.com/asrlabs/asr/pkg/skills"
)

// materializedDir is where skill content is copied under the output root.
const materializedDir = ".asr/skills"

// Resolver yields a readable local directory for a skill source. Remote
// sources are fetched into a temp cache.
type Resolver interface {
	Resolve(ctx context.Context, source skills.Source) (string, error)
}

// Options controls one adapter generation run.
type Options struct {
	OutputRoot string
	Targets    []string
	Exclude    []string
	Prune      bool
}

// Report summarizes a generation run.
type Report struct {
	Generated []string `json:"generated"`
	Removed   []string `json:"removed"`
	Failed    []string `json:"failed,omitempty"`
}

type Generator struct {
	resolver Resolver
	tracker  *manifest.Tracker
}

func NewGenerator(resolver Resolver, tracker *manifest.Tracker) *Generator {
	return &Generator{resolver: resolver, tracker: tracker}
}

// Generate materializes the given skills under the output root and writes
// delegate files for each requested target. Re-running with unchanged
// inputs produces byte-identical output. Per-skill failures are collected
// and do not abort the remaining skills.
func (g *Generator) Generate(ctx context.Context, entries []registry.Entry, opts Options) (*Report, error) {
	log := logger.G(ctx)
	report := &Report{}

	excluded := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[name] = true
	}

	for _, target := range opts.Targets {
		if !ValidTarget(target) {
			return nil, errors.Errorf("unknown adapter target %q (known: %s)",
				target, strings.Join(KnownTargets(), ", "))
		}
	}

	var errs *multierror.Error
	var resolved []*skills.Skill
	active := make(map[string]bool)

	for _, entry := range entries {
		if excluded[entry.Name] {
			continue
		}

		skill, err := g.materialize(ctx, entry, opts.OutputRoot)
		if err != nil {
			log.WithError(err).WithField("skill", entry.Name).Warn("skipping skill")
			report.Failed = append(report.Failed, entry.Name)
			errs = multierror.Append(errs, errors.Wrapf(err, "skill %s", entry.Name))
			continue
		}
		resolved = append(resolved, skill)
		active[entry.Name] = true
	}

	for _, target := range opts.Targets {
		if target == TargetAgents {
			path, err := g.generateAgents(resolved, opts)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			report.Generated = append(report.Generated, path)
			continue
		}

		generated, removed, err := g.generateDelegates(delegateTargets[target], resolved, active, opts)
		report.Generated = append(report.Generated, generated...)
		report.Removed = append(report.Removed, removed...)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	sort.Strings(report.Generated)
	sort.Strings(report.Removed)
	sort.Strings(report.Failed)
	return report, errs.ErrorOrNil()
}

// materialize resolves the skill source and copies its tree under
// <root>/.asr/skills/<name>, recording the clone.
func (g *Generator) materialize(ctx context.Context, entry registry.Entry, root string) (*skills.Skill, error) {
	srcDir, err := g.resolver.Resolve(ctx, entry.Source)
	if err != nil {
		return nil, err
	}

	skill, err := skills.LoadSkill(srcDir)
	if err != nil {
		return nil, err
	}
	skill.Name = entry.Name

	dest := filepath.Join(root, filepath.FromSlash(materializedDir), entry.Name)
	if err := SyncTree(srcDir, dest); err != nil {
		return nil, errors.Wrapf(err, "failed to materialize %s", entry.Name)
	}

	if g.tracker != nil {
		digest, _, err := skills.HashTree(srcDir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to hash %s", entry.Name)
		}
		if err := g.tracker.RecordClone(entry.Name, dest, digest); err != nil {
			return nil, err
		}
	}
	return skill, nil
}

func (g *Generator) generateDelegates(target delegateTarget, resolved []*skills.Skill, active map[string]bool, opts Options) ([]string, []string, error) {
	dir := resolveOutputDir(opts.OutputRoot, target.subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create %s", dir)
	}

	var generated []string
	for _, skill := range resolved {
		file := filepath.Join(dir, skill.Name+target.ext)
		content := target.render(skill, skillRefPath(skill.Name))
		if err := writeIfChanged(file, content); err != nil {
			return generated, nil, err
		}
		generated = append(generated, file)
	}

	var removed []string
	if opts.Prune {
		var err error
		removed, err = cleanupStale(dir, target.ext, active)
		if err != nil {
			return generated, removed, err
		}
	}
	return generated, removed, nil
}

func (g *Generator) generateAgents(resolved []*skills.Skill, opts Options) (string, error) {
	path := filepath.Join(opts.OutputRoot, agentsFileName)

	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	} else if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}

	sections := make(map[string]string, len(resolved))
	order := make([]string, 0, len(resolved))
	for _, skill := range resolved {
		sections[skill.Name] = renderAgentsSection(skill, skillRefPath(skill.Name))
		order = append(order, skill.Name)
	}
	sort.Strings(order)

	merged := mergeAgentsContent(existing, sections, order, opts.Prune)
	if err := writeIfChanged(path, []byte(merged)); err != nil {
		return "", err
	}
	return path, nil
}

// skillRefPath is the path delegates embed, relative to the output root.
func skillRefPath(name string) string {
	return materializedDir + "/" + name
}

// writeIfChanged leaves the file untouched when content already matches,
// keeping mtimes stable across idempotent re-runs.
func writeIfChanged(path string, content []byte) error {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, content, 0o644), "failed to write %s", path)
}

// SyncTree replaces dest with a copy of src, skipping VCS metadata. The
// syncer uses it to refresh recorded clones.
func SyncTree(src, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return err
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" && rel != "." {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dest, rel), 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, filepath.Join(dest, rel), info.Mode().Perm())
	})
}

func copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
