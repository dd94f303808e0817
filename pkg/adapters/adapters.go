// Package adapters generates editor-specific delegate files that point at
// registered skills. Each target writes thin delegates referencing the
// materialized skill directory instead of duplicating its content.
package adapters

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/asrlabs/asr/pkg/skills"
)

// delegateSentinel marks generated delegate files. Stale cleanup only
// removes files containing this line, so hand-written files survive.
const delegateSentinel = "delegates to the agent skill at"

const (
	TargetCursor   = "cursor"
	TargetWindsurf = "windsurf"
	TargetCodex    = "codex"
	TargetAgents   = "agents"
)

// delegateTarget is one per-skill-file adapter target.
type delegateTarget struct {
	name   string
	subdir string
	ext    string
	render func(skill *skills.Skill, skillPath string) []byte
}

var delegateTargets = map[string]delegateTarget{
	TargetCursor: {
		name:   TargetCursor,
		subdir: ".cursor/rules",
		ext:    ".mdc",
		render: renderCursor,
	},
	TargetWindsurf: {
		name:   TargetWindsurf,
		subdir: ".windsurf/workflows",
		ext:    ".md",
		render: renderWindsurf,
	},
	TargetCodex: {
		name:   TargetCodex,
		subdir: ".codex/prompts",
		ext:    ".md",
		render: renderCodex,
	},
}

// KnownTargets returns all supported target names, sorted.
func KnownTargets() []string {
	names := []string{TargetAgents}
	for name := range delegateTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidTarget reports whether name is a supported adapter target.
func ValidTarget(name string) bool {
	if name == TargetAgents {
		return true
	}
	_, ok := delegateTargets[name]
	return ok
}

func renderCursor(skill *skills.Skill, skillPath string) []byte {
	desc, _ := json.Marshal(skill.Description)
	var b strings.Builder
	fmt.Fprintf(&b, "---\ndescription: %s\nalwaysApply: false\n---\n\n", desc)
	fmt.Fprintf(&b, "# %s\n\n", skill.Name)
	fmt.Fprintf(&b, "This rule %s `%s/`.\n\n", delegateSentinel, skillPath)
	fmt.Fprintf(&b, "Read `%s/%s` for the full instructions before acting.\n", skillPath, skills.ManifestFileName)
	return []byte(b.String())
}

func renderWindsurf(skill *skills.Skill, skillPath string) []byte {
	desc, _ := json.Marshal(skill.Description)
	var b strings.Builder
	fmt.Fprintf(&b, "---\ndescription: %s\nauto_execution_mode: 1\n---\n\n", desc)
	fmt.Fprintf(&b, "# %s\n\n", skill.Name)
	fmt.Fprintf(&b, "This workflow %s `%s/`.\n\n", delegateSentinel, skillPath)
	fmt.Fprintf(&b, "## Skill Location\n\n")
	fmt.Fprintf(&b, "- **Path:** `%s/`\n", skillPath)
	fmt.Fprintf(&b, "- **Manifest:** `%s/%s`\n", skillPath, skills.ManifestFileName)
	return []byte(b.String())
}

func renderCodex(skill *skills.Skill, skillPath string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", skill.Name)
	fmt.Fprintf(&b, "%s\n\n", skill.Description)
	fmt.Fprintf(&b, "This prompt %s `%s/`.\n\n", delegateSentinel, skillPath)
	fmt.Fprintf(&b, "Follow the instructions in `%s/%s`.\n", skillPath, skills.ManifestFileName)
	return []byte(b.String())
}

// resolveOutputDir appends the target subdir to root unless root already
// ends with it. A root ending with the subdir's parent (such as .cursor)
// gets only the leaf appended.
func resolveOutputDir(root, subdir string) string {
	normalized := filepath.ToSlash(root)
	if strings.HasSuffix(normalized, subdir) {
		return root
	}
	parent, leaf := path.Split(subdir)
	if strings.HasSuffix(normalized, strings.TrimSuffix(parent, "/")) {
		return filepath.Join(root, leaf)
	}
	return filepath.Join(root, filepath.FromSlash(subdir))
}

// cleanupStale removes generated delegate files in dir whose skill name is
// no longer active. Files without the sentinel are left alone.
func cleanupStale(dir, ext string, active map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", dir)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if active[name] {
			continue
		}

		full := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(full)
		if err != nil || !strings.Contains(string(content), delegateSentinel) {
			continue
		}
		if err := os.Remove(full); err != nil {
			return removed, errors.Wrapf(err, "failed to remove stale delegate %s", full)
		}
		removed = append(removed, full)
	}
	sort.Strings(removed)
	return removed, nil
}
