package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asrlabs/asr/pkg/skills"
)

func testSkill(name, description string) *skills.Skill {
	return &skills.Skill{Name: name, Description: description}
}

func TestKnownTargets(t *testing.T) {
	assert.Equal(t, []string{"agents", "codex", "cursor", "windsurf"}, KnownTargets())
	assert.True(t, ValidTarget("cursor"))
	assert.True(t, ValidTarget("agents"))
	assert.False(t, ValidTarget("vscode"))
}

func TestRenderDelegates(t *testing.T) {
	skill := testSkill("code-review", `Review code for "quality" issues`)
	refPath := ".asr/skills/code-review"

	t.Run("cursor", func(t *testing.T) {
		content := string(renderCursor(skill, refPath))
		assert.Contains(t, content, "alwaysApply: false")
		assert.Contains(t, content, delegateSentinel)
		assert.Contains(t, content, "`.asr/skills/code-review/SKILL.md`")
		// Quotes in the description must not break the frontmatter.
		assert.Contains(t, content, `description: "Review code for \"quality\" issues"`)
	})

	t.Run("windsurf", func(t *testing.T) {
		content := string(renderWindsurf(skill, refPath))
		assert.Contains(t, content, "auto_execution_mode: 1")
		assert.Contains(t, content, "## Skill Location")
		assert.Contains(t, content, delegateSentinel)
	})

	t.Run("codex", func(t *testing.T) {
		content := string(renderCodex(skill, refPath))
		assert.Contains(t, content, "# code-review")
		assert.Contains(t, content, delegateSentinel)
	})
}

func TestResolveOutputDir(t *testing.T) {
	tests := []struct {
		name   string
		root   string
		subdir string
		want   string
	}{
		{
			name:   "plain project root",
			root:   "/work/proj",
			subdir: ".cursor/rules",
			want:   filepath.Join("/work/proj", ".cursor", "rules"),
		},
		{
			name:   "root already is the target dir",
			root:   "/work/proj/.cursor/rules",
			subdir: ".cursor/rules",
			want:   "/work/proj/.cursor/rules",
		},
		{
			name:   "root ends with the parent dir",
			root:   "/work/proj/.cursor",
			subdir: ".cursor/rules",
			want:   filepath.Join("/work/proj/.cursor", "rules"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveOutputDir(tt.root, tt.subdir))
		})
	}
}

func TestCleanupStale(t *testing.T) {
	dir := t.TempDir()

	generated := []byte("# old\n\nThis rule " + delegateSentinel + " `.asr/skills/old-skill/`.\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old-skill.mdc"), generated, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep-skill.mdc"), generated, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "handwritten.mdc"), []byte("my own rule"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), generated, 0o644))

	removed, err := cleanupStale(dir, ".mdc", map[string]bool{"keep-skill": true})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "old-skill.mdc")}, removed)

	// Hand-written files and non-delegate extensions survive.
	assert.FileExists(t, filepath.Join(dir, "keep-skill.mdc"))
	assert.FileExists(t, filepath.Join(dir, "handwritten.mdc"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestCleanupStaleMissingDir(t *testing.T) {
	removed, err := cleanupStale(filepath.Join(t.TempDir(), "nope"), ".mdc", nil)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestMergeAgentsContent(t *testing.T) {
	section := func(name, body string) string {
		return agentsBeginMarker(name) + "\n## " + name + "\n\n" + body + "\n" + agentsEndMarker(name) + "\n"
	}

	t.Run("appends to empty file", func(t *testing.T) {
		merged := mergeAgentsContent("", map[string]string{
			"code-review": section("code-review", "v1"),
		}, []string{"code-review"}, false)
		assert.Contains(t, merged, "# Agent Skills")
		assert.Contains(t, merged, agentsBeginMarker("code-review"))
	})

	t.Run("replaces managed section in place", func(t *testing.T) {
		existing := "# My Project\n\nHand-written intro.\n\n" +
			section("code-review", "v1") +
			"\nHand-written outro.\n"

		merged := mergeAgentsContent(existing, map[string]string{
			"code-review": section("code-review", "v2"),
		}, []string{"code-review"}, false)

		assert.Contains(t, merged, "Hand-written intro.")
		assert.Contains(t, merged, "Hand-written outro.")
		assert.Contains(t, merged, "v2")
		assert.NotContains(t, merged, "v1")
	})

	t.Run("keeps unknown sections without prune", func(t *testing.T) {
		existing := section("retired-skill", "old")
		merged := mergeAgentsContent(existing, map[string]string{}, nil, false)
		assert.Contains(t, merged, agentsBeginMarker("retired-skill"))
	})

	t.Run("prune drops unknown sections", func(t *testing.T) {
		existing := "intro\n\n" + section("retired-skill", "old")
		merged := mergeAgentsContent(existing, map[string]string{}, nil, true)
		assert.NotContains(t, merged, "retired-skill")
		assert.Contains(t, merged, "intro")
	})

	t.Run("appends new sections after existing content", func(t *testing.T) {
		existing := section("code-review", "v1")
		merged := mergeAgentsContent(existing, map[string]string{
			"code-review": section("code-review", "v1"),
			"new-skill":   section("new-skill", "fresh"),
		}, []string{"code-review", "new-skill"}, false)
		assert.Contains(t, merged, agentsBeginMarker("new-skill"))
		// The existing section appears exactly once.
		assert.Equal(t, 1, countOccurrences(merged, agentsBeginMarker("code-review")))
	})
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func TestSyncTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "references"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "SKILL.md"), []byte("manifest"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "references", "style.md"), []byte("style"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref"), 0o644))

	dest := filepath.Join(t.TempDir(), "clone")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "leftover.md"), []byte("old"), 0o644))

	require.NoError(t, SyncTree(src, dest))

	assert.FileExists(t, filepath.Join(dest, "SKILL.md"))
	assert.FileExists(t, filepath.Join(dest, "references", "style.md"))
	assert.NoFileExists(t, filepath.Join(dest, "leftover.md"))
	assert.NoDirExists(t, filepath.Join(dest, ".git"))
}
