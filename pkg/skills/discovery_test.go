package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, name, description string) string {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n\n# " + name + "\n\nInstructions here.\n"
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, ManifestFileName), []byte(content), 0o644))
	return skillDir
}

func TestLoadSkill(t *testing.T) {
	tmpDir := t.TempDir()
	skillDir := writeSkill(t, tmpDir, "test-skill", "A test skill")

	skill, err := LoadSkill(skillDir)
	require.NoError(t, err)
	assert.Equal(t, "test-skill", skill.Name)
	assert.Equal(t, "A test skill", skill.Description)
	assert.Equal(t, skillDir, skill.Directory)
	assert.Contains(t, skill.Content, "# test-skill")
	assert.NotContains(t, skill.Content, "description:")
}

func TestLoadSkillErrors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		_, err := LoadSkill(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("missing frontmatter", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte("# Just a heading\n"), 0o644))
		_, err := LoadSkill(dir)
		assert.Error(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		dir := t.TempDir()
		content := "---\ndescription: no name here\n---\n\nbody\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(content), 0o644))
		_, err := LoadSkill(dir)
		assert.Error(t, err)
	})

	t.Run("missing description", func(t *testing.T) {
		dir := t.TempDir()
		content := "---\nname: a-skill\n---\n\nbody\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(content), 0o644))
		_, err := LoadSkill(dir)
		assert.Error(t, err)
	})
}

func TestFindSkills(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "zulu-skill", "Last alphabetically")
	writeSkill(t, filepath.Join(tmpDir, "nested"), "alpha-skill", "First alphabetically")

	// Broken skill dirs are skipped, not fatal.
	brokenDir := filepath.Join(tmpDir, "broken")
	require.NoError(t, os.MkdirAll(brokenDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(brokenDir, ManifestFileName), []byte("no frontmatter"), 0o644))

	// Skills under .git are ignored.
	writeSkill(t, filepath.Join(tmpDir, ".git"), "hidden-skill", "Should not appear")

	found, err := FindSkills(tmpDir)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "alpha-skill", found[0].Name)
	assert.Equal(t, "zulu-skill", found[1].Name)
}

func TestFindSkillDirs(t *testing.T) {
	tmpDir := t.TempDir()
	skillDir := writeSkill(t, tmpDir, "only-skill", "The only one")
	writeSkill(t, filepath.Join(tmpDir, "node_modules"), "dep-skill", "Ignored")

	dirs, err := FindSkillDirs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{skillDir}, dirs)
}

func TestParseFrontmatter(t *testing.T) {
	metaData, err := ParseFrontmatter([]byte("---\nname: x\ndescription: y\nextra: 42\n---\n\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, "x", metaData["name"])
	assert.Equal(t, "y", metaData["description"])
	assert.Equal(t, 42, metaData["extra"])

	_, err = ParseFrontmatter([]byte("plain markdown\n"))
	assert.Error(t, err)
}

func TestDecodeMetadata(t *testing.T) {
	m, err := DecodeMetadata([]byte("---\nname: x\ndescription: y\n---\n\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, "x", m.Name)
	assert.Equal(t, "y", m.Description)

	_, err = DecodeMetadata([]byte("plain markdown\n"))
	assert.Error(t, err)

	_, err = DecodeMetadata([]byte("---\nname: [unterminated\n---\n"))
	assert.Error(t, err)
}
