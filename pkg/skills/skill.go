// Package skills provides the core data model for agent skills: a skill is a
// directory containing a SKILL.md file with YAML frontmatter (name,
// description) plus optional references/, assets/, and scripts/
// subdirectories. The package handles frontmatter parsing, recursive
// discovery, source descriptors (local path or remote repository
// coordinates), and deterministic content hashing.
package skills

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the per-skill manifest file expected at the root of
// every skill directory.
const ManifestFileName = "SKILL.md"

// Skill represents a discovered skill with its metadata
type Skill struct {
	Name        string // Unique name from frontmatter
	Description string // Brief description from frontmatter
	Directory   string // Full path to the skill directory
	Content     string // Body of SKILL.md with the frontmatter stripped
}

// Metadata represents the YAML frontmatter in SKILL.md files
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// DecodeMetadata parses the frontmatter block of SKILL.md content into
// typed metadata. Unlike ParseFrontmatter it does not process the markdown
// body, so callers that only need name and description avoid a full parse.
func DecodeMetadata(content []byte) (Metadata, error) {
	var m Metadata
	block, ok := frontmatterBlock(string(content))
	if !ok {
		return m, errors.New("missing frontmatter")
	}
	if err := yaml.Unmarshal([]byte(block), &m); err != nil {
		return m, errors.Wrap(err, "failed to parse frontmatter")
	}
	return m, nil
}

// frontmatterBlock returns the YAML between the leading --- fences.
func frontmatterBlock(content string) (string, bool) {
	if !strings.HasPrefix(content, "---") {
		return "", false
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), true
		}
	}
	return "", false
}

var kebabCaseRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// IsKebabCase reports whether name consists of lowercase ASCII letters and
// digits separated by single hyphens, with no leading, trailing, or double
// hyphens.
func IsKebabCase(name string) bool {
	return kebabCaseRe.MatchString(name)
}
