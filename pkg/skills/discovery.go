package skills

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// ParseFrontmatter extracts the YAML frontmatter block from SKILL.md content.
// It returns the raw metadata map so callers can distinguish a missing field
// from an unparsable block.
func ParseFrontmatter(content []byte) (map[string]interface{}, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}

	return metaData, nil
}

// LoadSkill loads a skill from its directory, parsing the SKILL.md
// frontmatter. Name and description are required.
func LoadSkill(dir string) (*Skill, error) {
	content, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	m, err := DecodeMetadata(content)
	if err != nil {
		return nil, err
	}

	if m.Name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if m.Description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	return &Skill{
		Name:        m.Name,
		Description: m.Description,
		Directory:   dir,
		Content:     extractBodyContent(string(content)),
	}, nil
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}

// FindSkills recursively discovers loadable skills under root. Directories
// whose SKILL.md fails to parse are skipped; use the validate package to
// diagnose those. Results are ordered by skill name.
func FindSkills(root string) ([]*Skill, error) {
	dirs, err := FindSkillDirs(root)
	if err != nil {
		return nil, err
	}

	var found []*Skill
	for _, dir := range dirs {
		skill, err := LoadSkill(dir)
		if err != nil {
			continue
		}
		found = append(found, skill)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// FindSkillDirs returns every directory under root containing a SKILL.md,
// skipping version control and dependency directories.
func FindSkillDirs(root string) ([]string, error) {
	var skillDirs []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && (info.Name() == ".git" || info.Name() == "node_modules") {
			return filepath.SkipDir
		}

		if !info.IsDir() && info.Name() == ManifestFileName {
			skillDirs = append(skillDirs, filepath.Dir(path))
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	return skillDirs, nil
}
