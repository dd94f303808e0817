// Package validate checks a skill directory's manifest and shape, producing
// ordered structured diagnostics without mutating anything. Rules are
// evaluated independently and collected rather than short-circuited; only a
// missing or unparsable manifest gates the checks that depend on it.
package validate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/asrlabs/asr/pkg/skills"
)

// Severity levels for diagnostics
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Diagnostic codes
const (
	CodeMissingManifest  = "E001"
	CodeBadFrontmatter   = "E002"
	CodeMissingName      = "E003"
	CodeMissingDesc      = "E004"
	CodeNameNotKebab     = "E005"
	CodeEmptyDesc        = "W001"
	CodeDirNameMismatch  = "W002"
	CodeUnsafePath       = "W003"
	CodeScriptsOnly      = "W004"
	CodeZeroByteFile     = "W005"
	CodeUnpairedScript   = "W006"
	CodeReferenceTooLong = "W007"
)

// DefaultRefMaxLines is the default line-count threshold for reference files.
const DefaultRefMaxLines = 500

// Diagnostic is a single validation finding. It is a pure function of skill
// content and is never persisted.
type Diagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Skill    string `json:"skill"`
}

// Result holds all diagnostics for one skill, most severe first.
type Result struct {
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Errors returns the error-severity diagnostics.
func (r Result) Errors() []Diagnostic {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity diagnostics.
func (r Result) Warnings() []Diagnostic {
	return r.filter(SeverityWarning)
}

func (r Result) filter(severity string) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == severity {
			out = append(out, d)
		}
	}
	return out
}

// OK reports pass/fail. In strict mode warnings fail too; info-level
// diagnostics never fail a run. Recorded severities are unchanged by strict.
func (r Result) OK(strict bool) bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return false
		}
		if strict && d.Severity == SeverityWarning {
			return false
		}
	}
	return true
}

// Options configures a validation pass.
type Options struct {
	// ReferenceMaxLines is the line-count threshold for files under
	// references/. Zero means DefaultRefMaxLines.
	ReferenceMaxLines int
	// RemoteDerived suppresses the directory-basename check for skills whose
	// directory naming is derived from a remote fetch rather than authored.
	RemoteDerived bool
}

type checker struct {
	dir  string
	name string
	opts Options
	diag []Diagnostic
}

// Skill validates the skill directory at dir and returns its diagnostics
// ordered most severe first.
func Skill(dir string, opts Options) Result {
	if opts.ReferenceMaxLines <= 0 {
		opts.ReferenceMaxLines = DefaultRefMaxLines
	}

	c := &checker{dir: dir, name: filepath.Base(dir), opts: opts}

	manifestPath := filepath.Join(dir, skills.ManifestFileName)
	content, err := os.ReadFile(manifestPath)
	if err != nil {
		c.add(CodeMissingManifest, SeverityError, "missing "+skills.ManifestFileName)
		return c.result()
	}

	c.checkFrontmatter(content)
	c.checkPathCharacters()
	c.checkScriptsOnly()
	c.checkZeroByteFiles()
	c.checkScriptPairs()
	c.checkReferenceLength()

	return c.result()
}

func (c *checker) add(code, severity, message string) {
	c.diag = append(c.diag, Diagnostic{
		Code:     code,
		Severity: severity,
		Message:  message,
		Skill:    c.name,
	})
}

func (c *checker) result() Result {
	rank := map[string]int{SeverityError: 0, SeverityWarning: 1, SeverityInfo: 2}
	sort.SliceStable(c.diag, func(i, j int) bool {
		return rank[c.diag[i].Severity] < rank[c.diag[j].Severity]
	})
	for i := range c.diag {
		c.diag[i].Skill = c.name
	}
	return Result{Name: c.name, Path: c.dir, Diagnostics: c.diag}
}

func (c *checker) checkFrontmatter(content []byte) {
	metaData, err := skills.ParseFrontmatter(content)
	if err != nil {
		c.add(CodeBadFrontmatter, SeverityError, "frontmatter does not parse as YAML key-value data")
		return
	}

	name, _ := metaData["name"].(string)
	if name == "" {
		c.add(CodeMissingName, SeverityError, "frontmatter is missing required field 'name'")
	} else {
		c.name = name
		if !skills.IsKebabCase(name) {
			c.add(CodeNameNotKebab, SeverityError, fmt.Sprintf("name %q is not kebab-case", name))
		}
		if !c.opts.RemoteDerived && filepath.Base(c.dir) != name {
			c.add(CodeDirNameMismatch, SeverityWarning,
				fmt.Sprintf("directory name %q does not match skill name %q", filepath.Base(c.dir), name))
		}
	}

	if desc, ok := metaData["description"]; !ok || desc == nil {
		c.add(CodeMissingDesc, SeverityError, "frontmatter is missing required field 'description'")
	} else if s, _ := desc.(string); strings.TrimSpace(s) == "" {
		c.add(CodeEmptyDesc, SeverityWarning, "description is empty")
	}
}

const safePathChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-/\\:"

func (c *checker) checkPathCharacters() {
	for _, r := range c.dir {
		if !strings.ContainsRune(safePathChars, r) {
			c.add(CodeUnsafePath, SeverityWarning,
				"path contains whitespace or special characters: "+c.dir)
			return
		}
	}
}

func (c *checker) checkScriptsOnly() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	hasScripts := false
	for _, entry := range entries {
		switch entry.Name() {
		case skills.ManifestFileName:
		case "scripts":
			hasScripts = entry.IsDir()
		default:
			return
		}
	}

	if hasScripts {
		c.add(CodeScriptsOnly, SeverityWarning, "skill contains only a scripts/ directory")
	}
}

var contentSubdirs = []string{"references", "assets", "scripts"}

func (c *checker) checkZeroByteFiles() {
	for _, subdir := range contentSubdirs {
		root := filepath.Join(c.dir, subdir)
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if info.Size() == 0 {
				rel, _ := filepath.Rel(c.dir, path)
				c.add(CodeZeroByteFile, SeverityWarning, "zero-byte file: "+filepath.ToSlash(rel))
			}
			return nil
		})
	}
}

func (c *checker) checkScriptPairs() {
	scriptsDir := filepath.Join(c.dir, "scripts")
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		return
	}

	stems := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".sh" && ext != ".ps1" {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ext)
		if stems[stem] == nil {
			stems[stem] = map[string]bool{}
		}
		stems[stem][ext] = true
	}

	var ordered []string
	for stem := range stems {
		ordered = append(ordered, stem)
	}
	sort.Strings(ordered)

	for _, stem := range ordered {
		exts := stems[stem]
		switch {
		case exts[".sh"] && !exts[".ps1"]:
			c.add(CodeUnpairedScript, SeverityWarning, "scripts/"+stem+".sh has no .ps1 counterpart")
		case exts[".ps1"] && !exts[".sh"]:
			c.add(CodeUnpairedScript, SeverityWarning, "scripts/"+stem+".ps1 has no .sh counterpart")
		}
	}
}

func (c *checker) checkReferenceLength() {
	root := filepath.Join(c.dir, "references")
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		lines, err := countLines(path)
		if err != nil {
			return nil
		}
		if lines > c.opts.ReferenceMaxLines {
			rel, _ := filepath.Rel(c.dir, path)
			c.add(CodeReferenceTooLong, SeverityWarning,
				fmt.Sprintf("%s exceeds %d lines (%d)", filepath.ToSlash(rel), c.opts.ReferenceMaxLines, lines))
		}
		return nil
	})
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
