package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/skills"
	"github.com/asrlabs/asr/pkg/validate"
)

type AddConfig struct {
	Recursive bool
	Strict    bool
}

func getAddConfigFromFlags(cmd *cobra.Command) *AddConfig {
	config := &AddConfig{}
	if recursive, err := cmd.Flags().GetBool("recursive"); err == nil {
		config.Recursive = recursive
	}
	if strict, err := cmd.Flags().GetBool("strict"); err == nil {
		config.Strict = strict
	}
	return config
}

type addItem struct {
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
	Added  bool   `json:"added"`
	New    bool   `json:"new,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type addReport struct {
	Added   int       `json:"added"`
	Skipped int       `json:"skipped"`
	Skills  []addItem `json:"skills"`
}

var addCmd = &cobra.Command{
	Use:   "add <path|url>...",
	Short: "Register skills",
	Long: `Register one or more skills in the registry. Each argument is a local
directory containing a SKILL.md, a glob pattern matching such directories, or
a repository tree URL:

  https://github.com/{owner}/{repo}/tree/{ref}/{subpath}
  https://gitlab.com/{owner}/{repo}/tree/{ref}/{subpath}

Remote skills are fetched, validated, and registered by descriptor; their
content is materialized on demand.

Examples:
  asr add ./skills/code-review
  asr add './skills/*' --strict
  asr add -r ./skills
  asr add https://github.com/acme/skills/tree/main/skills/code-review`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getAddConfigFromFlags(cmd)
		a := mustApp()
		defer a.Close()

		report := &addReport{Skills: []addItem{}}
		for _, raw := range args {
			addSource(commandContext(cmd), a, raw, config, report)
		}

		if jsonOutput(cmd) {
			printJSON(report)
		} else if !presenter.IsQuiet() {
			presenter.Info(fmt.Sprintf("%d skill(s) added, %d skipped", report.Added, report.Skipped))
		}

		if report.Skipped > 0 {
			os.Exit(exitItemErrors)
		}
	},
}

func init() {
	addCmd.Flags().BoolP("recursive", "r", false, "Recursively register every skill found under the given directories")
	addCmd.Flags().Bool("strict", false, "Refuse skills with validation warnings")
	rootCmd.AddCommand(addCmd)
}

func addSource(ctx context.Context, a *app, raw string, config *AddConfig, report *addReport) {
	if skills.IsRemoteRef(raw) {
		addRemote(ctx, a, raw, config, report)
		return
	}

	paths, err := expandPathPattern(raw)
	if err != nil {
		report.skip(addItem{Source: raw, Reason: err.Error()})
		return
	}

	for _, path := range paths {
		if config.Recursive {
			dirs, err := skills.FindSkillDirs(path)
			if err != nil {
				report.skip(addItem{Source: path, Reason: err.Error()})
				continue
			}
			if len(dirs) == 0 {
				presenter.Warning(fmt.Sprintf("No skills found under %s", path))
				continue
			}
			for _, dir := range dirs {
				addLocal(a, dir, config, report)
			}
			continue
		}
		addLocal(a, path, config, report)
	}
}

func addLocal(a *app, dir string, config *AddConfig, report *addReport) {
	source, err := skills.LocalSource(dir)
	if err != nil {
		report.skip(addItem{Source: dir, Reason: err.Error()})
		return
	}

	item := registerSkill(a, source, source.Path, false, config.Strict)
	report.record(item)
}

func addRemote(ctx context.Context, a *app, raw string, config *AddConfig, report *addReport) {
	source, err := skills.ParseSource(raw)
	if err != nil {
		report.skip(addItem{Source: raw, Reason: err.Error()})
		return
	}

	dir, err := a.fetcher.Resolve(ctx, source)
	if err != nil {
		report.skip(addItem{Source: source.String(), Reason: err.Error()})
		return
	}

	item := registerSkill(a, source, dir, true, config.Strict)
	report.record(item)
}

// registerSkill validates the skill material at dir and registers source
// under the skill's manifest name.
func registerSkill(a *app, source skills.Source, dir string, remoteDerived, strict bool) addItem {
	item := addItem{Source: source.String()}

	result := validate.Skill(dir, validate.Options{
		ReferenceMaxLines: a.cfg.Validation.ReferenceMaxLines,
		RemoteDerived:     remoteDerived,
	})
	item.Name = result.Name

	if len(result.Errors()) > 0 {
		item.Reason = "validation errors"
		printDiagnostics(result)
		return item
	}
	if strict && len(result.Warnings()) > 0 {
		item.Reason = "validation warnings (strict mode)"
		printDiagnostics(result)
		return item
	}

	skill, err := skills.LoadSkill(dir)
	if err != nil {
		item.Reason = err.Error()
		return item
	}
	item.Name = skill.Name

	// Strict mode refuses to silently re-point a name at a different source.
	put := a.reg.Put
	if strict {
		put = a.reg.PutStrict
	}
	isNew, err := put(skill.Name, source)
	if err != nil {
		item.Reason = err.Error()
		return item
	}

	item.Added = true
	item.New = isNew
	action := "Updated"
	if isNew {
		action = "Added"
	}
	presenter.Success(fmt.Sprintf("%s skill: %s", action, skill.Name))
	return item
}

func (r *addReport) record(item addItem) {
	r.Skills = append(r.Skills, item)
	if item.Added {
		r.Added++
	} else {
		r.Skipped++
	}
}

func (r *addReport) skip(item addItem) {
	presenter.Warning(fmt.Sprintf("Skipping %s: %s", item.Source, item.Reason))
	r.record(item)
}

// expandPathPattern resolves a literal path or a glob pattern to a list of
// directories. A literal path is returned as-is so a missing directory still
// surfaces a per-item validation error downstream.
func expandPathPattern(raw string) ([]string, error) {
	if !hasGlobMeta(raw) {
		return []string{raw}, nil
	}

	matches, err := doublestar.FilepathGlob(raw)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no matches for pattern %q", raw)
	}

	var dirs []string
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && info.IsDir() {
			dirs = append(dirs, match)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no directories match pattern %q", raw)
	}
	return dirs, nil
}

func hasGlobMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
