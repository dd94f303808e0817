package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/adapters"
	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/registry"
	"github.com/asrlabs/asr/pkg/skills"
)

type usedSkill struct {
	Name string `json:"name"`
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

type useReport struct {
	Copied   int         `json:"copied"`
	Warnings int         `json:"warnings"`
	Skills   []usedSkill `json:"skills"`
}

var useCmd = &cobra.Command{
	Use:   "use <name|glob>...",
	Short: "Copy skills into a project",
	Long: `Copy registered skills into a target directory. Each copy is recorded as a
clone so 'asr sync' can refresh it when the source changes. Names may be
glob patterns matched against registered skill names.

Examples:
  asr use code-review
  asr use 'review-*' -d ./team-skills`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		outputDir, _ := cmd.Flags().GetString("dir")
		a := mustApp()
		defer a.Close()
		ctx := commandContext(cmd)

		names, warnings := matchSkillNames(a.reg, args)

		report := &useReport{Skills: []usedSkill{}, Warnings: len(warnings)}
		for _, w := range warnings {
			presenter.Warning(w)
		}

		for _, name := range names {
			entry, err := a.reg.Get(name)
			if err != nil {
				report.Warnings++
				presenter.Warning(fmt.Sprintf("Skill not found: %s", name))
				continue
			}

			srcDir, err := a.fetcher.Resolve(ctx, entry.Source)
			if err != nil {
				report.Warnings++
				presenter.Warning(fmt.Sprintf("Skill source unavailable: %s (%v)", name, err))
				continue
			}

			dest, err := filepath.Abs(filepath.Join(outputDir, name))
			if err != nil {
				presenter.Error(err, "Failed to resolve target directory")
				os.Exit(exitInternal)
			}

			if err := adapters.SyncTree(srcDir, dest); err != nil {
				report.Warnings++
				presenter.Warning(fmt.Sprintf("Failed to copy %s: %v", name, err))
				continue
			}

			digest, _, err := skills.HashTree(srcDir)
			if err == nil {
				err = a.tracker.RecordClone(name, dest, digest)
			}
			if err != nil {
				presenter.Error(err, "Failed to record clone")
				os.Exit(exitInternal)
			}

			report.Copied++
			report.Skills = append(report.Skills, usedSkill{Name: name, Src: srcDir, Dest: dest})
			presenter.Success(fmt.Sprintf("Copied: %s -> %s", name, dest))
		}

		if jsonOutput(cmd) {
			printJSON(report)
		} else if report.Copied > 0 && !presenter.IsQuiet() {
			presenter.Info(fmt.Sprintf("%d skill(s) copied to %s", report.Copied, outputDir))
		}

		if report.Warnings > 0 && report.Copied == 0 {
			os.Exit(exitItemErrors)
		}
	},
}

func init() {
	useCmd.Flags().StringP("dir", "d", ".", "Target directory")
	rootCmd.AddCommand(useCmd)
}

// matchSkillNames expands name arguments against the registry. Literal names
// pass through even when unregistered so the caller can report them; glob
// patterns that match nothing produce a warning.
func matchSkillNames(reg *registry.Registry, args []string) ([]string, []string) {
	var names, warnings []string
	seen := make(map[string]bool)

	for _, arg := range args {
		if !hasGlobMeta(arg) {
			if !seen[arg] {
				seen[arg] = true
				names = append(names, arg)
			}
			continue
		}

		matched := false
		for _, entry := range reg.List() {
			ok, err := doublestar.Match(arg, entry.Name)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid pattern %q: %v", arg, err))
				matched = true
				break
			}
			if ok && !seen[entry.Name] {
				seen[entry.Name] = true
				names = append(names, entry.Name)
				matched = true
			} else if ok {
				matched = true
			}
		}
		if !matched {
			warnings = append(warnings, fmt.Sprintf("No registered skills match %q", arg))
		}
	}
	return names, warnings
}
