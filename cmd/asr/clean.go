package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/fetch"
	"github.com/asrlabs/asr/pkg/presenter"
)

type cleanCandidate struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Source string `json:"source,omitempty"`
}

type cleanReport struct {
	Skills    []cleanCandidate `json:"skills_to_remove"`
	Manifests []cleanCandidate `json:"manifests_to_remove"`
	DryRun    bool             `json:"dry_run,omitempty"`
	Removed   bool             `json:"removed"`
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove dead registry entries and orphaned state",
	Long: `Remove registered skills whose source no longer exists, plus snapshot and
clone records that no longer correspond to any registered skill. Prompts for
confirmation unless --yes is given; --dry-run only reports.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a := mustApp()
		defer a.Close()
		ctx := commandContext(cmd)

		report := &cleanReport{
			Skills:    []cleanCandidate{},
			Manifests: []cleanCandidate{},
			DryRun:    dryRun,
		}

		registered := make(map[string]bool)
		for _, entry := range a.reg.List() {
			registered[entry.Name] = true

			// Probe checks reachability without materializing remote content.
			if err := a.fetcher.Probe(ctx, entry.Source); err != nil {
				if !fetch.IsUnreachable(err) {
					presenter.Error(err, fmt.Sprintf("Failed to probe %s", entry.Name))
					os.Exit(exitInternal)
				}
				report.Skills = append(report.Skills, cleanCandidate{
					Name:   entry.Name,
					Reason: "source missing",
					Source: entry.Source.String(),
				})
			}
		}

		tracked, err := a.tracker.List()
		if err != nil {
			presenter.Error(err, "Failed to list manifests")
			os.Exit(exitInternal)
		}
		for _, name := range tracked {
			if !registered[name] {
				report.Manifests = append(report.Manifests, cleanCandidate{
					Name:   name,
					Reason: "orphaned manifest (not in registry)",
				})
			}
		}

		if len(report.Skills) == 0 && len(report.Manifests) == 0 {
			if jsonOutput(cmd) {
				printJSON(report)
			} else {
				presenter.Info("Nothing to clean.")
			}
			return
		}

		if !jsonOutput(cmd) {
			presenter.Section("The following will be cleaned")
			for _, c := range report.Skills {
				presenter.Warning(fmt.Sprintf("%s (%s)", c.Name, c.Source))
			}
			for _, c := range report.Manifests {
				presenter.Warning(fmt.Sprintf("%s: %s", c.Name, c.Reason))
			}
		}

		if dryRun {
			if jsonOutput(cmd) {
				printJSON(report)
			} else {
				presenter.Info("(dry run, no changes made)")
			}
			return
		}

		if !yes {
			answer := presenter.Prompt("Proceed with cleanup? [y/N]")
			if answer := strings.ToLower(strings.TrimSpace(answer)); answer != "y" && answer != "yes" {
				presenter.Info("Aborted.")
				os.Exit(exitItemErrors)
			}
		}

		for _, c := range report.Skills {
			if _, err := a.reg.Remove(c.Name); err != nil {
				presenter.Error(err, fmt.Sprintf("Failed to remove %s", c.Name))
				os.Exit(exitInternal)
			}
			if err := a.tracker.Remove(c.Name); err != nil {
				presenter.Error(err, fmt.Sprintf("Failed to remove state for %s", c.Name))
				os.Exit(exitInternal)
			}
			presenter.Success(fmt.Sprintf("Removed skill: %s", c.Name))
		}
		for _, c := range report.Manifests {
			if err := a.tracker.Remove(c.Name); err != nil {
				presenter.Error(err, fmt.Sprintf("Failed to remove manifest for %s", c.Name))
				os.Exit(exitInternal)
			}
			presenter.Success(fmt.Sprintf("Removed manifest: %s", c.Name))
		}

		report.Removed = true
		if jsonOutput(cmd) {
			printJSON(report)
		} else if !presenter.IsQuiet() {
			presenter.Info(fmt.Sprintf("Cleaned %d skill(s), %d manifest(s)",
				len(report.Skills), len(report.Manifests)))
		}
	},
}

func init() {
	cleanCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().Bool("dry-run", false, "Report what would be cleaned without doing it")
	rootCmd.AddCommand(cleanCmd)
}
