package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/presenter"
)

type removeReport struct {
	Removed int      `json:"removed"`
	Skills  []string `json:"skills"`
}

var rmCmd = &cobra.Command{
	Use:   "rm <name|path>",
	Short: "Unregister a skill",
	Long: `Unregister a skill by name. With --recursive the argument is treated as a
directory and every registered skill whose source lives under it is removed.
Skill directories on disk are never touched; snapshot and clone records for
removed skills are deleted.

Examples:
  asr rm code-review
  asr rm -r ./skills`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recursive, _ := cmd.Flags().GetBool("recursive")
		a := mustApp()
		defer a.Close()

		report := &removeReport{Skills: []string{}}
		if recursive {
			removeRecursive(a, args[0], report)
		} else {
			removeOne(a, args[0], report)
		}

		if jsonOutput(cmd) {
			printJSON(report)
		} else if !presenter.IsQuiet() {
			presenter.Info(fmt.Sprintf("%d skill(s) removed", report.Removed))
		}

		if report.Removed == 0 && !recursive {
			os.Exit(exitItemErrors)
		}
	},
}

func init() {
	rmCmd.Flags().BoolP("recursive", "r", false, "Remove every registered skill under the given directory")
	rootCmd.AddCommand(rmCmd)
}

func removeOne(a *app, name string, report *removeReport) {
	removed, err := a.reg.Remove(name)
	if err != nil {
		presenter.Error(err, "Failed to remove skill")
		os.Exit(exitInternal)
	}
	if !removed {
		presenter.Warning(fmt.Sprintf("Not found: %s", name))
		return
	}
	if err := a.tracker.Remove(name); err != nil {
		presenter.Error(err, "Failed to remove manifest state")
		os.Exit(exitInternal)
	}

	report.Removed++
	report.Skills = append(report.Skills, name)
	presenter.Success(fmt.Sprintf("Removed: %s", name))
}

func removeRecursive(a *app, root string, report *removeReport) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		presenter.Error(fmt.Errorf("not a directory: %s", root), "Invalid argument")
		os.Exit(exitUsage)
	}

	entries := a.reg.FindByPathPrefix(root)
	if len(entries) == 0 {
		presenter.Warning(fmt.Sprintf("No registered skills found under %s", root))
		return
	}
	for _, entry := range entries {
		removeOne(a, entry.Name, report)
	}
}
