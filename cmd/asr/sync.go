package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/manifest"
	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync [names...]",
	Short: "Reconcile skills with their snapshots",
	Long: `Snapshot untracked and modified skills, refresh recorded clones, and
report drift. Skills whose source is gone are removed from the registry only
with --prune. --registry-only skips clone refresh entirely.

Examples:
  asr sync
  asr sync code-review
  asr sync --prune --registry-only`,
	Run: func(cmd *cobra.Command, args []string) {
		prune, _ := cmd.Flags().GetBool("prune")
		registryOnly, _ := cmd.Flags().GetBool("registry-only")

		a := mustApp()
		defer a.Close()

		names, warnings := matchSkillNames(a.reg, args)
		for _, w := range warnings {
			presenter.Warning(w)
		}

		s := syncer.New(a.reg, a.tracker, a.fetcher)
		report, runErr := s.Run(commandContext(cmd), syncer.Options{
			Names:        names,
			Prune:        prune,
			RegistryOnly: registryOnly,
		})
		if report == nil {
			presenter.Error(runErr, "Sync failed")
			os.Exit(exitInternal)
		}

		if jsonOutput(cmd) {
			printJSON(report)
		} else {
			for _, item := range report.Items {
				printSyncLine(item)
			}
			if !presenter.IsQuiet() {
				counts := report.Counts()
				presenter.Info(fmt.Sprintf("\n%d snapshotted, %d refreshed, %d pruned, %d unchanged",
					counts[syncer.ActionSnapshotted], counts[syncer.ActionCloneRefreshed],
					counts[syncer.ActionPruned], counts[syncer.ActionNone]))
			}
		}

		if runErr != nil {
			os.Exit(exitItemErrors)
		}
	},
}

func init() {
	syncCmd.Flags().Bool("prune", false, "Remove skills whose source is missing")
	syncCmd.Flags().Bool("registry-only", false, "Skip clone refresh")
	rootCmd.AddCommand(syncCmd)
}

func printSyncLine(item syncer.ItemReport) {
	if item.Err != "" {
		presenter.Error(fmt.Errorf("%s", item.Err), item.Name)
		return
	}

	switch item.Action {
	case syncer.ActionSnapshotted:
		presenter.Success(fmt.Sprintf("%s: snapshotted", item.Name))
	case syncer.ActionPruned:
		presenter.Warning(fmt.Sprintf("%s: source missing (pruned)", item.Name))
	case syncer.ActionCloneRefreshed:
		presenter.Success(fmt.Sprintf("%s: refreshed %d clone(s)", item.Name, item.Clones))
	default:
		switch item.Status {
		case manifest.StatusMissing:
			presenter.Warning(fmt.Sprintf("%s: source missing (use --prune to remove)", item.Name))
		default:
			presenter.Info(fmt.Sprintf("%s: up to date", item.Name))
		}
	}
}
