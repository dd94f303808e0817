package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/adapters"
	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/skills"
)

var adapterCmd = &cobra.Command{
	Use:   "adapter [target]",
	Short: "Generate editor delegate files",
	Long: fmt.Sprintf(`Generate editor-specific delegate files for all registered skills. Skill
content is materialized under <output-dir>/.asr/skills/ and each target writes
thin delegates pointing at it. Without an argument the configured default
targets are generated.

Known targets: %s.

Examples:
  asr adapter
  asr adapter cursor --output-dir ./project
  asr adapter agents --prune --exclude experimental-skill`, strings.Join(adapters.KnownTargets(), ", ")),
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		outputDir, _ := cmd.Flags().GetString("output-dir")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		prune, _ := cmd.Flags().GetBool("prune")

		a := mustApp()
		defer a.Close()

		targets := a.cfg.Adapter.DefaultTargets
		if len(args) == 1 {
			targets = []string{args[0]}
		}
		for _, target := range targets {
			if !adapters.ValidTarget(target) {
				presenter.Error(fmt.Errorf("unknown adapter target %q (known: %s)",
					target, strings.Join(adapters.KnownTargets(), ", ")), "Invalid target")
				os.Exit(exitUsage)
			}
		}

		entries := a.reg.List()
		if len(entries) == 0 {
			presenter.Info("No skills registered. Use 'asr add <path>' first.")
			os.Exit(exitItemErrors)
		}

		// Warm the fetch cache concurrently; Generate then resolves remote
		// entries from the memoized clones. Per-entry errors surface there.
		remotes := make(map[string]*skills.RemoteSource)
		for _, entry := range entries {
			if entry.Source.IsRemote() {
				remotes[entry.Name] = entry.Source.Remote
			}
		}
		if len(remotes) > 0 {
			_, _ = a.fetcher.FetchAll(commandContext(cmd), remotes)
		}

		generator := adapters.NewGenerator(a.fetcher, a.tracker)
		report, err := generator.Generate(commandContext(cmd), entries, adapters.Options{
			OutputRoot: outputDir,
			Targets:    targets,
			Exclude:    exclude,
			Prune:      prune,
		})
		if report == nil {
			presenter.Error(err, "Adapter generation failed")
			os.Exit(exitInternal)
		}

		if jsonOutput(cmd) {
			printJSON(report)
		} else {
			for _, path := range report.Generated {
				presenter.Success(fmt.Sprintf("Generated %s", path))
			}
			for _, path := range report.Removed {
				presenter.Info(fmt.Sprintf("Removed stale %s", path))
			}
			for _, name := range report.Failed {
				presenter.Warning(fmt.Sprintf("Skipped %s", name))
			}
		}

		if err != nil {
			os.Exit(exitItemErrors)
		}
	},
}

func init() {
	adapterCmd.Flags().String("output-dir", ".", "Project root to generate into")
	adapterCmd.Flags().StringSlice("exclude", nil, "Skill names to exclude")
	adapterCmd.Flags().Bool("prune", false, "Remove stale generated files and sections")
	rootCmd.AddCommand(adapterCmd)
}
