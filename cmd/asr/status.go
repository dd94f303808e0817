package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/fetch"
	"github.com/asrlabs/asr/pkg/manifest"
	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/skills"
)

type statusItem struct {
	Name    string          `json:"name"`
	Status  manifest.Status `json:"status"`
	Source  string          `json:"source"`
	Changed []string        `json:"changed_files,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status [names...]",
	Short: "Show skill drift status",
	Long: `Compare registered skills against their recorded snapshots and report each
as valid, modified, missing, or untracked. Without arguments all registered
skills are checked. Status never mutates any state.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()
		ctx := commandContext(cmd)

		entries := a.reg.List()
		if len(args) > 0 {
			names, warnings := matchSkillNames(a.reg, args)
			for _, w := range warnings {
				presenter.Warning(w)
			}
			entries = entries[:0]
			for _, name := range names {
				entry, err := a.reg.Get(name)
				if err != nil {
					presenter.Warning(fmt.Sprintf("Skill not found: %s", name))
					continue
				}
				entries = append(entries, entry)
			}
		}

		// Remote sources are fetched once up front through the bounded pool;
		// local sources resolve inline.
		remotes := make(map[string]*skills.RemoteSource)
		for _, entry := range entries {
			if entry.Source.IsRemote() {
				remotes[entry.Name] = entry.Source.Remote
			}
		}
		var prefetched map[string]fetch.Result
		if len(remotes) > 0 {
			prefetched, _ = a.fetcher.FetchAll(ctx, remotes)
		}

		items := make([]statusItem, 0, len(entries))
		counts := map[manifest.Status]int{}

		for _, entry := range entries {
			item := statusItem{Name: entry.Name, Source: entry.Source.String()}

			var dir string
			var err error
			if res, ok := prefetched[entry.Name]; ok {
				dir, err = res.Dir, res.Err
			} else {
				dir, err = a.fetcher.Resolve(ctx, entry.Source)
			}
			if err != nil {
				if !fetch.IsUnreachable(err) {
					presenter.Error(err, fmt.Sprintf("Failed to resolve %s", entry.Name))
					os.Exit(exitInternal)
				}
				item.Status = manifest.StatusMissing
			} else {
				c, err := a.tracker.Classify(entry.Name, dir)
				if err != nil {
					presenter.Error(err, fmt.Sprintf("Failed to classify %s", entry.Name))
					os.Exit(exitInternal)
				}
				item.Status = c.Status
				item.Changed = c.Changed
			}

			counts[item.Status]++
			items = append(items, item)
		}

		if jsonOutput(cmd) {
			printJSON(items)
			return
		}

		for _, item := range items {
			printStatusLine(item)
		}
		if !presenter.IsQuiet() {
			presenter.Info(fmt.Sprintf("\n%d valid, %d modified, %d missing, %d untracked",
				counts[manifest.StatusValid], counts[manifest.StatusModified],
				counts[manifest.StatusMissing], counts[manifest.StatusUntracked]))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatusLine(item statusItem) {
	switch item.Status {
	case manifest.StatusValid:
		presenter.Success(item.Name)
	case manifest.StatusUntracked:
		presenter.Info(fmt.Sprintf("? %s (untracked, run 'asr sync' to snapshot)", item.Name))
	case manifest.StatusMissing:
		presenter.Warning(fmt.Sprintf("%s (source missing)", item.Name))
	case manifest.StatusModified:
		presenter.Warning(fmt.Sprintf("%s (modified)", item.Name))
		limit := len(item.Changed)
		if limit > 5 {
			limit = 5
		}
		for _, path := range item.Changed[:limit] {
			presenter.Info(fmt.Sprintf("    ~ %s", path))
		}
		if len(item.Changed) > limit {
			presenter.Info(fmt.Sprintf("    ... and %d more", len(item.Changed)-limit))
		}
	}
}
