package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/presenter"
)

type listItem struct {
	Name         string `json:"name"`
	Source       string `json:"source"`
	Kind         string `json:"kind"`
	RegisteredAt string `json:"registered_at"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered skills",
	Long:  `List all registered skills with their names and source descriptors.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		a := mustApp()
		defer a.Close()

		entries := a.reg.List()

		if jsonOutput(cmd) {
			items := make([]listItem, 0, len(entries))
			for _, entry := range entries {
				items = append(items, listItem{
					Name:         entry.Name,
					Source:       entry.Source.String(),
					Kind:         string(entry.Source.Kind),
					RegisteredAt: entry.RegisteredAt.Format("2006-01-02T15:04:05Z07:00"),
				})
			}
			printJSON(items)
			return
		}

		if len(entries) == 0 {
			presenter.Info("No skills registered. Use 'asr add <path>' to register a skill.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tSOURCE")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Name, entry.Source.Kind, entry.Source.String())
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
