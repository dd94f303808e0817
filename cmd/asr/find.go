package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/skills"
)

type foundSkill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

var findCmd = &cobra.Command{
	Use:   "find <root>",
	Short: "Find skills recursively",
	Long: `Recursively scan a directory tree for skill directories (directories
containing a SKILL.md). With --add every discovered skill is registered.

Examples:
  asr find ./skills
  asr find ./skills --add`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addFound, _ := cmd.Flags().GetBool("add")

		root := args[0]
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			presenter.Error(fmt.Errorf("not a directory: %s", root), "Invalid argument")
			os.Exit(exitUsage)
		}

		found, err := skills.FindSkills(root)
		if err != nil {
			presenter.Error(err, "Failed to scan for skills")
			os.Exit(exitInternal)
		}

		if jsonOutput(cmd) {
			items := make([]foundSkill, 0, len(found))
			for _, s := range found {
				items = append(items, foundSkill{Name: s.Name, Description: s.Description, Path: s.Directory})
			}
			printJSON(items)
		} else if len(found) == 0 {
			presenter.Info(fmt.Sprintf("No skills found under %s", root))
		} else {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, s := range found {
				fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Directory)
			}
			w.Flush()
		}

		if addFound && len(found) > 0 {
			a := mustApp()
			defer a.Close()

			added, updated := 0, 0
			for _, s := range found {
				isNew, ok := registerDiscovered(a, s)
				if !ok {
					continue
				}
				if isNew {
					added++
				} else {
					updated++
				}
			}
			if !jsonOutput(cmd) && !presenter.IsQuiet() {
				presenter.Info(fmt.Sprintf("Registered %d new skill(s), %d updated", added, updated))
			}
		}
	},
}

func init() {
	findCmd.Flags().Bool("add", false, "Register every discovered skill")
	rootCmd.AddCommand(findCmd)
}

// registerDiscovered registers a single discovered skill. Skills with names
// that are not valid kebab-case are skipped with a warning rather than
// polluting the registry. Returns whether the entry was new and whether it
// was registered at all.
func registerDiscovered(a *app, s *skills.Skill) (isNew, ok bool) {
	if !skills.IsKebabCase(s.Name) {
		presenter.Warning(fmt.Sprintf("Skipping %s: name is not kebab-case", s.Name))
		return false, false
	}
	source, err := skills.LocalSource(s.Directory)
	if err != nil {
		presenter.Warning(fmt.Sprintf("Skipping %s: %v", s.Name, err))
		return false, false
	}
	isNew, err = a.reg.Put(s.Name, source)
	if err != nil {
		presenter.Error(err, fmt.Sprintf("Failed to register %s", s.Name))
		os.Exit(exitInternal)
	}
	return isNew, true
}
