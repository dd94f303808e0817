package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate skill structure",
	Long: `Validate a skill directory against the structural rules: SKILL.md presence,
frontmatter fields, kebab-case naming, layout conventions. With --all every
registered skill is validated instead.

Exit status is 1 when any skill has errors, or warnings in strict mode.

Examples:
  asr validate ./skills/code-review
  asr validate --all --strict`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		validateAll, _ := cmd.Flags().GetBool("all")
		strict, _ := cmd.Flags().GetBool("strict")

		a := mustApp()
		defer a.Close()
		ctx := commandContext(cmd)
		strict = strict || a.cfg.Validation.Strict

		opts := validate.Options{ReferenceMaxLines: a.cfg.Validation.ReferenceMaxLines}

		var results []validate.Result
		switch {
		case validateAll:
			for _, entry := range a.reg.List() {
				entryOpts := opts
				entryOpts.RemoteDerived = entry.Source.IsRemote()

				dir, err := a.fetcher.Resolve(ctx, entry.Source)
				if err != nil {
					results = append(results, validate.Result{
						Name: entry.Name,
						Diagnostics: []validate.Diagnostic{{
							Code:     validate.CodeMissingManifest,
							Severity: validate.SeverityError,
							Message:  fmt.Sprintf("source unavailable: %v", err),
							Skill:    entry.Name,
						}},
					})
					continue
				}
				result := validate.Skill(dir, entryOpts)
				result.Name = entry.Name
				results = append(results, result)
			}
		case len(args) == 1:
			results = append(results, validate.Skill(args[0], opts))
		default:
			presenter.Error(fmt.Errorf("specify a path or use --all"), "Invalid arguments")
			os.Exit(exitUsage)
		}

		if jsonOutput(cmd) {
			printJSON(results)
		} else {
			for _, result := range results {
				printDiagnostics(result)
			}
		}

		totalErrors, totalWarnings := 0, 0
		for _, result := range results {
			totalErrors += len(result.Errors())
			totalWarnings += len(result.Warnings())
		}
		if !jsonOutput(cmd) && !presenter.IsQuiet() {
			presenter.Info(fmt.Sprintf("%d skill(s) validated: %d error(s), %d warning(s)",
				len(results), totalErrors, totalWarnings))
		}

		if totalErrors > 0 || (strict && totalWarnings > 0) {
			os.Exit(exitItemErrors)
		}
	},
}

func init() {
	validateCmd.Flags().Bool("all", false, "Validate all registered skills")
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
	rootCmd.AddCommand(validateCmd)
}

func printDiagnostics(result validate.Result) {
	if presenter.IsQuiet() {
		return
	}

	name := result.Name
	if name == "" {
		name = result.Path
	}
	presenter.Section(name)

	if len(result.Diagnostics) == 0 {
		presenter.Success("Valid")
		return
	}
	for _, d := range result.Diagnostics {
		line := fmt.Sprintf("[%s] %s", d.Code, d.Message)
		switch d.Severity {
		case validate.SeverityError:
			presenter.Error(errors.New(line), "")
		case validate.SeverityWarning:
			presenter.Warning(line)
		default:
			presenter.Info(line)
		}
	}
}
