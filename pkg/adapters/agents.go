package adapters

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/asrlabs/asr/pkg/skills"
)

const agentsFileName = "AGENTS.md"

var agentsSectionRe = regexp.MustCompile(`(?ms)^<!-- asr:begin ([a-z0-9-]+) -->$.*?^<!-- asr:end [a-z0-9-]+ -->$\n?`)

func agentsBeginMarker(name string) string { return fmt.Sprintf("<!-- asr:begin %s -->", name) }
func agentsEndMarker(name string) string   { return fmt.Sprintf("<!-- asr:end %s -->", name) }

func renderAgentsSection(skill *skills.Skill, skillPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", agentsBeginMarker(skill.Name))
	fmt.Fprintf(&b, "## %s\n\n", skill.Name)
	fmt.Fprintf(&b, "%s\n\n", skill.Description)
	fmt.Fprintf(&b, "Skill files live in `%s/`; read `%s/%s` before using it.\n",
		skillPath, skillPath, skills.ManifestFileName)
	fmt.Fprintf(&b, "%s\n", agentsEndMarker(skill.Name))
	return b.String()
}

// mergeAgentsContent updates the managed regions of an AGENTS.md body.
// Existing marker-delimited sections are replaced in place, sections for
// skills absent from sections are dropped when prune is set, and new
// sections are appended. Content outside markers is preserved verbatim.
func mergeAgentsContent(existing string, sections map[string]string, order []string, prune bool) string {
	seen := make(map[string]bool)

	merged := agentsSectionRe.ReplaceAllStringFunc(existing, func(match string) string {
		sub := agentsSectionRe.FindStringSubmatch(match)
		name := sub[1]
		section, ok := sections[name]
		if !ok {
			if prune {
				return ""
			}
			return match
		}
		seen[name] = true
		return section
	})

	var appended []string
	for _, name := range order {
		if !seen[name] {
			appended = append(appended, sections[name])
		}
	}
	if len(appended) == 0 {
		return merged
	}

	if merged == "" {
		merged = "# Agent Skills\n\n"
	} else if !strings.HasSuffix(merged, "\n\n") {
		merged = strings.TrimRight(merged, "\n") + "\n\n"
	}
	return merged + strings.Join(appended, "\n")
}
