package router

import (
	"strings"

	"github.com/relaygrid/orchestrator/internal/skills"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// SkillLister is the narrow surface the router needs from a skills
// manager: the currently eligible skill set to recommend from.
type SkillLister interface {
	ListEligible() []*skills.SkillEntry
}

// skillKeywords breaks a skill's name and description into lowercase
// keywords for the recommender below. Deliberately simple — no stemming or
// stopword list — so the ranking stays legible.
func skillKeywords(s *skills.SkillEntry) []string {
	fields := strings.FieldsFunc(strings.ToLower(s.Name+" "+s.Description), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 4 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// recommendSkills scores each eligible skill by how many of its keywords
// appear in content, returning skills with at least one match, most
// relevant first.
func recommendSkills(lister SkillLister, content string) []*skills.SkillEntry {
	if lister == nil {
		return nil
	}
	lower := strings.ToLower(content)

	type scored struct {
		entry *skills.SkillEntry
		score int
	}
	var candidates []scored
	for _, s := range lister.ListEligible() {
		if s.Metadata != nil && s.Metadata.Always {
			candidates = append(candidates, scored{entry: s, score: 1 << 30})
			continue
		}
		score := 0
		for _, kw := range skillKeywords(s) {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{entry: s, score: score})
		}
	}

	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	out := make([]*skills.SkillEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

// selectTools returns every tool registered phase 3 — the
// provider always sees the full registry, but missingRequiredTools below
// flags when a recommended skill needs something that isn't registered so
// the caller can surface that gap instead of silently ignoring it.
func selectTools(registry *toolregistry.Registry) []toolregistry.Tool {
	if registry == nil {
		return nil
	}
	return registry.All()
}

// missingRequiredTools reports any tool name a recommended skill declares
// in RequiredTools that isn't present in registry.
func missingRequiredTools(registry *toolregistry.Registry, recommended []*skills.SkillEntry) []string {
	if registry == nil {
		return nil
	}
	var missing []string
	seen := make(map[string]bool)
	for _, s := range recommended {
		if s.Metadata == nil {
			continue
		}
		for _, name := range s.Metadata.RequiredTools {
			if seen[name] {
				continue
			}
			seen[name] = true
			if _, ok := registry.Get(name); !ok {
				missing = append(missing, name)
			}
		}
	}
	return missing
}
