// Package skills discovers named instruction bundles (SKILL.md files) and
// decides which are eligible for the current process. A skill is prose the
// orchestrator can fold into a prompt, plus metadata: an always-on flag,
// platform and binary requirements, and the tool names its instructions
// assume are registered.
package skills

// SkillEntry is one discovered skill.
type SkillEntry struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed).
	Name string `json:"name" yaml:"name"`

	// Description explains what the skill does and when to use it. The
	// recommender matches it against request text, so it should name the
	// task domain concretely.
	Description string `json:"description" yaml:"description"`

	// Metadata carries gating rules and tool requirements.
	Metadata *SkillMetadata `json:"metadata,omitempty" yaml:"metadata"`

	// Content is the markdown body below the frontmatter.
	Content string `json:"-" yaml:"-"`

	// Path is the directory the skill was discovered in.
	Path string `json:"path" yaml:"-"`
}

// SkillMetadata gates a skill and names what it depends on.
type SkillMetadata struct {
	// Always marks the skill as applicable to every request, skipping the
	// keyword recommender.
	Always bool `json:"always,omitempty" yaml:"always"`

	// OS restricts the skill to specific platforms (darwin, linux, windows).
	OS []string `json:"os,omitempty" yaml:"os"`

	// Bins requires all listed binaries on PATH.
	Bins []string `json:"bins,omitempty" yaml:"bins"`

	// Env requires all listed environment variables (or config keys) set.
	Env []string `json:"env,omitempty" yaml:"env"`

	// RequiredTools names the tools (by toolregistry name) the skill's
	// instructions assume are available. The orchestration router refuses
	// a request whose recommended skill needs a tool that isn't
	// registered, surfacing the configuration gap instead of silently
	// ignoring it.
	RequiredTools []string `json:"requiredTools,omitempty" yaml:"requiredTools"`
}

// SkillConfig is a per-skill configuration override.
type SkillConfig struct {
	// Enabled disables the skill when set to false. Unset means enabled.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`
}

// SkillsConfig is the top-level skills configuration.
type SkillsConfig struct {
	// Dirs are additional directories to scan, beyond <workspace>/skills.
	Dirs []string `json:"dirs,omitempty" yaml:"dirs"`

	// Entries provides per-skill overrides keyed by skill name.
	Entries map[string]*SkillConfig `json:"entries,omitempty" yaml:"entries"`

	// Watch re-discovers skills when a skill directory changes.
	Watch bool `json:"watch,omitempty" yaml:"watch"`

	// WatchDebounceMs is the watcher's settle delay. Zero means 250ms.
	WatchDebounceMs int `json:"watchDebounceMs,omitempty" yaml:"watchDebounceMs"`
}

// IsEnabled reports whether overrides leave the skill active.
func (s *SkillEntry) IsEnabled(overrides map[string]*SkillConfig) bool {
	cfg, ok := overrides[s.Name]
	if !ok || cfg == nil || cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}
