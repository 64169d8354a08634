package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, root, name, doc string) {
	t.Helper()
	dir := filepath.Join(root, "skills", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SkillFilename), []byte(doc), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
}

func TestManagerDiscoversWorkspaceSkills(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "release-notes", `---
name: release-notes
description: Summarize merged changes into release notes.
---
Collect commits, group by area.
`)
	writeSkill(t, ws, "broken", "no frontmatter here")

	m, err := NewManager(&SkillsConfig{}, ws, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	eligible := m.ListEligible()
	if len(eligible) != 1 || eligible[0].Name != "release-notes" {
		t.Fatalf("eligible = %+v", eligible)
	}
}

func TestManagerDisabledByConfig(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "noisy", `---
name: noisy
description: A skill disabled in config.
---
body
`)
	off := false
	m, err := NewManager(&SkillsConfig{
		Entries: map[string]*SkillConfig{"noisy": {Enabled: &off}},
	}, ws, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if len(m.ListEligible()) != 0 {
		t.Fatal("disabled skill should not be eligible")
	}
	if reason := m.RejectedReasons()["noisy"]; reason != "disabled by config" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestManagerGatesOnMissingBinary(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "needs-tool", `---
name: needs-tool
description: Requires a binary that does not exist.
metadata:
  bins:
    - definitely-not-a-real-binary-zz
---
body
`)
	m, err := NewManager(&SkillsConfig{}, ws, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if len(m.ListEligible()) != 0 {
		t.Fatal("skill with missing binary should be rejected")
	}
}

func TestManagerEnvSatisfiedByConfigValues(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "needs-key", `---
name: needs-key
description: Requires an API key from env or config.
metadata:
  env:
    - SOME_SERVICE_KEY
---
body
`)
	m, err := NewManager(&SkillsConfig{}, ws, map[string]any{"SOME_SERVICE_KEY": "from-config"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetEligible("needs-key"); !ok {
		t.Fatal("config-provided env should satisfy the requirement")
	}
}

func TestManagerExtraDirOverridesWorkspace(t *testing.T) {
	ws := t.TempDir()
	extra := t.TempDir()
	writeSkill(t, ws, "shared", `---
name: shared
description: Workspace version of the shared skill.
---
workspace body
`)
	writeSkill(t, extra, "shared", `---
name: shared
description: Override version of the shared skill.
---
override body
`)

	m, err := NewManager(&SkillsConfig{Dirs: []string{filepath.Join(extra, "skills")}}, ws, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	s, ok := m.GetEligible("shared")
	if !ok {
		t.Fatal("shared skill missing")
	}
	if s.Content != "override body" {
		t.Fatalf("content = %q, want the later directory to win", s.Content)
	}
}
