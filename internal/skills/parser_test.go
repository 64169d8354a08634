package skills

import (
	"strings"
	"testing"
)

const sampleSkill = `---
name: deploy-helper
description: Deploy services to staging and production environments.
metadata:
  requiredTools:
    - shell_exec
    - read_file
---
# Deploy helper

Run the deploy script, then verify health.
`

func TestParseSkill(t *testing.T) {
	entry, err := ParseSkill([]byte(sampleSkill), "/skills/deploy-helper")
	if err != nil {
		t.Fatalf("ParseSkill: %v", err)
	}
	if entry.Name != "deploy-helper" {
		t.Fatalf("name = %q", entry.Name)
	}
	if !strings.Contains(entry.Description, "staging") {
		t.Fatalf("description = %q", entry.Description)
	}
	if entry.Metadata == nil || len(entry.Metadata.RequiredTools) != 2 {
		t.Fatalf("metadata = %+v", entry.Metadata)
	}
	if !strings.HasPrefix(entry.Content, "# Deploy helper") {
		t.Fatalf("content = %q", entry.Content)
	}
	if entry.Path != "/skills/deploy-helper" {
		t.Fatalf("path = %q", entry.Path)
	}
}

func TestParseSkillRejectsMissingFrontmatter(t *testing.T) {
	if _, err := ParseSkill([]byte("# just markdown"), "."); err == nil {
		t.Fatal("expected error for missing frontmatter")
	}
	if _, err := ParseSkill([]byte("---\nname: x\ndescription: y"), "."); err == nil {
		t.Fatal("expected error for unclosed frontmatter")
	}
}

func TestParseSkillValidation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"missing name", "---\ndescription: something\n---\nbody"},
		{"missing description", "---\nname: a-skill\n---\nbody"},
		{"bad name grammar", "---\nname: Not Valid\ndescription: d\n---\nbody"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSkill([]byte(tc.doc), "."); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateSkillAcceptsHyphenatedNames(t *testing.T) {
	entry := &SkillEntry{Name: "web-search-2", Description: "d"}
	if err := ValidateSkill(entry); err != nil {
		t.Fatalf("ValidateSkill: %v", err)
	}
}
