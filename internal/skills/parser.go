package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillFilename is the filename a skill directory must contain.
const SkillFilename = "SKILL.md"

const frontmatterDelimiter = "---"

// ParseSkillFile reads and parses one SKILL.md.
func ParseSkillFile(path string) (*SkillEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill: %w", err)
	}
	return ParseSkill(data, filepath.Dir(path))
}

// ParseSkill parses SKILL.md content: YAML frontmatter between ---
// delimiters, then a markdown body.
func ParseSkill(data []byte, skillPath string) (*SkillEntry, error) {
	frontmatter, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, err
	}

	var entry SkillEntry
	if err := yaml.Unmarshal([]byte(frontmatter), &entry); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	entry.Content = strings.TrimSpace(body)
	entry.Path = skillPath

	if err := ValidateSkill(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func splitFrontmatter(data string) (frontmatter, body string, err error) {
	lines := strings.Split(data, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return "", "", fmt.Errorf("missing opening frontmatter delimiter")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", fmt.Errorf("missing closing frontmatter delimiter")
}

// ValidateSkill rejects entries that would be unusable: a missing name or
// description (the recommender matches on both), or a name outside the
// lowercase-alphanumeric-hyphen grammar skill names share with tool names.
func ValidateSkill(entry *SkillEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	for _, r := range entry.Name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("skill name must be lowercase alphanumeric with hyphens: got %q", entry.Name)
		}
	}
	if entry.Description == "" {
		return fmt.Errorf("skill description is required")
	}
	return nil
}
