package shell

import "strings"

// dangerousPatterns maps shell metacharacters to their risk categories.
var dangerousPatterns = map[string]string{
	";":  "command_chain",
	"&&": "command_chain",
	"||": "command_chain",
	"|":  "pipe",
	">":  "redirect",
	">>": "redirect",
	"<":  "redirect",
	"`":  "subshell",
	"$(": "subshell",
	"&":  "background",
}

var riskDescriptions = map[string]string{
	"command_chain": "command chaining allows execution of multiple commands",
	"pipe":          "pipes allow output to be redirected to another command",
	"redirect":      "redirects can overwrite files or read sensitive data",
	"subshell":      "subshells allow arbitrary command execution",
	"background":    "background execution can spawn persistent processes",
}

// analyzeQuoteAware reports the dangerous shell metacharacters found in cmd
// outside of quoted regions, and a human-readable reason string. Ported from
// security.AnalyzeCommandQuoteAware, trimmed to the fields this package uses.
func analyzeQuoteAware(cmd string) (safe bool, reason string) {
	if cmd == "" {
		return true, ""
	}

	inSingleQuote := false
	inDoubleQuote := false
	escaped := false

	unquoted := make([]bool, len(cmd))
	for i := range unquoted {
		unquoted[i] = true
	}

	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if escaped {
			escaped = false
			unquoted[i] = false
			continue
		}
		if c == '\\' && !inSingleQuote {
			escaped = true
			continue
		}
		if c == '\'' && !inDoubleQuote {
			inSingleQuote = !inSingleQuote
			unquoted[i] = false
			continue
		}
		if c == '"' && !inSingleQuote {
			inDoubleQuote = !inDoubleQuote
			unquoted[i] = false
			continue
		}
		if inSingleQuote || inDoubleQuote {
			unquoted[i] = false
		}
	}

	patterns := []string{">>", "&&", "||", "$(", ";", "|", ">", "<", "`", "&"}
	risks := map[string]bool{}

	for _, pattern := range patterns {
		idx := 0
		for {
			pos := strings.Index(cmd[idx:], pattern)
			if pos == -1 {
				break
			}
			actualPos := idx + pos

			insideQuotes := false
			for i := actualPos; i < actualPos+len(pattern) && i < len(cmd); i++ {
				if !unquoted[i] {
					insideQuotes = true
					break
				}
			}
			if insideQuotes {
				idx = actualPos + len(pattern)
				continue
			}
			if (pattern == ">" || pattern == "&" || pattern == "|") && actualPos > 0 &&
				unquoted[actualPos-1] && cmd[actualPos-1] == pattern[0] {
				idx = actualPos + len(pattern)
				continue
			}
			if (pattern == "&" || pattern == "|") && actualPos+1 < len(cmd) &&
				unquoted[actualPos+1] && cmd[actualPos+1] == pattern[0] {
				idx = actualPos + 1
				continue
			}

			risks[dangerousPatterns[pattern]] = true
			idx = actualPos + len(pattern)
		}
	}

	if len(risks) == 0 {
		return true, ""
	}
	var reasons []string
	for risk := range risks {
		reasons = append(reasons, riskDescriptions[risk])
	}
	return false, strings.Join(reasons, "; ")
}

// IsSafeCommand reports whether cmd contains no unquoted shell metacharacters.
func IsSafeCommand(cmd string) bool {
	safe, _ := analyzeQuoteAware(cmd)
	return safe
}

// UnsafeReason explains why cmd is unsafe, or "" if it is safe.
func UnsafeReason(cmd string) string {
	_, reason := analyzeQuoteAware(cmd)
	return reason
}
