package router

import (
	"fmt"
	"strings"

	"github.com/relaygrid/orchestrator/internal/secretvault"
)

// SecretChecker is the narrow surface the secret gate needs from a vault:
// inspecting {{secret:name}} references before any model call sees them.
type SecretChecker interface {
	InspectReferences(text string) secretvault.Report
}

// secretGateError is returned by checkSecretGate when the request text
// references secrets that cannot be resolved phase 2: the
// router must refuse to forward the message to any provider until the gap
// is fixed, rather than leaking an unresolved placeholder or empty string
// into a prompt.
type secretGateError struct {
	report secretvault.Report
}

func (e *secretGateError) Error() string {
	var parts []string
	if len(e.report.MissingKeys) > 0 {
		parts = append(parts, "missing secrets: "+strings.Join(e.report.MissingKeys, ", "))
	}
	if len(e.report.InvalidCiphertexts) > 0 {
		parts = append(parts, fmt.Sprintf("%d unresolvable ciphertext reference(s)", len(e.report.InvalidCiphertexts)))
	}
	return "secret gate: " + strings.Join(parts, "; ")
}

// checkSecretGate inspects content for secret references before it is ever
// handed to a provider. A nil checker passes every request through
// unchanged, so vault-less deployments stay functional.
func checkSecretGate(checker SecretChecker, content string) error {
	if checker == nil {
		return nil
	}
	report := checker.InspectReferences(content)
	if len(report.MissingKeys) == 0 && len(report.InvalidCiphertexts) == 0 {
		return nil
	}
	return &secretGateError{report: report}
}

// maskForLog redacts any known secret plaintexts out of text before it is
// written to a log line or event detail. A nil masker is a no-op.
func maskForLog(masker interface{ MaskKnownSecrets(string) string }, text string) string {
	if masker == nil {
		return text
	}
	return masker.MaskKnownSecrets(text)
}
