package secretvault

import "regexp"

// placeholderPattern matches {{secret:<name>}} references.
var placeholderPattern = regexp.MustCompile(`\{\{secret:([A-Za-z0-9_.\-]+)\}\}`)

// tokenCandidatePattern finds anything that looks like an "sv1." token so
// malformed ones can still be reported as invalid rather than silently
// ignored.
var tokenCandidatePattern = regexp.MustCompile(`sv1\.[A-Za-z0-9_.\-]*`)

// Report describes what happened when placeholders and ciphertext tokens
// in a piece of text were resolved or inspected.
type Report struct {
	MissingKeys        []string `json:"missing_keys"`
	InvalidCiphertexts []string `json:"invalid_ciphertexts"`
}

func (r *Report) addMissing(name string) {
	for _, n := range r.MissingKeys {
		if n == name {
			return
		}
	}
	r.MissingKeys = append(r.MissingKeys, name)
}

func (r *Report) addInvalid(token string) {
	for _, t := range r.InvalidCiphertexts {
		if t == token {
			return
		}
	}
	r.InvalidCiphertexts = append(r.InvalidCiphertexts, token)
}

// Resolve performs the two-stage substitution:
// first every {{secret:name}} placeholder is replaced by its stored
// ciphertext token (placeholders with no matching row are left untouched
// and recorded as missing); then every ciphertext token present in the
// result — whether it came from stage one or was already present in the
// input — is decrypted and replaced by its plaintext. A token that fails
// to decrypt, or isn't recognized as belonging to a stored secret, is
// replaced with an empty string and recorded as invalid.
func (v *Vault) Resolve(text string) (string, Report, error) {
	var report Report

	stage1 := placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := placeholderPattern.FindStringSubmatch(m)
		name := sub[1]
		norm, ok := NormalizeName(name)
		if !ok {
			report.addMissing(name)
			return m
		}
		cipher, ok := v.GetCipher(norm)
		if !ok {
			report.addMissing(norm)
			return m
		}
		return cipher
	})

	reverse := v.reverseCipherMap()
	stage2 := tokenCandidatePattern.ReplaceAllStringFunc(stage1, func(token string) string {
		name, ok := reverse[token]
		if !ok {
			report.addInvalid(token)
			return ""
		}
		plaintext, err := v.Reveal(name)
		if err != nil {
			report.addInvalid(token)
			return ""
		}
		return plaintext
	})

	return stage2, report, nil
}

// InspectReferences returns the same report Resolve would produce, without
// performing any substitution.
func (v *Vault) InspectReferences(text string) Report {
	_, report, _ := v.Resolve(text)
	return report
}
