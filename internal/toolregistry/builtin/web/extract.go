// Package web implements the web_search, web_fetch, and web_browser
// tools. web_fetch, and web_search when it extracts result content, go
// through ContentExtractor's SSRF guard; only web_fetch runs the
// injection-line sanitizer. web_browser calls neither and drives a pooled
// playwright-go headless browser.
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ContentExtractor fetches a URL and extracts readable content from its
// HTML, guarding against SSRF by rejecting private/reserved destination IPs.
type ContentExtractor struct {
	httpClient    *http.Client
	skipSSRFCheck bool
}

// NewContentExtractor returns an extractor with SSRF protection enabled.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// NewContentExtractorForTesting returns an extractor with SSRF protection
// disabled, so tests can target a local httptest server.
func NewContentExtractorForTesting() *ContentExtractor {
	return &ContentExtractor{httpClient: &http.Client{Timeout: 15 * time.Second}, skipSSRFCheck: true}
}

func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	return ip.Equal(net.ParseIP("169.254.169.254"))
}

func validateURLForSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	lowerHost := strings.ToLower(hostname)
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP address")
		}
	}
	return nil
}

// Extract fetches targetURL and returns its readable content (title,
// description, main body text), trimmed to 10,000 characters.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	if !e.skipSSRFCheck {
		if err := validateURLForSSRF(targetURL); err != nil {
			return "", fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OrchestratorBot/1.0)")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	content := e.extractReadableContent(string(body))
	if len(content) > 10000 {
		content = content[:10000] + "..."
	}
	return content, nil
}

func (e *ContentExtractor) extractReadableContent(html string) string {
	for _, tag := range []string{"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside"} {
		html = removeTag(html, tag)
	}

	title := extractTitle(html)
	description := extractMetaDescription(html)
	content := extractMainContent(html)
	if content == "" {
		content = extractFromBody(html)
	}
	content = cleanText(content)

	var result strings.Builder
	if title != "" {
		result.WriteString("Title: " + title + "\n\n")
	}
	if description != "" {
		result.WriteString("Description: " + description + "\n\n")
	}
	result.WriteString(content)
	return result.String()
}

func removeTag(html, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(html, "")
}

func extractTitle(html string) string {
	if m := regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	if m := regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	if m := regexp.MustCompile(`(?i)<h1[^>]*>(.*?)</h1>`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	return ""
}

func extractMetaDescription(html string) string {
	if m := regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	if m := regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	return ""
}

func extractMainContent(html string) string {
	patterns := []string{
		`(?is)<main[^>]*>(.*?)</main>`,
		`(?is)<article[^>]*>(.*?)</article>`,
		`(?is)<div[^>]*class=["'][^"']*content[^"']*["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*class=["'][^"']*article[^"']*["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*id=["']content["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*id=["']main["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*role=["']main["'][^>]*>(.*?)</div>`,
	}
	for _, pattern := range patterns {
		if m := regexp.MustCompile(pattern).FindStringSubmatch(html); len(m) > 1 {
			if text := extractText(m[1]); len(strings.TrimSpace(text)) > 200 {
				return text
			}
		}
	}
	return ""
}

func extractFromBody(html string) string {
	if m := regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`).FindStringSubmatch(html); len(m) > 1 {
		return extractText(m[1])
	}
	return ""
}

func extractText(html string) string {
	for _, tag := range []string{"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br"} {
		html = regexp.MustCompile(`(?i)<`+tag+`[^>]*>`).ReplaceAllString(html, "\n")
		html = regexp.MustCompile(`(?i)</`+tag+`>`).ReplaceAllString(html, "\n")
	}
	return regexp.MustCompile(`<[^>]*>`).ReplaceAllString(html, "")
}

func cleanText(text string) string {
	replacer := strings.NewReplacer(
		"&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", "\"", "&#39;", "'", "&apos;", "'",
	)
	text = replacer.Replace(text)

	lines := strings.Split(text, "\n")
	whitespace := regexp.MustCompile(`[^\S\n]+`)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
