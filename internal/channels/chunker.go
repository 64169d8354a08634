package channels

import "strings"

// SplitMessage splits text into chunks of at most limit runes, preferring
// to break on paragraph, then line, then word boundaries. Platforms cap
// message length (Discord 2000, Telegram 4096, Slack ~40000); adapters
// call this before sending rather than letting the API reject the post.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		window := string(runes[:limit])
		cutBytes := -1
		for _, sep := range []string{"\n\n", "\n", " "} {
			if idx := strings.LastIndex(window, sep); idx > 0 {
				cutBytes = idx + len(sep)
				break
			}
		}
		cut := limit
		if cutBytes > 0 {
			cut = len([]rune(window[:cutBytes]))
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n "))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
