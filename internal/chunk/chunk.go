// Package chunk splits reply text into platform-safe segments.
package chunk

// DefaultMaxLen matches the Telegram message size the relay targets.
const DefaultMaxLen = 4000

// Split cuts text into contiguous pieces of at most maxLen runes each.
// Concatenating the result reproduces text exactly; order is preserved and
// pieces never overlap. Empty input yields no pieces.
func Split(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if text == "" {
		return nil
	}

	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += maxLen {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
