package browser

import "regexp"

// Phrases that bot-protection interstitials and challenge pages reliably
// contain. Matching is case-insensitive against both page text and title.
var blockMarkers = regexp.MustCompile(`(?i)captcha|verify you are human|access denied|unusual traffic|temporarily unavailable|robot check`)

// IsBlocked reports whether text looks like a bot-protection page.
func IsBlocked(text string) bool {
	return blockMarkers.MatchString(text)
}
