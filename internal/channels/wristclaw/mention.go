package wristclaw

import (
	"regexp"
	"strings"
)

// mentionPool builds the lowercase names the bot answers to in a mention-policy
// group: the account's configured names, the bot display name when known, and
// the literal "all".
func mentionPool(configured []string, botDisplayName string) []string {
	pool := make([]string, 0, len(configured)+2)
	seen := make(map[string]bool, len(configured)+2)
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && !seen[name] {
			seen[name] = true
			pool = append(pool, name)
		}
	}
	for _, n := range configured {
		add(n)
	}
	add(botDisplayName)
	add("all")
	return pool
}

// detectAndStripMention reports whether text @mentions any of the names
// (case-insensitive) and returns the text with every @name occurrence and its
// trailing whitespace removed, trimmed.
func detectAndStripMention(text string, names []string) (mentioned bool, stripped string) {
	stripped = text
	for _, name := range names {
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)@` + regexp.QuoteMeta(name) + `\s*`)
		if err != nil {
			continue
		}
		if re.MatchString(stripped) {
			mentioned = true
			stripped = re.ReplaceAllString(stripped, "")
		}
	}
	if !mentioned {
		return false, text
	}
	return true, strings.TrimSpace(stripped)
}
