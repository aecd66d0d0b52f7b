package models

import (
	"strings"
	"unicode"
)

// SanitizeFolderName turns user input into a safe folder name. Path
// separators become "-", anything other than letters, digits, combining marks,
// "_", space, "-" and "." is dropped and then parent-traversal sequences are
// removed. The result may be empty and sanitizing it again changes nothing.
func SanitizeFolderName(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer("/", "-", `\`, "-").Replace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			return r
		case r == '_', r == '-', r == '.', unicode.IsSpace(r):
			return r
		}
		return -1
	}, s)
	// Dropping characters can join dots, so strip ".." last and until stable.
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", "")
	}
	return strings.TrimSpace(s)
}

// NormalizeTags trims, lowercases and de-duplicates tags, dropping empty
// ones. First occurrence order is kept.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ParseTags splits a comma-separated input into normalized tags.
func ParseTags(input string) []string {
	if strings.TrimSpace(input) == "" {
		return []string{}
	}
	return NormalizeTags(strings.Split(input, ","))
}
