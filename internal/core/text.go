package core

import "strings"

func splitWords(s string) []string {
	return strings.Fields(s)
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(splitWords(s))
}

// Truncate returns at most n runes of s. It never splits a multi-byte rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
