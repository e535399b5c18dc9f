package core

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Retention returns the fraction of before's words that survive, in order, in
// after: the total size of the matching word blocks divided by the word count
// of before. Empty before yields 1.
func Retention(before, after string) float64 {
	a := strings.Fields(before)
	if len(a) == 0 {
		return 1
	}
	b := strings.Fields(after)
	if len(b) == 0 {
		return 0
	}

	// Autojunk would discard frequent words such as "the" in long prose.
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	kept := 0
	for _, block := range m.GetMatchingBlocks() {
		kept += block.Size
	}
	return float64(kept) / float64(len(a))
}
