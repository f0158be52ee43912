// Package placeholder shields spans that a prompt-based translator must
// leave alone (fenced code, inline code, URLs and optionally HTML tags)
// behind numbered markers ([PH0], [PH1], ...). Restore puts them back.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`[^`\n]+`")
	reURL        = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)
	reHTMLTag    = regexp.MustCompile(`<[^>]+>`)

	reMarker = regexp.MustCompile(`\[PH(\d+)\]`)
)

// Protect replaces shielded spans with markers in order of appearance and
// returns the originals. Tags are shielded only when withTags is set.
func Protect(text string, withTags bool) (string, []string) {
	var originals []string
	replace := func(match string) string {
		id := marker(len(originals))
		originals = append(originals, match)
		return id
	}

	// Fenced blocks first so their backticks are not taken as inline code.
	text = reFencedCode.ReplaceAllStringFunc(text, replace)
	text = reInlineCode.ReplaceAllStringFunc(text, replace)
	if withTags {
		text = reHTMLTag.ReplaceAllStringFunc(text, replace)
	}
	text = reURL.ReplaceAllStringFunc(text, replace)
	return text, originals
}

// Restore substitutes markers with their originals. Unknown markers are left
// as they are.
func Restore(text string, originals []string) string {
	if len(originals) == 0 {
		return text
	}
	return reMarker.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(reMarker.FindStringSubmatch(m)[1])
		if err != nil || idx >= len(originals) {
			return m
		}
		return originals[idx]
	})
}

// Missing lists the markers absent from text.
func Missing(text string, originals []string) []int {
	var missing []int
	for i := range originals {
		if !strings.Contains(text, marker(i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

// Hint is appended to a system prompt when markers are present.
func Hint() string {
	return "Keep every [PHn] marker exactly as it appears; do not translate, move or remove them."
}

func marker(i int) string {
	return fmt.Sprintf("[PH%d]", i)
}
