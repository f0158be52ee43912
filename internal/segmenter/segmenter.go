// Package segmenter splits an HTML fragment into translatable text nodes,
// batches small adjacent nodes into groups, runs the groups in bounded waves
// and splices translations back into the original markup.
package segmenter

import (
	"cmp"
	"context"
	"errors"
	"io"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultGroupCap    = 200
	DefaultSmallNode   = 50
	DefaultConcurrency = 3
	DefaultWavePause   = 100 * time.Millisecond

	// Separator joins the texts of one group for a single provider call.
	Separator = "\n"
)

// IgnoredTags hold content that is never translated.
var IgnoredTags = []string{"script", "style", "code", "pre", "textarea", "noscript"}

var tagRe = regexp.MustCompile(`</?[A-Za-z][A-Za-z0-9-]*(\s[^<>]*)?/?>`)

// HasTags reports whether s contains at least one HTML tag.
func HasTags(s string) bool {
	return tagRe.MatchString(s)
}

type Options struct {
	// GroupCap bounds the combined length of a group, in runes.
	GroupCap int
	// SmallNode is the length from which a node forms its own group.
	SmallNode int
	// Concurrency is the number of groups translated per wave.
	Concurrency int
	// WavePause is the delay between waves.
	WavePause time.Duration
}

func (o Options) withDefaults() Options {
	if o.GroupCap <= 0 {
		o.GroupCap = DefaultGroupCap
	}
	if o.SmallNode <= 0 {
		o.SmallNode = DefaultSmallNode
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.WavePause < 0 {
		o.WavePause = 0
	}
	return o
}

// Node is one text leaf in document order. Text is trimmed, unescaped and
// kept on one line. Start and End delimit the node's raw bytes in the
// fragment it was extracted from.
type Node struct {
	Index int
	Text  string
	Start int
	End   int
}

var lineBreakRe = regexp.MustCompile(`[ \t\f\r\n]*[\r\n][ \t\f\r\n]*`)

// Extract tokenizes fragment and collects its text leaves in document order,
// leaving out ignored tags and text without any letter.
func Extract(fragment string) ([]Node, error) {
	ignored := make(map[string]bool, len(IgnoredTags))
	for _, tag := range IgnoredTags {
		ignored[tag] = true
	}

	var nodes []Node
	z := html.NewTokenizer(strings.NewReader(fragment))
	offset, depth := 0, 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nodes, nil
		}
		raw := string(z.Raw())
		start := offset
		offset += len(raw)

		switch tt {
		case html.StartTagToken:
			if name, _ := z.TagName(); ignored[string(name)] {
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); ignored[string(name)] && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth > 0 {
				continue
			}
			trimmed := strings.TrimSpace(raw)
			text := strings.TrimSpace(html.UnescapeString(trimmed))
			if !hasLetter(text) {
				continue
			}
			lead := strings.Index(raw, trimmed)
			nodes = append(nodes, Node{
				Index: len(nodes),
				Text:  lineBreakRe.ReplaceAllString(text, " "),
				Start: start + lead,
				End:   start + lead + len(trimmed),
			})
		}
	}
}

// PlainText returns the readable text of fragment without ignored tags,
// e.g. as a sample for language detection.
func PlainText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	doc.Find(strings.Join(IgnoredTags, ",")).Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Group is a run of adjacent nodes translated in one call.
type Group struct {
	Indices []int
	Texts   []string
}

// Text is the group's source as sent to a provider.
func (g Group) Text() string {
	return strings.Join(g.Texts, Separator)
}

// Split maps a translated group back onto its nodes. It fails when the
// provider did not keep one line per node.
func (g Group) Split(translated string) ([]string, bool) {
	if len(g.Texts) == 1 {
		return []string{strings.TrimSpace(translated)}, true
	}
	lines := strings.Split(strings.Trim(translated, "\r\n"), Separator)
	if len(lines) != len(g.Texts) {
		return nil, false
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines, true
}

// Batch groups nodes greedily: small nodes accumulate while the combined
// length stays under GroupCap; a node of SmallNode runes or more closes the
// running group and stands alone.
func Batch(nodes []Node, opts Options) []Group {
	opts = opts.withDefaults()

	var groups []Group
	var cur Group
	curLen := 0
	flush := func() {
		if len(cur.Texts) > 0 {
			groups = append(groups, cur)
		}
		cur = Group{}
		curLen = 0
	}

	for _, n := range nodes {
		size := len([]rune(n.Text))
		if size >= opts.SmallNode {
			flush()
			groups = append(groups, Group{Indices: []int{n.Index}, Texts: []string{n.Text}})
			continue
		}
		if len(cur.Texts) > 0 && curLen+size >= opts.GroupCap {
			flush()
		}
		cur.Indices = append(cur.Indices, n.Index)
		cur.Texts = append(cur.Texts, n.Text)
		curLen += size
	}
	flush()
	return groups
}

// RunWaves calls fn for items 0..n-1, at most Concurrency at a time, in
// strictly sequential waves separated by WavePause. The first error stops
// later waves.
func RunWaves(ctx context.Context, n int, opts Options, fn func(ctx context.Context, i int) error) error {
	opts = opts.withDefaults()

	for start := 0; start < n; start += opts.Concurrency {
		if start > 0 && opts.WavePause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.WavePause):
			}
		}

		end := min(start+opts.Concurrency, n)
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error { return fn(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Replacement swaps the raw bytes markup[Start:End] for a translation.
type Replacement struct {
	Start      int
	End        int
	Translated string
}

// Splice writes translations over the spans recorded by Extract. Everything
// outside the spans stays byte-identical. Spans that are out of range or
// overlap an earlier one are skipped.
func Splice(markup string, replacements []Replacement) string {
	reps := slices.Clone(replacements)
	slices.SortFunc(reps, func(a, b Replacement) int { return cmp.Compare(a.Start, b.Start) })

	var sb strings.Builder
	sb.Grow(len(markup))
	cursor := 0
	for _, r := range reps {
		if r.Start < cursor || r.End < r.Start || r.End > len(markup) {
			continue
		}
		sb.WriteString(markup[cursor:r.Start])
		sb.WriteString(escapeText(r.Translated))
		cursor = r.End
	}
	sb.WriteString(markup[cursor:])
	return sb.String()
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return textEscaper.Replace(s)
}
