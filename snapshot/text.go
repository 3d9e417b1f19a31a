package snapshot

import (
	"strings"

	"golang.org/x/net/html"
)

// skipContent holds tags whose text children carry no prose.
var skipContent = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// stripTags walks rawHTML with the tokenizer and collects visible text,
// collapsing runs of whitespace to single spaces. Malformed markup is fine;
// the tokenizer simply stops at the error and whatever was collected so far
// is returned.
func stripTags(rawHTML string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if skipContent[string(tn)] {
				skipDepth++
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if skipContent[string(tn)] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.Join(strings.Fields(text), " "))
		}
	}
}
