package outlinks

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CollectFromHTML scans a captured HTML snapshot for anchor/area hrefs and
// inserts them into the collector, resolving relative links against base.
// Used when the live page is gone but its serialized DOM survives.
func (c *Collector) CollectFromHTML(rawHTML string, base *url.URL) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return 0, err
	}

	added := 0
	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)

		// The prefix ignore-list applies to the raw href before resolution:
		// javascript: and friends must never reach the resolver.
		lower := strings.ToLower(href)
		for _, prefix := range ignorePrefixes {
			if strings.HasPrefix(lower, prefix) {
				return
			}
		}

		if base != nil {
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			href = base.ResolveReference(ref).String()
		}

		if c.Add(href) {
			added++
		}
	})

	return added, nil
}
