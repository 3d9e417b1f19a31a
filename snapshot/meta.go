package snapshot

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/webrecorder/autobrowser/models"
)

// EnrichMetadata fills gaps in meta from Open Graph tags in the raw HTML.
// Readability-derived fields win; OG tags only supply what is missing.
func EnrichMetadata(rawHTML string, meta models.Metadata) models.Metadata {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return meta
	}

	og := map[string]string{}
	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content == "" || !strings.HasPrefix(prop, "og:") {
			return
		}
		if _, ok := og[prop]; !ok {
			og[prop] = content
		}
	})

	if meta.Title == "" {
		meta.Title = og["og:title"]
	}
	if meta.Description == "" {
		meta.Description = og["og:description"]
	}
	if meta.SiteName == "" {
		meta.SiteName = og["og:site_name"]
	}
	if meta.Language == "" {
		if lang, ok := doc.Find("html").Attr("lang"); ok {
			meta.Language = lang
		}
	}
	return meta
}
