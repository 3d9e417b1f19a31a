package outlinks

import (
	"github.com/go-rod/rod"
)

// hrefHarvestJS reads the resolved href property (not the raw attribute) of
// every anchor and area element, so relative links come back absolute.
const hrefHarvestJS = `() => {
	const out = [];
	for (const el of document.querySelectorAll('a[href], area[href]')) {
		if (el.href) out.push(el.href);
	}
	return out;
}`

// CollectFrom harvests anchor/area hrefs from the live page in a single
// round-trip and inserts them into the collector. Returns the number of new
// entries added.
func (c *Collector) CollectFrom(page *rod.Page) (int, error) {
	res, err := page.Eval(hrefHarvestJS)
	if err != nil {
		return 0, err
	}

	var hrefs []string
	for _, v := range res.Value.Arr() {
		hrefs = append(hrefs, v.Str())
	}
	return c.AddAll(hrefs), nil
}
