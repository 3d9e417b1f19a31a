package traverse

import (
	"context"

	"github.com/go-rod/rod"
)

// ScrollState is a point-in-time reading of the page's scroll geometry.
// It is derived, never stored: the page can grow between reads, so every
// decision recomputes it.
type ScrollState struct {
	// Offset is the current vertical scroll position.
	Offset float64

	// ViewportHeight is the inner height of the window.
	ViewportHeight float64

	// MaxExtent is the largest of the redundant document extent readings.
	MaxExtent float64
}

// CanScrollMore reports whether unexplored extent remains below the viewport.
func (s ScrollState) CanScrollMore() bool {
	return s.Offset+s.ViewportHeight < s.MaxExtent
}

// scrollStateJS reads the scroll geometry in one round-trip. Five extent
// properties are read and the max taken: different page layouts report a
// reliable extent on different properties, so the redundancy stays.
const scrollStateJS = `() => ({
	offset: window.scrollY,
	viewport: window.innerHeight,
	extent: Math.max(
		document.body.scrollHeight,
		document.body.offsetHeight,
		document.documentElement.clientHeight,
		document.documentElement.scrollHeight,
		document.documentElement.offsetHeight
	)
})`

// scrollIntoViewJS brings an element into the viewport. When the element's
// offset from the top of the flow is exactly zero the layout engine has not
// assigned it real position yet (unrendered or placeholder content); an
// absolute scroll to offset 0 would not move the viewport and would starve
// the wait loop, so the element-centering scroll is used instead.
const scrollIntoViewJS = `function () {
	const rect = this.getBoundingClientRect();
	const top = rect.top + window.scrollY;
	if (top === 0) {
		this.scrollIntoView({ behavior: 'smooth', block: 'center', inline: 'center' });
		return;
	}
	window.scrollTo({ top: top - window.innerHeight / 2, behavior: 'smooth' });
}`

const scrollByJS = `(dy) => window.scrollBy({ top: dy, behavior: 'smooth' })`

// PageScroller implements Scroller against a live rod page.
type PageScroller struct {
	page *rod.Page
}

// NewPageScroller creates a Scroller for page.
func NewPageScroller(page *rod.Page) *PageScroller {
	return &PageScroller{page: page}
}

// State reads the current scroll geometry.
func (p *PageScroller) State(ctx context.Context) (ScrollState, error) {
	res, err := p.page.Context(ctx).Eval(scrollStateJS)
	if err != nil {
		return ScrollState{}, err
	}
	return ScrollState{
		Offset:         res.Value.Get("offset").Num(),
		ViewportHeight: res.Value.Get("viewport").Num(),
		MaxExtent:      res.Value.Get("extent").Num(),
	}, nil
}

// CanScrollMore implements Scroller.
func (p *PageScroller) CanScrollMore(ctx context.Context) (bool, error) {
	state, err := p.State(ctx)
	if err != nil {
		return false, err
	}
	return state.CanScrollMore(), nil
}

// ScrollBy scrolls the viewport down by dy pixels.
func (p *PageScroller) ScrollBy(ctx context.Context, dy float64) error {
	_, err := p.page.Context(ctx).Eval(scrollByJS, dy)
	return err
}

// ScrollIntoViewOrBy brings el into the viewport center, falling back to an
// element-relative scroll when the layout has not positioned it yet.
func ScrollIntoViewOrBy(ctx context.Context, el *rod.Element) error {
	_, err := el.Context(ctx).Eval(scrollIntoViewJS)
	return err
}
