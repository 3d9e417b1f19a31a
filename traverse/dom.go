package traverse

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/webrecorder/autobrowser/models"
)

// keyAttr carries the traversal key assigned to an element at discovery.
// The key, not DOM identity, is what deduplication runs on: pages recycle
// elements between renders.
const keyAttr = "data-wr-key"

const ensureKeyJS = `function (attr, key) {
	if (!this.hasAttribute(attr)) this.setAttribute(attr, key);
	return this.getAttribute(attr);
}`

const markVisitedJS = `function (attr) { this.setAttribute(attr, '1'); }`

const isConnectedJS = `function () { return this.isConnected === true; }`

// DOMConfig describes one selector-driven candidate source.
type DOMConfig struct {
	// ItemSelector matches the feed/grid items to visit. Required.
	ItemSelector string

	// Kind classifies yielded steps. Defaults to StepLeaf when Detail is
	// nil and StepContainer otherwise.
	Kind models.StepKind

	// NeedsWait marks every step from this source as wanting extra driver
	// delay (sites where each visit triggers network loading).
	NeedsWait bool

	// Detail builds the per-item detail sub-traversal. Nil for plain leaf
	// items.
	Detail func(el *rod.Element) Iterator
}

// DOMSource discovers candidates with a CSS query, excluding nodes already
// carrying the visited marker. Every query is fresh: nothing is cached
// across suspension points.
type DOMSource struct {
	page    *rod.Page
	cfg     DOMConfig
	nextKey int
}

// NewDOMSource creates a Source querying page with cfg.
func NewDOMSource(page *rod.Page, cfg DOMConfig) *DOMSource {
	if cfg.Kind == "" {
		if cfg.Detail == nil {
			cfg.Kind = models.StepLeaf
		} else {
			cfg.Kind = models.StepContainer
		}
	}
	return &DOMSource{page: page, cfg: cfg}
}

// Candidates implements Source: current matches in document order, visited
// nodes excluded by the marker attribute.
func (s *DOMSource) Candidates(ctx context.Context) ([]Candidate, error) {
	selector := fmt.Sprintf("%s:not([%s])", s.cfg.ItemSelector, VisitedAttr)
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(els))
	for _, el := range els {
		s.nextKey++
		assigned := fmt.Sprintf("wr-%d", s.nextKey)
		res, err := el.Context(ctx).Eval(ensureKeyJS, keyAttr, assigned)
		if err != nil {
			// The element vanished mid-query; the next re-query will
			// simply not return it.
			continue
		}
		candidates = append(candidates, &elementCandidate{
			el:        el,
			key:       res.Value.Str(),
			kind:      s.cfg.Kind,
			needsWait: s.cfg.NeedsWait,
			detail:    s.cfg.Detail,
		})
	}
	return candidates, nil
}

// MarkVisited tags el with the visited marker attribute, excluding it from
// every later candidate query within the run.
func MarkVisited(ctx context.Context, el *rod.Element) error {
	_, err := el.Context(ctx).Eval(markVisitedJS, VisitedAttr)
	return err
}

// NewElementCandidate wraps a live element under an externally assigned
// key. Sources that discover rows outside plain DOM queries use this to
// feed their findings into a Feed.
func NewElementCandidate(el *rod.Element, key string, kind models.StepKind, needsWait bool, detail func(*rod.Element) Iterator) Candidate {
	return &elementCandidate{
		el:        el,
		key:       key,
		kind:      kind,
		needsWait: needsWait,
		detail:    detail,
	}
}

// elementCandidate wraps one live DOM element.
type elementCandidate struct {
	el        *rod.Element
	key       string
	kind      models.StepKind
	needsWait bool
	detail    func(el *rod.Element) Iterator
}

func (c *elementCandidate) Key() string           { return c.key }
func (c *elementCandidate) Kind() models.StepKind { return c.kind }
func (c *elementCandidate) NeedsWait() bool       { return c.needsWait }

func (c *elementCandidate) Attached(ctx context.Context) (bool, error) {
	res, err := c.el.Context(ctx).Eval(isConnectedJS)
	if err != nil {
		// A stale remote object means the node is gone; that is the
		// detached case, not a structural fault.
		return false, nil
	}
	return res.Value.Bool(), nil
}

func (c *elementCandidate) Mark(ctx context.Context) error {
	return MarkVisited(ctx, c.el)
}

func (c *elementCandidate) Scroll(ctx context.Context) error {
	return ScrollIntoViewOrBy(ctx, c.el)
}

func (c *elementCandidate) Detail(ctx context.Context) (Iterator, error) {
	if c.detail == nil {
		return nil, nil
	}
	return c.detail(c.el), nil
}
