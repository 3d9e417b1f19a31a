// Package introspect discovers virtualized-list rows through the page
// framework's internal component instances. Virtualized lists mount only the
// visible window of rows in the DOM, so selector queries under-report
// content; the internal instance tree still knows every currently rendered
// row and its stable virtualization key.
package introspect

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/traverse"
)

// ErrMissingInternalHandle means the host element carries no recognized
// internal-instance property. The page's framework internals changed and
// this adapter is stale for it; the behavior run must be abandoned, not
// retried.
var ErrMissingInternalHandle = errors.New("introspect: no internal handle on host element")

// ErrMissingListNode means the handle was found but no instance keyed by the
// configured list identifier exists beneath it. Same severity as a missing
// handle.
var ErrMissingListNode = errors.New("introspect: keyed list instance not found")

// handlePrefixes are the own-property prefixes under which the framework
// stores its instance handle on a host DOM node. Both the pre-17 and the
// current spelling are scanned.
var handlePrefixes = []string{"__reactFiber$", "__reactInternalInstance$"}

// rowKeyAttr is stamped onto each rendered row element so the Go side can
// reacquire it by selector after the instance walk.
const rowKeyAttr = "data-wr-row"

// collectRowsJS runs bound to the list host element. It locates the
// instance handle by prefix scan, walks child links to the instance keyed
// by listKey, then reads the host DOM reference of every rendered row off
// its children, tagging each with its virtualization key.
const collectRowsJS = `function (prefixes, listKey, attr) {
	let handleKey = null;
	for (const k of Object.keys(this)) {
		if (prefixes.some((p) => k.startsWith(p))) { handleKey = k; break; }
	}
	if (!handleKey) return { handle: false, list: false, rows: [] };

	let list = null;
	const stack = [this[handleKey]];
	const seen = new Set();
	while (stack.length) {
		const f = stack.pop();
		if (!f || seen.has(f)) continue;
		seen.add(f);
		if (f.key === listKey) { list = f; break; }
		if (f.child) stack.push(f.child);
		if (f.sibling) stack.push(f.sibling);
	}
	if (!list) return { handle: true, list: false, rows: [] };

	const rows = [];
	for (let row = list.child; row; row = row.sibling) {
		if (row.key == null) continue;
		let el = null;
		for (let f = row; f && !el; f = f.child) {
			if (f.stateNode instanceof Element) el = f.stateNode;
		}
		if (!el) continue;
		el.setAttribute(attr, String(row.key));
		rows.push(String(row.key));
	}
	return { handle: true, list: true, rows: rows };
}`

// Config describes one virtualized list to introspect.
type Config struct {
	// HostSelector matches the list's host DOM element, the one carrying
	// the internal instance handle.
	HostSelector string

	// ListKey is the stable key of the list instance beneath the handle.
	ListKey string

	// Kind classifies yielded steps. Defaults to StepLeaf when Detail is
	// nil and StepContainer otherwise.
	Kind models.StepKind

	// NeedsWait marks every row step as wanting extra driver delay.
	NeedsWait bool

	// Detail builds the per-row detail sub-traversal, nil for plain rows.
	Detail func(el *rod.Element) traverse.Iterator
}

// RowSource discovers currently rendered rows of a virtualized list. It
// implements traverse.Source; seen-key filtering happens by virtualization
// key, never DOM identity, because the list recycles elements between
// renders.
type RowSource struct {
	page *rod.Page
	cfg  Config
	seen map[string]struct{}
}

// NewRowSource creates a RowSource over page with cfg.
func NewRowSource(page *rod.Page, cfg Config) *RowSource {
	if cfg.Kind == "" {
		if cfg.Detail == nil {
			cfg.Kind = models.StepLeaf
		} else {
			cfg.Kind = models.StepContainer
		}
	}
	return &RowSource{page: page, cfg: cfg, seen: make(map[string]struct{})}
}

// Candidates implements traverse.Source. A missing handle or list instance
// is a structural mismatch and is returned as a terminal error.
func (s *RowSource) Candidates(ctx context.Context) ([]traverse.Candidate, error) {
	host, err := s.page.Context(ctx).Element(s.cfg.HostSelector)
	if err != nil {
		return nil, models.NewBehaviorError(models.ErrCodeStructuralMismatch,
			fmt.Sprintf("list host %q not found", s.cfg.HostSelector), err)
	}

	res, err := host.Context(ctx).Eval(collectRowsJS, handlePrefixes, s.cfg.ListKey, rowKeyAttr)
	if err != nil {
		return nil, err
	}
	if !res.Value.Get("handle").Bool() {
		return nil, models.NewBehaviorError(models.ErrCodeStructuralMismatch,
			"internal handle lookup failed", ErrMissingInternalHandle)
	}
	if !res.Value.Get("list").Bool() {
		return nil, models.NewBehaviorError(models.ErrCodeStructuralMismatch,
			fmt.Sprintf("list instance %q not found", s.cfg.ListKey), ErrMissingListNode)
	}

	var candidates []traverse.Candidate
	for _, v := range res.Value.Get("rows").Arr() {
		key := v.Str()
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}

		selector := fmt.Sprintf("[%s=%q]", rowKeyAttr, key)
		el, err := s.page.Context(ctx).Element(selector)
		if err != nil {
			// The row unmounted between the walk and the lookup; the next
			// query will surface it again if it remounts.
			delete(s.seen, key)
			continue
		}
		candidates = append(candidates, traverse.NewElementCandidate(
			el, key, s.cfg.Kind, s.cfg.NeedsWait, s.cfg.Detail))
	}
	return candidates, nil
}
