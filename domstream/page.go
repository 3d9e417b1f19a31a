package domstream

import (
	"context"
	"sync/atomic"

	"github.com/go-rod/rod"
)

// ObserveOptions selects what the page-side observer watches.
type ObserveOptions struct {
	// TargetSelector narrows observation to the first matching element.
	// Empty observes the whole document.
	TargetSelector string

	// Subtree and ChildList mirror the MutationObserverInit fields.
	// Both default to true via DefaultObserveOptions.
	Subtree    bool
	ChildList  bool
	Attributes bool
}

// DefaultObserveOptions watches child-list changes across the whole document.
func DefaultObserveOptions() ObserveOptions {
	return ObserveOptions{Subtree: true, ChildList: true}
}

// Page-global names for the observer handle and its batch buffer. The buffer
// is capped so a chatty page cannot grow it without bound between drains.
const (
	observeJS = `(sel, subtree, childList, attributes) => {
		if (window.__wrMutObserver) return false;
		let target = document;
		if (sel) {
			target = document.querySelector(sel);
			if (!target) throw new Error('observe target not found: ' + sel);
		}
		window.__wrMutBatches = [];
		const obs = new MutationObserver((records) => {
			let added = 0, removed = 0;
			for (const r of records) {
				added += r.addedNodes.length;
				removed += r.removedNodes.length;
			}
			const q = window.__wrMutBatches;
			q.push({ added: added, removed: removed, records: records.length });
			if (q.length > 500) q.splice(0, q.length - 500);
		});
		obs.observe(target, { subtree: subtree, childList: childList, attributes: attributes });
		window.__wrMutObserver = obs;
		return true;
	}`

	drainJS = `() => {
		const q = window.__wrMutBatches || [];
		return q.splice(0, q.length);
	}`

	disconnectJS = `() => {
		if (window.__wrMutObserver) {
			window.__wrMutObserver.disconnect();
			delete window.__wrMutObserver;
		}
		delete window.__wrMutBatches;
	}`
)

// PageSource is the rod-backed Source: the observer lives in the page and
// pushes batch summaries into a page-global buffer that Drain empties.
type PageSource struct {
	page      *rod.Page
	opts      ObserveOptions
	installed atomic.Bool
}

// NewPageSource creates a Source observing page with opts.
func NewPageSource(page *rod.Page, opts ObserveOptions) *PageSource {
	return &PageSource{page: page, opts: opts}
}

// Observe installs the page-side observer.
func (p *PageSource) Observe(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(observeJS,
		p.opts.TargetSelector, p.opts.Subtree, p.opts.ChildList, p.opts.Attributes)
	if err != nil {
		return err
	}
	p.installed.Store(true)
	return nil
}

// Drain empties the page-side buffer in one round-trip.
func (p *PageSource) Drain(ctx context.Context) ([]Batch, error) {
	res, err := p.page.Context(ctx).Eval(drainJS)
	if err != nil {
		return nil, err
	}

	var batches []Batch
	for _, v := range res.Value.Arr() {
		batches = append(batches, Batch{
			AddedNodes:   v.Get("added").Int(),
			RemovedNodes: v.Get("removed").Int(),
			Records:      v.Get("records").Int(),
		})
	}
	return batches, nil
}

// Disconnect releases the page-side observer. Idempotent; a failed eval
// (page already gone) still marks the source released.
func (p *PageSource) Disconnect() error {
	if !p.installed.CompareAndSwap(true, false) {
		return nil
	}
	_, err := p.page.Eval(disconnectJS)
	return err
}
