package behavior

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/go-rod/rod"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/domstream"
	"github.com/webrecorder/autobrowser/introspect"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/traverse"
)

// AutoScrollName is the registry name of the fallback behavior used when no
// rule matches a URL.
const AutoScrollName = "autoscroll"

// Builder constructs the traversal iterator for one page. The pause flag is
// shared with the owning Behavior; builders thread it into every Feed they
// create.
type Builder func(page *rod.Page, cfg config.BehaviorConfig, pause *atomic.Bool) (traverse.Iterator, error)

// Rule maps a URL shape to a named behavior. Host matching is by suffix
// ("twitter.com" matches "mobile.twitter.com"), path matching by prefix.
// An empty PathPrefix matches every path on the host.
type Rule struct {
	Name       string
	HostSuffix string
	PathPrefix string
	Build      Builder
}

func (r Rule) matches(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host != r.HostSuffix && !strings.HasSuffix(host, "."+r.HostSuffix) {
		return false
	}
	return r.PathPrefix == "" || strings.HasPrefix(u.Path, r.PathPrefix)
}

// Registry resolves URLs to behaviors. Rules are checked in registration
// order, first match wins; unmatched URLs fall back to autoscroll.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRegistry returns an empty registry. Resolution still works: everything
// falls through to autoscroll.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a rule.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// Names lists the registered behavior names plus the autoscroll fallback.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.rules)+1)
	for _, rule := range r.rules {
		names = append(names, rule.Name)
	}
	return append(names, AutoScrollName)
}

// Resolve picks the behavior for a URL. Never fails: the fallback always
// applies.
func (r *Registry) Resolve(u *url.URL) (string, Builder) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.matches(u) {
			return rule.Name, rule.Build
		}
	}
	return AutoScrollName, AutoScroll
}

// ResolveByName looks a behavior up by its registry name, for callers that
// pin a behavior instead of matching the URL.
func (r *Registry) ResolveByName(name string) (Builder, bool) {
	if name == AutoScrollName {
		return AutoScroll, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.Name == name {
			return rule.Build, true
		}
	}
	return nil, false
}

// FeedSpec declares a selector-driven feed behavior. Selectors are
// validated at registration so a typo fails fast instead of producing an
// empty traversal at run time.
type FeedSpec struct {
	// ItemSelector matches the feed items to visit.
	ItemSelector string

	// DetailSelector, when set, gives each item a detail sub-traversal
	// over its matching descendants (expanded replies, carousel panes).
	DetailSelector string

	// NeedsWait marks every item step as wanting extra driver delay.
	NeedsWait bool

	// Virtualized switches discovery from DOM queries to framework
	// introspection; the two fields below only apply then.
	Virtualized  bool
	HostSelector string
	ListKey      string
}

// NewFeedRule builds a registry rule from a FeedSpec.
func NewFeedRule(name, hostSuffix, pathPrefix string, spec FeedSpec) (Rule, error) {
	for _, sel := range []string{spec.ItemSelector, spec.DetailSelector, spec.HostSelector} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Parse(sel); err != nil {
			return Rule{}, models.NewBehaviorError(models.ErrCodeInvalidInput,
				fmt.Sprintf("invalid selector %q", sel), err)
		}
	}
	if spec.ItemSelector == "" && !spec.Virtualized {
		return Rule{}, models.NewBehaviorError(models.ErrCodeInvalidInput,
			"feed rule needs an item selector", nil)
	}
	if spec.Virtualized && (spec.HostSelector == "" || spec.ListKey == "") {
		return Rule{}, models.NewBehaviorError(models.ErrCodeInvalidInput,
			"virtualized feed rule needs a host selector and list key", nil)
	}

	return Rule{
		Name:       name,
		HostSuffix: hostSuffix,
		PathPrefix: pathPrefix,
		Build: func(page *rod.Page, cfg config.BehaviorConfig, pause *atomic.Bool) (traverse.Iterator, error) {
			return buildFeed(page, cfg, pause, spec)
		},
	}, nil
}

// MustFeedRule is NewFeedRule for statically declared rules.
func MustFeedRule(name, hostSuffix, pathPrefix string, spec FeedSpec) Rule {
	rule, err := NewFeedRule(name, hostSuffix, pathPrefix, spec)
	if err != nil {
		panic(err)
	}
	return rule
}

func buildFeed(page *rod.Page, cfg config.BehaviorConfig, pause *atomic.Bool, spec FeedSpec) (traverse.Iterator, error) {
	var detail func(el *rod.Element) traverse.Iterator
	if spec.DetailSelector != "" {
		detail = func(el *rod.Element) traverse.Iterator {
			return newDetailIterator(el, spec.DetailSelector)
		}
	}

	var source traverse.Source
	if spec.Virtualized {
		source = introspect.NewRowSource(page, introspect.Config{
			HostSelector: spec.HostSelector,
			ListKey:      spec.ListKey,
			NeedsWait:    spec.NeedsWait,
			Detail:       detail,
		})
	} else {
		source = traverse.NewDOMSource(page, traverse.DOMConfig{
			ItemSelector: spec.ItemSelector,
			NeedsWait:    spec.NeedsWait,
			Detail:       detail,
		})
	}

	return traverse.NewFeed(source, traverse.NewPageScroller(page), traverse.FeedConfig{
		SettleDelay: cfg.SettleDelay,
		LoadWait:    cfg.LoadWait,
		LoadSignal:  mutationLoadSignal(page, cfg),
		Pause:       pause,
	}), nil
}

// mutationLoadSignal waits for late content by racing "a DOM mutation
// arrived" against "the load-wait bound elapsed". Either outcome releases
// the observer; the bound elapsing is not an error, it just means nothing
// came.
func mutationLoadSignal(page *rod.Page, cfg config.BehaviorConfig) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		deadline := time.Now().Add(cfg.LoadWait)
		stream := domstream.New(
			domstream.NewPageSource(page, domstream.DefaultObserveOptions()),
			domstream.Config{
				StopPollInterval: cfg.StopPollInterval,
				Stop: func(context.Context) (bool, error) {
					return time.Now().After(deadline), nil
				},
			},
		)
		defer stream.Disconnect()

		_, err := stream.Next(ctx)
		if errors.Is(err, domstream.ErrDone) {
			return nil
		}
		return err
	}
}

// newDetailIterator yields one leaf step per element matching sel inside
// parent, marking each so repeated delegation never re-yields them. Detail
// sub-traversals do not scroll or settle; the parent visit already did.
func newDetailIterator(parent *rod.Element, sel string) traverse.Iterator {
	selector := fmt.Sprintf("%s:not([%s])", sel, traverse.VisitedAttr)
	return detailSteps(
		func(ctx context.Context) (rod.Elements, error) {
			return parent.Context(ctx).Elements(selector)
		},
		traverse.MarkVisited,
	)
}

// detailSteps drives the detail protocol over an injected query and marker.
func detailSteps(query func(context.Context) (rod.Elements, error), mark func(context.Context, *rod.Element) error) traverse.Iterator {
	idx := 0
	return traverse.Func(func(ctx context.Context) (*models.Step, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		els, err := query(ctx)
		if err != nil {
			// A failed query is a terminal fault, not exhaustion: the page
			// is in unknown state and continuing is unsafe.
			return nil, err
		}
		if len(els) == 0 {
			return nil, traverse.ErrExhausted
		}
		if err := mark(ctx, els[0]); err != nil {
			return nil, err
		}
		idx++
		return &models.Step{
			Node: fmt.Sprintf("detail-%d", idx),
			Kind: models.StepLeaf,
		}, nil
	})
}
