package traverse

import (
	"context"

	"github.com/go-rod/rod"
)

// styleElementID marks the injected stylesheet so repeated injections are
// no-ops.
const styleElementID = "wr-behavior-style"

// VisitedAttr is the in-page marker attribute recording that a node has been
// yielded once by the current traversal run.
const VisitedAttr = "data-wr-visited"

const injectStyleJS = `(id, css) => {
	if (document.getElementById(id)) return false;
	const style = document.createElement('style');
	style.id = id;
	style.textContent = css;
	(document.head || document.documentElement).appendChild(style);
	return true;
}`

const baseCSS = `html { scroll-behavior: smooth; }`

const debugCSS = baseCSS + `
[` + VisitedAttr + `] { outline: 2px solid rgba(255, 0, 80, 0.6); }`

// InjectStyle inserts the behavior stylesheet at most once per page. The
// stylesheet enables smooth scrolling; with debugOutlines, visited nodes are
// outlined so behavior runs are observable in a headful browser. Returns
// true when the insert actually happened.
func InjectStyle(ctx context.Context, page *rod.Page, debugOutlines bool) (bool, error) {
	css := baseCSS
	if debugOutlines {
		css = debugCSS
	}
	res, err := page.Context(ctx).Eval(injectStyleJS, styleElementID, css)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}
