package models

// StepKind classifies what a traversal step visited.
type StepKind string

const (
	// StepLeaf is a terminal item: a feed post, a reply, a carousel image.
	StepLeaf StepKind = "leaf"

	// StepContainer is an item that owned a detail sub-traversal (a thread
	// root, an overlay host). Its step is yielded after the sub-traversal
	// has been drained.
	StepContainer StepKind = "container"
)

// Step is the unit of visited work produced by one resumption of the
// traversal engine. It is consumed exactly once by the driver and never
// retained past the step: Node is a description, not a live reference,
// because the page may recycle the underlying element at any time.
type Step struct {
	// Node describes the visited node (selector, virtualization key, or a
	// short text summary). Informational only.
	Node string `json:"node"`

	// Kind classifies the visit.
	Kind StepKind `json:"kind"`

	// Wait signals that the driver should allow extra delay (network idle,
	// typically) before requesting the next step.
	Wait bool `json:"wait,omitempty"`
}

// StepResult is the state returned to the external driver for one advance
// call: the paired handle of the iterator protocol.
type StepResult struct {
	// Done is true once the traversal has exhausted the page: no new
	// candidates and no unexplored scroll extent. Exhaustion is a normal
	// terminal state, not an error.
	Done bool `json:"done"`

	// Wait mirrors Step.Wait for the step just performed.
	Wait bool `json:"wait,omitempty"`
}
