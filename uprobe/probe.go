package uprobe

// Thrower identifies the pipe (or other object) raising an event, for
// log prefixing. Pipes satisfy this with a single method rather than
// depending on the upipe package, avoiding an import cycle.
type Thrower interface {
	ProbeName() string
}

// Handler is one link in a probe chain. It returns true if it handled
// the event -- in the original's terms, catching it and stopping
// propagation -- or false to let it pass to the next probe.
type Handler interface {
	Catch(thrower Thrower, ev Event) (handled bool)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(thrower Thrower, ev Event) bool

// Catch implements Handler.
func (f HandlerFunc) Catch(thrower Thrower, ev Event) bool { return f(thrower, ev) }

// Chain is a head-to-tail list of probes. Throw walks the chain in
// order and stops at the first handler that reports handled, matching
// uprobe's "superpipe" delegation: a probe either consumes the event or
// forwards to uprobe->next.
type Chain struct {
	handlers []Handler
}

// NewChain builds a probe chain from handlers listed head-first: the
// first handler given gets first look at every event.
func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: append([]Handler(nil), handlers...)}
}

// Prepend installs h as the new head of the chain, the Go analogue of
// wrapping a probe around an existing uprobe pointer.
func (c *Chain) Prepend(h Handler) {
	c.handlers = append([]Handler{h}, c.handlers...)
}

// Throw walks the chain and returns whether any handler caught the
// event.
func (c *Chain) Throw(thrower Thrower, ev Event) (handled bool) {
	for _, h := range c.handlers {
		if h.Catch(thrower, ev) {
			return true
		}
	}
	return false
}
