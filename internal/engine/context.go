package engine

// Context carries the transient, per-query state that the interpreter
// threads through a single call to Engine.Action: the rendered output
// lines, the leading-flag settings, whether a reference was followed,
// and whether the query mutated the tree. A fresh Context is built for
// every query, so "resetting" state between queries is just discarding
// the old one rather than zeroing a set of shared fields.
type Context struct {
	Output       []string
	AddContext   bool
	Strict       bool
	Dereferenced bool
	WriteNeeded  bool

	derefDepth int
}

func newContext() *Context {
	return &Context{}
}

func (c *Context) emit(line string) {
	c.Output = append(c.Output, line)
}
