package codegen

// Env maps identifiers to frame offsets. It is persistent: Bind returns a new
// environment and never changes the receiver. The nil *Env is empty.
type Env struct {
	name   string
	offset int64
	next   *Env
}

// Bind returns an environment where name resolves to offset. Earlier
// bindings of name are hidden, not removed.
func (e *Env) Bind(name string, offset int64) *Env {
	return &Env{name: name, offset: offset, next: e}
}

// Lookup returns the innermost offset bound to name.
func (e *Env) Lookup(name string) (int64, bool) {
	for ; e != nil; e = e.next {
		if e.name == name {
			return e.offset, true
		}
	}
	return 0, false
}

// Names lists the visible names, innermost first.
func (e *Env) Names() []string {
	var names []string
	seen := make(map[string]bool)
	for ; e != nil; e = e.next {
		if !seen[e.name] {
			seen[e.name] = true
			names = append(names, e.name)
		}
	}
	return names
}
