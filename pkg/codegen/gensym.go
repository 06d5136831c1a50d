package codegen

import (
	"strconv"
	"sync/atomic"
)

// Gensym mints label names that are unique for the lifetime of the
// generator. It is safe for concurrent use.
type Gensym struct {
	next atomic.Uint64
}

// Labels is the process-wide generator every Context uses unless given its
// own.
var Labels = &Gensym{}

// Fresh returns prefix, an underscore and a number no earlier call returned.
func (g *Gensym) Fresh(prefix string) string {
	return prefix + "_" + strconv.FormatUint(g.next.Add(1)-1, 10)
}
