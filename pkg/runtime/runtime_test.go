package runtime

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/glisp/pkg/asm"
)

var defineRe = regexp.MustCompile(`(?m)^#define (\w+) (0x[0-9a-f]+|\d+)$`)

func defines(t *testing.T) map[string]int64 {
	t.Helper()
	out := make(map[string]int64)
	for _, m := range defineRe.FindAllSubmatch(Source, -1) {
		v, err := strconv.ParseInt(string(m[2]), 0, 64)
		be.Err(t, err, nil)
		out[string(m[1])] = v
	}
	return out
}

func TestTagsAgreeWithCompiler(t *testing.T) {
	d := defines(t)
	want := map[string]int64{
		"INT_SHIFT":   asm.IntShift,
		"INT_MASK":    asm.IntMask,
		"INT_TAG":     asm.IntTag,
		"BOOL_SHIFT":  asm.BoolShift,
		"BOOL_MASK":   asm.BoolMask,
		"BOOL_TAG":    asm.BoolTag,
		"NIL_MASK":    asm.NilMask,
		"NIL_TAG":     asm.NilTag,
		"PAIR_MASK":   asm.PairMask,
		"PAIR_TAG":    asm.PairTag,
		"VECTOR_MASK": asm.VectorMask,
		"VECTOR_TAG":  asm.VectorTag,
	}
	for name, v := range want {
		got, ok := d[name]
		if !ok {
			t.Fatalf("runtime.c does not define %s", name)
		}
		be.Equal(t, got, v)
	}
}

func TestEntryPoints(t *testing.T) {
	be.True(t, bytes.Contains(Source, []byte("extern uint64_t lisp_entry(void *heap);")))
	be.True(t, bytes.Contains(Source, []byte("void lisp_error(")))
	be.True(t, bytes.Contains(Source, []byte("int main(")))
}

func TestWriteTo(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTo(dir)
	be.Err(t, err, nil)
	data, err := os.ReadFile(path)
	be.Err(t, err, nil)
	be.Equal(t, data, Source)
	be.Equal(t, filepath.Base(path), "runtime.c")

	_, err = WriteTo(dir + "/missing/dir")
	be.Err(t, err, "writing runtime")
}

// A .c file in this directory would make the go tool demand cgo.
func TestNoCSourcesInPackage(t *testing.T) {
	matches, err := filepath.Glob("*.c")
	be.Err(t, err, nil)
	be.Equal(t, len(matches), 0)
	be.True(t, len(Source) > 0)
}
