// Package runtime carries the C support code compiled programs link against:
// main, the value printer and lisp_error.
package runtime

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the name the runtime source is written under. The embedded
// copy is runtime.c.in so the package stays free of cgo.
const FileName = "runtime.c"

//go:embed runtime.c.in
var Source []byte

// WriteTo writes the runtime source into dir and returns its path.
func WriteTo(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, Source, 0o644); err != nil {
		return "", fmt.Errorf("writing runtime: %w", err)
	}
	return path, nil
}
