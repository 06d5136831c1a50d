package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/token"
	"github.com/xyproto/env/v2"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var (
	mu          sync.Mutex
	sourceFiles []SourceFileRecord
	out         io.Writer = os.Stderr
	useColor              = detectColor(os.Stderr)
)

func detectColor(f *os.File) bool {
	if env.Has("NO_COLOR") || env.Str("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	mu.Lock()
	defer mu.Unlock()
	sourceFiles = files
}

// AddSourceFile registers one more file and returns its index.
func AddSourceFile(rec SourceFileRecord) int {
	mu.Lock()
	defer mu.Unlock()
	sourceFiles = append(sourceFiles, rec)
	return len(sourceFiles) - 1
}

// SetOutput redirects diagnostics. Colour is decided again for the new stream.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	if f, ok := w.(*os.File); ok {
		useColor = detectColor(f)
	} else {
		useColor = false
	}
}

// SetColor forces colour on or off.
func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	useColor = enabled
}

func paint(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + "\033[0m"
}

// Diagnostic is an error anchored at a source token.
type Diagnostic struct {
	Tok token.Token
	Msg string
}

func (d *Diagnostic) Error() string {
	if d.Tok.Line == 0 {
		return d.Msg
	}
	return fmt.Sprintf("%d:%d: %s", d.Tok.Line, d.Tok.Column, d.Msg)
}

func (d *Diagnostic) Token() token.Token { return d.Tok }

// Located is implemented by errors that know where in the source they happened.
type Located interface {
	error
	Token() token.Token
}

// Errorf builds a Diagnostic.
func Errorf(tok token.Token, format string, args ...interface{}) error {
	return &Diagnostic{Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// findFileAndLine converts a global token to a file-specific location
func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "glisp", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), paint("\033[32m", caret))
}

func report(kind, color string, tok token.Token, msg, suffix string) {
	mu.Lock()
	defer mu.Unlock()
	if tok.Line == 0 {
		fmt.Fprintf(out, "glisp: %s %s%s\n", paint(color, kind+":"), msg, suffix)
		return
	}
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(out, "%s:%d:%d: %s %s%s\n", filename, line, col, paint(color, kind+":"), msg, suffix)
	printErrorLine(out, tok)
}

// Report prints any error. Errors carrying a token get a caret line.
func Report(err error) {
	var loc Located
	if errors.As(err, &loc) {
		msg := err.Error()
		var d *Diagnostic
		if errors.As(err, &d) {
			msg = d.Msg
		} else if m, ok := loc.(interface{ Message() string }); ok {
			msg = m.Message()
		}
		report("error", "\033[31m", loc.Token(), msg, "")
		return
	}
	report("error", "\033[31m", token.Token{}, err.Error(), "")
}

// Error prints a formatted error message and exits the program
func Error(tok token.Token, format string, args ...interface{}) {
	report("error", "\033[31m", tok, fmt.Sprintf(format, args...), "")
	os.Exit(1)
}

// Fatal reports err and exits the program.
func Fatal(err error) {
	Report(err)
	os.Exit(1)
}

// Info prints a driver status line.
func Info(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "glisp: info: "+format+"\n", args...)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	suffix := fmt.Sprintf(" [-W%s]", cfg.Warnings[wt].Name)
	report("warning", "\033[33m", tok, fmt.Sprintf(format, args...), suffix)
}

// AlignUp rounds n up to the next multiple of align, which must be a power of two.
func AlignUp(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
