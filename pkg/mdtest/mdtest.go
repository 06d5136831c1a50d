// Package mdtest reads compiler test cases written as markdown documents.
//
// A case starts at a heading "Test: <name>" and owns the fenced code blocks
// up to the next such heading: exactly one `lisp` input fence and at least one
// assertion fence (`result`, `asm`, `ast` or `compile-error`).
package mdtest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// InputFence is the fence language of a test program.
const InputFence = "lisp"

// AssertionType is the fence language of an assertion.
type AssertionType string

const (
	// AssertResult is the printed value of the program.
	AssertResult AssertionType = "result"
	// AssertAsm is the exact assembly text.
	AssertAsm AssertionType = "asm"
	// AssertAST is the parsed program rendered back as s-expressions.
	AssertAST AssertionType = "ast"
	// AssertCompileError is a substring of the expected compile error.
	AssertCompileError AssertionType = "compile-error"
)

type Assertion struct {
	Type    AssertionType
	Content string
	Line    int
}

// Case is one test extracted from a document.
type Case struct {
	Name       string
	Input      string
	Line       int
	Assertions []Assertion
}

// Extract parses a markdown document and returns its test cases in order.
func Extract(markdown []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var cases []Case
	var current *Case
	finish := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, markdown)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{Name: strings.TrimSpace(strings.TrimPrefix(heading, "Test: "))}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(markdown))
			line := lineOf(n, markdown)
			if lang == "" {
				return ast.WalkContinue, nil
			}
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of a test case", line, lang)
			}
			content := strings.TrimRight(fenceContent(n, markdown), "\n")
			switch {
			case lang == InputFence:
				if current.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple input fences in test '%s'", line, current.Name)
				}
				current.Input, current.Line = content, line
			case isAssertion(lang):
				current.Assertions = append(current.Assertions, Assertion{Type: AssertionType(lang), Content: content, Line: line})
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading test cases: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

func isAssertion(lang string) bool {
	switch AssertionType(lang) {
	case AssertResult, AssertAsm, AssertAST, AssertCompileError:
		return true
	}
	return false
}

func validate(c *Case) error {
	if c.Input == "" {
		return fmt.Errorf("test '%s' has no %s fence", c.Name, InputFence)
	}
	if len(c.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", c.Name)
	}
	return nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// lineOf is the 1-based line of the first content line of node.
func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	start := node.Lines().At(0).Start
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
