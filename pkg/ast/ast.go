// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"strconv"
	"strings"

	"github.com/xplshn/glisp/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	Bool
	Nil
	Ident
	UnaryOp
	BinaryOp
	If
	Let
	Do
	FuncCall

	// Top level
	FuncDef
	Program
)

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// Prim names a built-in primitive operation.
type Prim int

const (
	Add1 Prim = iota
	Sub1
	IsZero
	IsNum
	Not
	IsBool
	IsEmpty
	IsPair
	IsVector

	Plus
	Minus
	Eq
	Lt
	Times
	Div
)

var PrimNames = map[string]Prim{
	"add1":    Add1,
	"sub1":    Sub1,
	"zero?":   IsZero,
	"num?":    IsNum,
	"not":     Not,
	"bool?":   IsBool,
	"empty?":  IsEmpty,
	"pair?":   IsPair,
	"vector?": IsVector,
	"+":       Plus,
	"-":       Minus,
	"=":       Eq,
	"<":       Lt,
	"*":       Times,
	"/":       Div,
}

var primStrings = make(map[Prim]string)

func init() {
	for name, p := range PrimNames {
		primStrings[p] = name
	}
}

func (p Prim) String() string { return primStrings[p] }

// Arity is 1 for unary primitives and 2 for binary ones.
func (p Prim) Arity() int {
	if p >= Plus {
		return 2
	}
	return 1
}

// IsTagPredicate reports whether p only inspects the tag bits of a heap or
// list value.
func (p Prim) IsTagPredicate() bool {
	return p == IsBool || p == IsEmpty || p == IsPair || p == IsVector
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type BoolNode struct{ Value bool }
type NilNode struct{}
type IdentNode struct{ Name string }
type UnaryOpNode struct {
	Op   Prim
	Expr *Node
}
type BinaryOpNode struct {
	Op          Prim
	Left, Right *Node
}
type IfNode struct{ Cond, Then, Else *Node }
type Binding struct {
	Name  string
	Tok   token.Token
	Value *Node
}
type LetNode struct {
	Bindings []Binding
	Body     *Node
}
type DoNode struct{ Exprs []*Node }
type FuncCallNode struct {
	Name string
	Args []*Node
}
type FuncDefNode struct {
	Name   string
	Params []*Node
	Body   *Node
}
type ProgramNode struct{ Forms []*Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewBool(tok token.Token, value bool) *Node {
	return newNode(tok, Bool, BoolNode{Value: value})
}
func NewNil(tok token.Token) *Node {
	return newNode(tok, Nil, NilNode{})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewUnaryOp(tok token.Token, op Prim, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewBinaryOp(tok token.Token, op Prim, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewIf(tok token.Token, cond, then, els *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, Then: then, Else: els}, cond, then, els)
}
func NewLet(tok token.Token, bindings []Binding, body *Node) *Node {
	node := newNode(tok, Let, LetNode{Bindings: bindings, Body: body}, body)
	for _, b := range bindings {
		b.Value.Parent = node
	}
	return node
}
func NewDo(tok token.Token, exprs []*Node) *Node {
	return newNode(tok, Do, DoNode{Exprs: exprs}, exprs...)
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args}, args...)
}
func NewFuncDef(tok token.Token, name string, params []*Node, body *Node) *Node {
	node := newNode(tok, FuncDef, FuncDefNode{Name: name, Params: params, Body: body}, body)
	for _, p := range params {
		p.Parent = node
	}
	return node
}
func NewProgram(tok token.Token, forms []*Node) *Node {
	return newNode(tok, Program, ProgramNode{Forms: forms}, forms...)
}

// Children returns the direct sub-nodes of n in evaluation order.
func (n *Node) Children() []*Node {
	switch d := n.Data.(type) {
	case UnaryOpNode:
		return []*Node{d.Expr}
	case BinaryOpNode:
		return []*Node{d.Left, d.Right}
	case IfNode:
		return []*Node{d.Cond, d.Then, d.Else}
	case LetNode:
		kids := make([]*Node, 0, len(d.Bindings)+1)
		for _, b := range d.Bindings {
			kids = append(kids, b.Value)
		}
		return append(kids, d.Body)
	case DoNode:
		return d.Exprs
	case FuncCallNode:
		return d.Args
	case FuncDefNode:
		return append(append([]*Node{}, d.Params...), d.Body)
	case ProgramNode:
		return d.Forms
	}
	return nil
}

// Walk visits node and then every descendant, depth first.
func Walk(node *Node, visitor func(n *Node)) {
	if node == nil {
		return
	}
	visitor(node)
	for _, child := range node.Children() {
		Walk(child, visitor)
	}
}

// References reports whether name occurs free in node.
func References(node *Node, name string) bool {
	if node == nil {
		return false
	}
	switch d := node.Data.(type) {
	case IdentNode:
		return d.Name == name
	case LetNode:
		for _, b := range d.Bindings {
			if References(b.Value, name) {
				return true
			}
			if b.Name == name {
				return false
			}
		}
		return References(d.Body, name)
	case FuncDefNode:
		for _, p := range d.Params {
			if p.Data.(IdentNode).Name == name {
				return false
			}
		}
		return References(d.Body, name)
	}
	for _, child := range node.Children() {
		if References(child, name) {
			return true
		}
	}
	return false
}

// String renders node back as an s-expression.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	if n == nil {
		sb.WriteString("<nil>")
		return
	}
	list := func(head string, items ...*Node) {
		sb.WriteString("(" + head)
		for _, it := range items {
			sb.WriteString(" ")
			it.write(sb)
		}
		sb.WriteString(")")
	}
	switch d := n.Data.(type) {
	case NumberNode:
		sb.WriteString(strconv.FormatInt(d.Value, 10))
	case BoolNode:
		sb.WriteString(strconv.FormatBool(d.Value))
	case NilNode:
		sb.WriteString("()")
	case IdentNode:
		sb.WriteString(d.Name)
	case UnaryOpNode:
		list(d.Op.String(), d.Expr)
	case BinaryOpNode:
		list(d.Op.String(), d.Left, d.Right)
	case IfNode:
		list("if", d.Cond, d.Then, d.Else)
	case LetNode:
		sb.WriteString("(let (")
		for i, b := range d.Bindings {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString("(" + b.Name + " ")
			b.Value.write(sb)
			sb.WriteString(")")
		}
		sb.WriteString(") ")
		d.Body.write(sb)
		sb.WriteString(")")
	case DoNode:
		list("do", d.Exprs...)
	case FuncCallNode:
		list(d.Name, d.Args...)
	case FuncDefNode:
		sb.WriteString("(define (" + d.Name)
		for _, p := range d.Params {
			sb.WriteString(" " + p.Data.(IdentNode).Name)
		}
		sb.WriteString(") ")
		d.Body.write(sb)
		sb.WriteString(")")
	case ProgramNode:
		for i, f := range d.Forms {
			if i > 0 {
				sb.WriteString("\n")
			}
			f.write(sb)
		}
	}
}
