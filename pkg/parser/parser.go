package parser

import (
	"strconv"

	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/token"
	"github.com/xplshn/glisp/pkg/util"
)

type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	cfg      *config.Config
}

func NewParser(tokens []token.Token, cfg *config.Config) *Parser {
	p := &Parser{tokens: tokens, cfg: cfg}
	if len(tokens) > 0 {
		p.current = tokens[0]
	}
	return p
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		} else {
			p.current = token.Token{Type: token.EOF, Line: p.previous.Line, Column: p.previous.Column + p.previous.Len, FileIndex: p.previous.FileIndex}
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return token.Token{Type: token.EOF}
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) isOpen() bool { return p.check(token.LParen) || p.check(token.LBracket) }

func (p *Parser) isClose() bool { return p.check(token.RParen) || p.check(token.RBracket) }

// open consumes an opening delimiter and returns the matching closer.
func (p *Parser) open() (token.Type, error) {
	switch p.current.Type {
	case token.LParen:
		p.advance()
		return token.RParen, nil
	case token.LBracket:
		p.advance()
		return token.RBracket, nil
	}
	return token.EOF, util.Errorf(p.current, "expected '(' but found %s", p.current.Describe())
}

func (p *Parser) close(closer token.Type, opener token.Token) error {
	if p.check(closer) {
		p.advance()
		return nil
	}
	if p.check(token.EOF) {
		return util.Errorf(opener, "unclosed %s", opener.Describe())
	}
	return util.Errorf(p.current, "expected %s but found %s", closer, p.current.Describe())
}

// Parse reads every top-level form.
func (p *Parser) Parse() (*ast.Node, error) {
	start := p.current
	var forms []*ast.Node
	for !p.check(token.EOF) {
		var form *ast.Node
		var err error
		if p.isOpen() && p.peek().Type == token.Define {
			form, err = p.parseDefine()
		} else {
			form, err = p.parseExpr()
		}
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	return ast.NewProgram(start, forms), nil
}

// ParseExpr reads exactly one expression and requires the input to end there.
func (p *Parser) ParseExpr() (*ast.Node, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.check(token.EOF) {
		return nil, util.Errorf(p.current, "unexpected %s after expression", p.current.Describe())
	}
	return expr, nil
}

func (p *Parser) parseDefine() (*ast.Node, error) {
	opener := p.current
	closer, _ := p.open()
	p.advance()

	sigOpener := p.current
	sigCloser, err := p.open()
	if err != nil {
		return nil, util.Errorf(p.current, "expected '(' to start the signature of a definition, found %s", p.current.Describe())
	}
	if !p.check(token.Ident) {
		return nil, util.Errorf(p.current, "expected a function name, found %s", p.current.Describe())
	}
	nameTok := p.current
	if err := p.checkBindable(nameTok, "function"); err != nil {
		return nil, err
	}
	p.advance()

	var params []*ast.Node
	for !p.isClose() && !p.check(token.EOF) {
		if !p.check(token.Ident) {
			return nil, util.Errorf(p.current, "expected a parameter name, found %s", p.current.Describe())
		}
		if err := p.checkBindable(p.current, "parameter"); err != nil {
			return nil, err
		}
		params = append(params, ast.NewIdent(p.current, p.current.Value))
		p.advance()
	}
	if err := p.close(sigCloser, sigOpener); err != nil {
		return nil, err
	}

	if p.isClose() {
		return nil, util.Errorf(p.current, "definition of '%s' has no body", nameTok.Value)
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.close(closer, opener); err != nil {
		return nil, err
	}
	return ast.NewFuncDef(nameTok, nameTok.Value, params, body), nil
}

// checkBindable rejects names that would hide a primitive.
func (p *Parser) checkBindable(tok token.Token, what string) error {
	if prim, ok := p.primitive(tok.Value); ok {
		return util.Errorf(tok, "cannot use primitive '%s' as a %s name", prim, what)
	}
	return nil
}

func (p *Parser) primitive(name string) (ast.Prim, bool) {
	prim, ok := ast.PrimNames[name]
	if !ok {
		return 0, false
	}
	if prim.IsTagPredicate() && !p.cfg.IsFeatureEnabled(config.FeatTagPredicates) {
		return 0, false
	}
	if (prim == ast.Times || prim == ast.Div) && !p.cfg.IsFeatureEnabled(config.FeatMulDiv) {
		return 0, false
	}
	return prim, true
}

func (p *Parser) parseExpr() (*ast.Node, error) {
	tok := p.current
	switch tok.Type {
	case token.Number:
		p.advance()
		val, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, util.Errorf(tok, "malformed number '%s'", tok.Value)
		}
		return ast.NewNumber(tok, val), nil
	case token.True, token.False:
		p.advance()
		return ast.NewBool(tok, tok.Type == token.True), nil
	case token.Nil:
		p.advance()
		return ast.NewNil(tok), nil
	case token.Ident:
		p.advance()
		if prim, ok := p.primitive(tok.Value); ok {
			return nil, util.Errorf(tok, "primitive '%s' is not a value; call it as (%s ...)", prim, prim)
		}
		return ast.NewIdent(tok, tok.Value), nil
	case token.LParen, token.LBracket:
		return p.parseList()
	case token.EOF:
		return nil, util.Errorf(tok, "unexpected end of input, expected an expression")
	case token.RParen, token.RBracket:
		return nil, util.Errorf(tok, "unexpected %s", tok.Describe())
	}
	return nil, util.Errorf(tok, "unexpected keyword '%s' outside of a form", tok.Type)
}

func (p *Parser) parseList() (*ast.Node, error) {
	opener := p.current
	closer, _ := p.open()

	if p.isClose() {
		if err := p.close(closer, opener); err != nil {
			return nil, err
		}
		return ast.NewNil(opener), nil
	}

	head := p.current
	var node *ast.Node
	var err error
	switch head.Type {
	case token.If:
		p.advance()
		node, err = p.parseIf(opener)
	case token.Let:
		p.advance()
		node, err = p.parseLet(opener)
	case token.Do:
		p.advance()
		node, err = p.parseDo(opener)
	case token.Define:
		return nil, util.Errorf(head, "'define' is only allowed at the top level")
	case token.Ident:
		p.advance()
		if prim, ok := p.primitive(head.Value); ok {
			node, err = p.parsePrim(head, prim)
		} else {
			node, err = p.parseCall(head)
		}
	default:
		return nil, util.Errorf(head, "expected an operator or function name, found %s", head.Describe())
	}
	if err != nil {
		return nil, err
	}
	if err := p.close(closer, opener); err != nil {
		return nil, err
	}
	return node, nil
}

// parseArgs reads expressions up to the closing delimiter.
func (p *Parser) parseArgs() ([]*ast.Node, error) {
	var args []*ast.Node
	for !p.isClose() && !p.check(token.EOF) {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func (p *Parser) parsePrim(head token.Token, prim ast.Prim) (*ast.Node, error) {
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	if len(args) != prim.Arity() {
		return nil, util.Errorf(head, "'%s' expects %d argument(s), got %d", prim, prim.Arity(), len(args))
	}
	if prim.Arity() == 1 {
		return ast.NewUnaryOp(head, prim, args[0]), nil
	}
	return ast.NewBinaryOp(head, prim, args[0], args[1]), nil
}

func (p *Parser) parseCall(head token.Token) (*ast.Node, error) {
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	return ast.NewFuncCall(head, head.Value, args), nil
}

func (p *Parser) parseIf(opener token.Token) (*ast.Node, error) {
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	if len(args) != 3 {
		return nil, util.Errorf(opener, "'if' expects a condition, a then branch and an else branch, got %d expression(s)", len(args))
	}
	return ast.NewIf(opener, args[0], args[1], args[2]), nil
}

func (p *Parser) parseDo(opener token.Token) (*ast.Node, error) {
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, util.Errorf(opener, "'do' needs at least one expression")
	}
	return ast.NewDo(opener, args), nil
}

func (p *Parser) parseLet(opener token.Token) (*ast.Node, error) {
	listOpener := p.current
	listCloser, err := p.open()
	if err != nil {
		return nil, util.Errorf(p.current, "expected a binding list after 'let', found %s", p.current.Describe())
	}

	var bindings []ast.Binding
	for !p.isClose() && !p.check(token.EOF) {
		bOpener := p.current
		bCloser, err := p.open()
		if err != nil {
			return nil, util.Errorf(p.current, "expected a binding like (name value), found %s", p.current.Describe())
		}
		if !p.check(token.Ident) {
			return nil, util.Errorf(p.current, "expected a variable name, found %s", p.current.Describe())
		}
		nameTok := p.current
		if err := p.checkBindable(nameTok, "variable"); err != nil {
			return nil, err
		}
		p.advance()
		if p.isClose() {
			return nil, util.Errorf(nameTok, "binding for '%s' has no value", nameTok.Value)
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.close(bCloser, bOpener); err != nil {
			return nil, err
		}
		bindings = append(bindings, ast.Binding{Name: nameTok.Value, Tok: nameTok, Value: value})
	}
	if err := p.close(listCloser, listOpener); err != nil {
		return nil, err
	}

	if p.isClose() {
		return nil, util.Errorf(opener, "'let' has no body")
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.NewLet(opener, bindings, body), nil
}
