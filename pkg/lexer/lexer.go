package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/token"
	"github.com/xplshn/glisp/pkg/util"
)

// Tagged integers keep two bits for the tag.
const (
	MaxInt = 1<<61 - 1
	MinInt = -1 << 61
)

const identPunct = "+-*/<=>!?_%&$^~.:"

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg,
	}
}

// Tokenize lexes the whole source, EOF token included.
func Tokenize(source []rune, fileIndex int, cfg *config.Config) ([]token.Token, error) {
	l := NewLexer(source, fileIndex, cfg)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) Next() (token.Token, error) {
	for {
		l.skipWhitespace()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine), nil
		}

		ch := l.peek()
		if ch == ';' && l.cfg.IsFeatureEnabled(config.FeatComments) {
			l.lineComment()
			continue
		}
		if unicode.IsDigit(ch) || (ch == '-' && unicode.IsDigit(l.peekNext())) {
			return l.numberLiteral(startPos, startCol, startLine)
		}
		if isIdentRune(ch) {
			return l.identifierOrKeyword(startPos, startCol, startLine), nil
		}

		l.advance()
		switch ch {
		case '(':
			return l.makeToken(token.LParen, "", startPos, startCol, startLine), nil
		case ')':
			return l.makeToken(token.RParen, "", startPos, startCol, startLine), nil
		case '[', ']':
			if l.cfg.IsFeatureEnabled(config.FeatBrackets) {
				typ := token.LBracket
				if ch == ']' {
					typ = token.RBracket
				}
				return l.makeToken(typ, "", startPos, startCol, startLine), nil
			}
		}

		tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
		return tok, util.Errorf(tok, "unexpected character: '%c'", ch)
	}
}

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || strings.ContainsRune(identPunct, ch)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for isIdentRune(l.peek()) {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
	}
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) (token.Token, error) {
	if l.peek() == '-' {
		l.advance()
	}
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	// 12abc is one malformed atom, not a number followed by an identifier.
	for isIdentRune(l.peek()) {
		l.advance()
	}

	valueStr := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Number, valueStr, startPos, startCol, startLine)
	val, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return tok, util.Errorf(tok, "integer literal %s is out of range", valueStr)
		}
		return tok, util.Errorf(tok, "malformed number '%s'", valueStr)
	}
	if val > MaxInt || val < MinInt {
		return tok, util.Errorf(tok, "integer literal %s does not fit in %d bits", valueStr, 62)
	}
	return tok, nil
}
