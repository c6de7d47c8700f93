// Package lexer turns netlist source text into a stream of tokens.
//
// The surface syntax lexed here (keywords, identifiers, the four numeric
// literal forms, '#' line comments) is grounded on
// original_source/src/lexer.cpp's tokenize_* functions. The
// scanning mechanics (state functions driving a Lexer, one rune of
// backup) follow the same pattern db47h-hwsim's internal/hdl/parse.go
// uses for its own connection-string lexer, built here on our own
// internal/lex engine (see that package's doc comment).
package lexer

import (
	"strings"

	"github.com/desfreng/netlist/internal/lex"
	"github.com/desfreng/netlist/token"
)

// Lexer produces tokens one at a time from the given source text.
type Lexer struct {
	l *lex.Lexer
}

// New returns a Lexer scanning src.
func New(src string) *Lexer {
	return &Lexer{l: lex.New(strings.NewReader(src), lexStart)}
}

// Next returns the next token in the input. Once EOI has been returned for
// the end of the input, subsequent calls keep returning EOI. An unknown
// character yields an EOI carrying a *LexError instead; a further call
// resumes scanning after that character.
func (lx *Lexer) Next() token.Token {
	it := lx.l.Lex()
	return token.Token{Type: it.Type, Value: it.Value, Pos: it.Pos}
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentBody(r rune) bool {
	return isIdentStart(r) || isDecDigit(r) || r == '\''
}

func isBinDigit(r rune) bool { return r == '0' || r == '1' }

func isDecDigit(r rune) bool { return r >= '0' && r <= '9' }

func isHexDigit(r rune) bool {
	return isDecDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func lexStart(l *lex.Lexer) lex.StateFn {
	r := l.Next()
	switch {
	case r == lex.EOF:
		l.Emit(token.EOI, nil)
		return nil
	case isSpace(r):
		l.Backup()
		l.AcceptWhile(isSpace)
		l.Ignore()
		return lexStart
	case r == '#':
		l.AcceptWhile(func(r rune) bool { return r != '\n' })
		l.Ignore()
		return lexStart
	case r == '=':
		l.Emit(token.EQUAL, nil)
		return nil
	case r == ',':
		l.Emit(token.COMMA, nil)
		return nil
	case r == ':':
		l.Emit(token.COLON, nil)
		return nil
	case r == '[':
		l.Emit(token.LBRACK, nil)
		return nil
	case r == ']':
		l.Emit(token.RBRACK, nil)
		return nil
	case r == '0':
		return lexZero
	case isDecDigit(r):
		return lexInteger
	case isIdentStart(r):
		return lexIdentifier
	default:
		l.Emit(token.EOI, &LexError{Pos: l.StartPos(), Rune: r})
		return nil
	}
}

// LexError is carried as the Value of an EOI token emitted in place of an
// unknown character, so the parser can surface it as a fatal diagnostic
// at the exact point scanning stopped.
type LexError struct {
	Pos  token.Pos
	Rune rune
}

// lexZero disambiguates '0' starting an INTEGER from the 0b/0d/0x
// prefixed constant forms, exactly as original_source/src/lexer.cpp's
// tokenize() dispatch on the character following a leading '0'.
func lexZero(l *lex.Lexer) lex.StateFn {
	r := l.Next()
	switch r {
	case 'b':
		l.AcceptWhile(isBinDigit)
		l.Emit(token.BINARY_CONSTANT, digitsOf(l.Token(), 2))
		return nil
	case 'd':
		l.AcceptWhile(isDecDigit)
		l.Emit(token.DECIMAL_CONSTANT, digitsOf(l.Token(), 2))
		return nil
	case 'x':
		l.AcceptWhile(isHexDigit)
		l.Emit(token.HEXADECIMAL_CONSTANT, digitsOf(l.Token(), 2))
		return nil
	default:
		l.Backup()
		return lexInteger
	}
}

// digitsOf strips the two-character prefix ("0b", "0d" or "0x") from a
// lexed token's raw text, returning just the digit run.
func digitsOf(raw string, prefixLen int) string {
	if len(raw) <= prefixLen {
		return ""
	}
	return raw[prefixLen:]
}

func lexInteger(l *lex.Lexer) lex.StateFn {
	l.AcceptWhile(isDecDigit)
	l.Emit(token.INTEGER, l.Token())
	return nil
}

func lexIdentifier(l *lex.Lexer) lex.StateFn {
	l.AcceptWhile(isIdentBody)
	spelling := l.Token()
	if kw, ok := token.Keywords[strings.ToUpper(spelling)]; ok {
		l.Emit(kw, spelling)
		return nil
	}
	l.Emit(token.IDENTIFIER, spelling)
	return nil
}
