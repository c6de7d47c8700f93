// Package parser implements a recursive-descent, one-token-lookahead
// parser: it turns a token stream into an *ast.Program, performing every
// semantic check up front (redeclaration, width mismatches, out-of-range
// SELECT/SLICE, literal overflow, ...) so that nothing downstream ever
// needs to re-validate those invariants.
//
// The grammar and the numeric-literal width rules are grounded on
// original_source/src/parser.cpp (parse_argument, parse_equation, the
// MUX true/false-branch parse order) and original_source/src/lexer.cpp
// (the four literal forms). The MUX data-operand selection itself is
// deliberately the opposite of what original_source's own evaluator
// does (choice=1 selects the second operand here); see DESIGN.md.
package parser

import (
	"strconv"

	"github.com/desfreng/netlist/ast"
	"github.com/desfreng/netlist/diag"
	"github.com/desfreng/netlist/lexer"
	"github.com/desfreng/netlist/token"
	"github.com/pkg/errors"
)

const maxWidth = 64

// Parser turns netlist source text into an *ast.Program.
type Parser struct {
	lx   *lexer.Lexer
	tok  token.Token
	ctx  *diag.Context
	prog *ast.Program
}

// Parse parses src and returns the resulting program, any warnings
// collected along the way, and the first fatal diagnostic encountered (if
// any). Parsing is fail-fast: it stops at the first fatal error.
func Parse(src string) (*ast.Program, *diag.Context, error) {
	p := &Parser{
		lx:   lexer.New(src),
		ctx:  &diag.Context{},
		prog: ast.NewProgram(),
	}
	p.advance()
	if err := p.parseProgram(); err != nil {
		return nil, p.ctx, err
	}
	return p.prog, p.ctx, nil
}

func (p *Parser) advance() {
	p.tok = p.lx.Next()
}

// ParseLiteral parses text as a single numeric literal (bare INTEGER or
// a 0b/0d/0x-prefixed constant, with its optional ":width" suffix), for
// use outside a full netlist program: memory image files and per-cycle
// input files reuse the surface language's literal grammar rather than
// inventing a second one.
func ParseLiteral(text string) (ast.Arg, error) {
	p := &Parser{lx: lexer.New(text), prog: ast.NewProgram()}
	p.advance()
	a, err := p.parseArg()
	if err != nil {
		return ast.Arg{}, err
	}
	if !a.IsConst {
		return ast.Arg{}, diag.Errorf(diag.CodeParseMalformedLiteral, a.Pos, "expected a literal, got a variable reference")
	}
	if p.tok.Type != token.EOI {
		return ast.Arg{}, p.errf(diag.CodeParseUnexpectedToken, "unexpected trailing input after literal")
	}
	return a, nil
}

// lexErr reports the lexer error carried by the current token, if any.
func (p *Parser) lexErr() error {
	if p.tok.Type == token.EOI {
		if le, ok := p.tok.Value.(*lexer.LexError); ok {
			return diag.Errorf(diag.CodeLexUnknownChar, le.Pos, "unknown character %q", le.Rune)
		}
	}
	return nil
}

func (p *Parser) errf(code int, format string, args ...interface{}) error {
	if err := p.lexErr(); err != nil {
		return err
	}
	return diag.Errorf(code, p.tok.Pos, format, args...)
}

func (p *Parser) expect(tt token.Type) (token.Token, error) {
	if p.tok.Type != tt {
		return token.Token{}, p.errf(diag.CodeParseUnexpectedToken, "expected %s, got %s", tt, p.tok.Type)
	}
	t := p.tok
	p.advance()
	return t, nil
}

func (p *Parser) parseProgram() error {
	if _, err := p.expect(token.INPUT); err != nil {
		return err
	}
	inputs, err := p.parseIdList()
	if err != nil {
		return err
	}

	if _, err := p.expect(token.OUTPUT); err != nil {
		return err
	}
	outputs, err := p.parseIdList()
	if err != nil {
		return err
	}

	if _, err := p.expect(token.VAR); err != nil {
		return err
	}
	if err := p.parseVarDecls(); err != nil {
		return err
	}

	if _, err := p.expect(token.IN); err != nil {
		return err
	}

	if err := p.resolveIO(inputs, outputs); err != nil {
		return err
	}

	if err := p.parseEquations(); err != nil {
		return err
	}

	if _, err := p.expect(token.EOI); err != nil {
		return err
	}

	return p.checkComplete()
}

// parseIdList parses a possibly-empty comma-separated identifier list. It
// stops as soon as the next token cannot start an identifier (the
// keywords OUTPUT/VAR/IN all terminate a list without an explicit
// terminator).
func (p *Parser) parseIdList() ([]token.Token, error) {
	var ids []token.Token
	if p.tok.Type != token.IDENTIFIER {
		return ids, nil
	}
	for {
		id, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if p.tok.Type != token.COMMA {
			break
		}
		p.advance()
	}
	return ids, nil
}

func (p *Parser) parseVarDecls() error {
	for p.tok.Type == token.IDENTIFIER {
		name := p.tok
		p.advance()

		width := 1
		if p.tok.Type == token.COLON {
			p.advance()
			w, err := p.parseDecimalInt()
			if err != nil {
				return err
			}
			width = w
		}
		if width < 1 || width > maxWidth {
			return diag.Errorf(diag.CodeParseBusTooWide, name.Pos, "bus width %d for %q out of range [1,%d]", width, name.Value, maxWidth)
		}
		if _, dup := p.prog.Vars[name.Value.(string)]; dup {
			return diag.Errorf(diag.CodeParseDuplicateDecl, name.Pos, "variable %q redeclared", name.Value)
		}
		decl := &ast.VarDecl{Name: name.Value.(string), Width: width, Pos: name.Pos}
		p.prog.Vars[decl.Name] = decl
		p.prog.VarOrder = append(p.prog.VarOrder, decl.Name)

		if p.tok.Type != token.COMMA {
			break
		}
		p.advance()
		if p.tok.Type != token.IDENTIFIER {
			return p.errf(diag.CodeParseUnexpectedToken, "trailing comma in VAR list")
		}
	}
	return nil
}

func (p *Parser) resolveIO(inputs, outputs []token.Token) error {
	for _, id := range inputs {
		name := id.Value.(string)
		decl, ok := p.prog.Vars[name]
		if !ok {
			return diag.Errorf(diag.CodeParseUndeclared, id.Pos, "input %q not declared in VAR", name)
		}
		if decl.IsInput {
			return diag.Errorf(diag.CodeParseRedundantIO, id.Pos, "input %q listed more than once", name)
		}
		decl.IsInput = true
		p.prog.Inputs = append(p.prog.Inputs, name)
	}
	for _, id := range outputs {
		name := id.Value.(string)
		decl, ok := p.prog.Vars[name]
		if !ok {
			return diag.Errorf(diag.CodeParseUndeclared, id.Pos, "output %q not declared in VAR", name)
		}
		if decl.IsOutput {
			return diag.Errorf(diag.CodeParseRedundantIO, id.Pos, "output %q listed more than once", name)
		}
		decl.IsOutput = true
		p.prog.Outputs = append(p.prog.Outputs, name)
	}
	return nil
}

func (p *Parser) parseEquations() error {
	for p.tok.Type == token.IDENTIFIER {
		lhs := p.tok
		p.advance()
		if _, err := p.expect(token.EQUAL); err != nil {
			return err
		}

		name := lhs.Value.(string)
		decl, ok := p.prog.Vars[name]
		if !ok {
			return diag.Errorf(diag.CodeParseUndeclared, lhs.Pos, "assignment to undeclared variable %q", name)
		}
		if decl.IsInput {
			return diag.Errorf(diag.CodeSemaAssignToInput, lhs.Pos, "cannot assign an equation to input %q", name)
		}
		if _, dup := p.prog.Equations[name]; dup {
			return diag.Errorf(diag.CodeParseDuplicateAssign, lhs.Pos, "variable %q assigned more than once", name)
		}

		expr, exprPos, width, err := p.parseExpr()
		if err != nil {
			return err
		}
		if width != decl.Width {
			return diag.Errorf(diag.CodeTypeWidthMismatch, exprPos, "%q declared with width %d but equation has width %d", name, decl.Width, width)
		}

		p.prog.Equations[name] = &ast.Equation{Var: name, Expr: expr, Pos: exprPos}
	}
	return nil
}

// parseExpr parses one equation's right-hand side, returning the
// resulting node, its source position, and its natural bit width.
func (p *Parser) parseExpr() (ast.Expr, token.Pos, int, error) {
	pos := p.tok.Pos

	switch p.tok.Type {
	case token.NOT:
		p.advance()
		x, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		return &ast.Not{Pos: pos, X: x}, pos, x.Width, nil

	case token.AND, token.NAND, token.OR, token.NOR, token.XOR, token.XNOR:
		op, err := binOpOf(p.tok.Type)
		if err != nil {
			return nil, pos, 0, err
		}
		p.advance()
		l, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		r, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		if l.Width != r.Width {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeWidthMismatch, pos, "%s operands have different widths (%d and %d)", op, l.Width, r.Width)
		}
		return &ast.Binary{Pos: pos, Op: op, L: l, R: r}, pos, l.Width, nil

	case token.MUX:
		p.advance()
		choice, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		if choice.Width != 1 {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeWidthMismatch, pos, "MUX choice must have width 1, got %d", choice.Width)
		}
		a, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		b, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		if a.Width != b.Width {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeWidthMismatch, pos, "MUX data operands have different widths (%d and %d)", a.Width, b.Width)
		}
		return &ast.Mux{Pos: pos, Choice: choice, A: a, B: b}, pos, a.Width, nil

	case token.REG:
		p.advance()
		id, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return nil, pos, 0, err
		}
		name := id.Value.(string)
		decl, ok := p.prog.Vars[name]
		if !ok {
			return nil, pos, 0, diag.Errorf(diag.CodeParseUndeclared, id.Pos, "REG of undeclared variable %q", name)
		}
		return &ast.Reg{Pos: pos, Name: name}, pos, decl.Width, nil

	case token.CONCAT:
		p.advance()
		l, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		r, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		width := l.Width + r.Width
		if width > maxWidth {
			return nil, pos, 0, diag.Errorf(diag.CodeParseBusTooWide, pos, "CONCAT result width %d exceeds %d", width, maxWidth)
		}
		return &ast.Concat{Pos: pos, L: l, R: r}, pos, width, nil

	case token.SELECT:
		p.advance()
		idx, err := p.parseDecimalInt()
		if err != nil {
			return nil, pos, 0, err
		}
		x, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		if idx < 0 || idx >= x.Width {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeBadIndex, pos, "SELECT index %d out of range for width %d", idx, x.Width)
		}
		return &ast.Select{Pos: pos, Index: idx, X: x}, pos, 1, nil

	case token.SLICE:
		p.advance()
		first, err := p.parseDecimalInt()
		if err != nil {
			return nil, pos, 0, err
		}
		end, err := p.parseDecimalInt()
		if err != nil {
			return nil, pos, 0, err
		}
		x, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		if first < 0 || end < first || end >= x.Width {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeBadIndex, pos, "SLICE %d %d out of range for width %d", first, end, x.Width)
		}
		return &ast.Slice{Pos: pos, First: first, End: end, X: x}, pos, end - first + 1, nil

	case token.ROM:
		p.advance()
		addrSize, err := p.parseDecimalInt()
		if err != nil {
			return nil, pos, 0, err
		}
		wordSize, err := p.parseDecimalInt()
		if err != nil {
			return nil, pos, 0, err
		}
		if err := checkWidth(pos, wordSize); err != nil {
			return nil, pos, 0, err
		}
		readAddr, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		if readAddr.Width != addrSize {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeWidthMismatch, pos, "ROM read address has width %d, expected %d", readAddr.Width, addrSize)
		}
		return &ast.Rom{Pos: pos, AddrSize: addrSize, WordSize: wordSize, ReadAddr: readAddr}, pos, wordSize, nil

	case token.RAM:
		p.advance()
		addrSize, err := p.parseDecimalInt()
		if err != nil {
			return nil, pos, 0, err
		}
		wordSize, err := p.parseDecimalInt()
		if err != nil {
			return nil, pos, 0, err
		}
		if err := checkWidth(pos, wordSize); err != nil {
			return nil, pos, 0, err
		}
		readAddr, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		we, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		writeAddr, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		writeData, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		if readAddr.Width != addrSize || writeAddr.Width != addrSize {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeWidthMismatch, pos, "RAM address operands must have width %d", addrSize)
		}
		if we.Width != 1 {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeWidthMismatch, pos, "RAM write-enable must have width 1, got %d", we.Width)
		}
		if writeData.Width != wordSize {
			return nil, pos, 0, diag.Errorf(diag.CodeTypeWidthMismatch, pos, "RAM write data has width %d, expected %d", writeData.Width, wordSize)
		}
		return &ast.Ram{Pos: pos, AddrSize: addrSize, WordSize: wordSize, ReadAddr: readAddr, WriteEnable: we, WriteAddr: writeAddr, WriteData: writeData}, pos, wordSize, nil

	default:
		a, err := p.parseArg()
		if err != nil {
			return nil, pos, 0, err
		}
		return &ast.Ref{Pos: pos, Arg: a}, pos, a.Width, nil
	}
}

func checkWidth(pos token.Pos, width int) error {
	if width < 1 || width > maxWidth {
		return diag.Errorf(diag.CodeParseBusTooWide, pos, "width %d out of range [1,%d]", width, maxWidth)
	}
	return nil
}

func binOpOf(tt token.Type) (ast.BinOp, error) {
	switch tt {
	case token.AND:
		return ast.AND, nil
	case token.NAND:
		return ast.NAND, nil
	case token.OR:
		return ast.OR, nil
	case token.NOR:
		return ast.NOR, nil
	case token.XOR:
		return ast.XOR, nil
	case token.XNOR:
		return ast.XNOR, nil
	default:
		return 0, errors.Errorf("not a binary operator token: %s", tt)
	}
}

// parseArg parses `arg := IDENT | number`, resolving a variable
// reference's width from the (already fully parsed) VAR section, or
// computing a literal's value and width from its numeric-literal form.
func (p *Parser) parseArg() (ast.Arg, error) {
	tok := p.tok
	switch tok.Type {
	case token.IDENTIFIER:
		p.advance()
		decl, ok := p.prog.Vars[tok.Value.(string)]
		if !ok {
			return ast.Arg{}, diag.Errorf(diag.CodeParseUndeclared, tok.Pos, "undeclared variable %q", tok.Value)
		}
		return ast.Arg{Pos: tok.Pos, Name: tok.Value.(string), Width: decl.Width}, nil

	case token.INTEGER:
		p.advance()
		digits := tok.Value.(string)
		for _, c := range digits {
			if c != '0' && c != '1' {
				return ast.Arg{}, diag.Errorf(diag.CodeParseMalformedLiteral, tok.Pos, "bare integer literal %q must only contain 0s and 1s", digits)
			}
		}
		width := len(digits)
		if err := checkWidth(tok.Pos, width); err != nil {
			return ast.Arg{}, err
		}
		value, err := strconv.ParseUint(digits, 2, 64)
		if err != nil {
			return ast.Arg{}, diag.Errorf(diag.CodeParseMalformedLiteral, tok.Pos, "malformed integer literal %q: %v", digits, err)
		}
		return ast.Arg{Pos: tok.Pos, IsConst: true, Value: value, Width: width}, nil

	case token.BINARY_CONSTANT:
		p.advance()
		return p.finishConstant(tok, 2, false)

	case token.HEXADECIMAL_CONSTANT:
		p.advance()
		return p.finishConstant(tok, 16, false)

	case token.DECIMAL_CONSTANT:
		p.advance()
		return p.finishConstant(tok, 10, true)

	default:
		return ast.Arg{}, p.errf(diag.CodeParseUnexpectedToken, "expected a variable name or a literal, got %s", tok.Type)
	}
}

// finishConstant parses the value of a 0b/0x/0d-prefixed literal and its
// optional (0d: mandatory) ": N" width annotation.
func (p *Parser) finishConstant(tok token.Token, base int, widthMandatory bool) (ast.Arg, error) {
	digits := tok.Value.(string)
	if digits == "" {
		return ast.Arg{}, diag.Errorf(diag.CodeParseMalformedLiteral, tok.Pos, "empty literal")
	}

	naturalWidth := len(digits)
	if base == 16 {
		naturalWidth = len(digits) * 4
	}

	width := naturalWidth
	hasWidth := false
	if p.tok.Type == token.COLON {
		p.advance()
		w, err := p.parseDecimalInt()
		if err != nil {
			return ast.Arg{}, err
		}
		width = w
		hasWidth = true
	}
	if widthMandatory && !hasWidth {
		return ast.Arg{}, diag.Errorf(diag.CodeParseMissingWidth, tok.Pos, "decimal constant 0d%s requires an explicit \":width\"", digits)
	}
	if err := checkWidth(tok.Pos, width); err != nil {
		return ast.Arg{}, err
	}

	value, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return ast.Arg{}, diag.Errorf(diag.CodeParseMalformedLiteral, tok.Pos, "malformed literal %q: %v", digits, err)
	}
	if !fits(value, width) {
		return ast.Arg{}, diag.Errorf(diag.CodeParseWidthOverflow, tok.Pos, "value %d does not fit in %d bits", value, width)
	}
	return ast.Arg{Pos: tok.Pos, IsConst: true, Value: value, Width: width}, nil
}

func fits(value uint64, width int) bool {
	if width >= 64 {
		return true
	}
	return value < uint64(1)<<uint(width)
}

func (p *Parser) parseDecimalInt() (int, error) {
	tok, err := p.expect(token.INTEGER)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tok.Value.(string))
	if convErr != nil {
		return 0, diag.Errorf(diag.CodeParseMalformedLiteral, tok.Pos, "malformed integer %q", tok.Value)
	}
	return n, nil
}

// checkComplete enforces that every declared variable is either an
// input or has an equation.
func (p *Parser) checkComplete() error {
	for _, name := range p.prog.VarOrder {
		decl := p.prog.Vars[name]
		if decl.IsInput {
			continue
		}
		if _, ok := p.prog.Equations[name]; !ok {
			return diag.Errorf(diag.CodeSemaMissingEquation, decl.Pos, "variable %q has no equation", name)
		}
	}
	return nil
}
