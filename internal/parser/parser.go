// Package parser turns a lexer token stream into the Expr AST defined in
// ast.go. Every construct in this language — including what would be a
// "statement" in a C-family grammar — is an expression (blocks, if,
// while, for, function/class/exception-kind displays all produce a
// value), so there is a single Parse entry point and a single
// expression-precedence climb, no separate statement grammar.
package parser

import (
	"fmt"

	"mtots/internal/lexer"
)

type Parser struct {
	tokens  []lexer.Token
	current int
	Errors  []error
}

func NewParser(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse consumes every token and returns the module body as a Block.
func (p *Parser) Parse() *Block {
	startLine := p.peek().Line
	var exprs []Expr
	for !p.check(lexer.TokenEOF) {
		exprs = append(exprs, p.safeExpr())
	}
	return &Block{pos: pos{Line: startLine}, Exprs: exprs}
}

// safeExpr parses one top-level expression, recovering to the next
// plausible boundary on error so a single bad construct doesn't abort
// the whole parse (useful for the REPL and for collecting every error in
// one pass rather than just the first).
func (p *Parser) safeExpr() (result Expr) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				p.Errors = append(p.Errors, err)
			} else {
				p.Errors = append(p.Errors, fmt.Errorf("parser: %v", r))
			}
			p.synchronize()
			result = &Nil{pos: pos{Line: p.peek().Line}}
		}
	}()
	return p.expression()
}

func (p *Parser) synchronize() {
	for !p.check(lexer.TokenEOF) {
		switch p.peek().Type {
		case lexer.TokenFn, lexer.TokenClass, lexer.TokenIf, lexer.TokenWhile,
			lexer.TokenFor, lexer.TokenReturn, lexer.TokenImport, lexer.TokenLet:
			return
		}
		p.advance()
	}
}

// expression is the entry point for the precedence climb; assignment
// binds loosest.
func (p *Parser) expression() Expr {
	return p.assignment()
}

func (p *Parser) assignment() Expr {
	left := p.orExpr()

	if aug, ok := augOperator(p.peek().Type); ok {
		line := p.advance().Line
		value := p.assignment()
		return assignTarget(left, value, line, aug)
	}
	if p.check(lexer.TokenEqual) {
		line := p.advance().Line
		value := p.assignment()
		return assignTarget(left, value, line, "")
	}
	return left
}

func augOperator(t lexer.TokenType) (string, bool) {
	switch t {
	case lexer.TokenPlusEqual:
		return "+", true
	case lexer.TokenMinusEqual:
		return "-", true
	case lexer.TokenStarEqual:
		return "*", true
	case lexer.TokenSlashEqual:
		return "/", true
	}
	return "", false
}

// assignTarget builds the correct Assign/AugAssign/AssignAttribute/
// AssignSubscript node depending on what left parsed as. op == "" means
// a plain assignment rather than an augmented one.
func assignTarget(left Expr, value Expr, line int, op string) Expr {
	switch t := left.(type) {
	case *Name:
		if op != "" {
			return &AugAssign{pos: pos{Line: line}, Name: t.Name, Operator: op, Value: value}
		}
		return &Assign{pos: pos{Line: line}, Name: t.Name, Value: value}
	case *Attribute:
		if op != "" {
			return &AssignAttribute{pos: pos{Line: line}, Object: t.Object, Name: t.Name,
				Value: &Binop{pos: pos{Line: line}, Operator: op, Left: t, Right: value}}
		}
		return &AssignAttribute{pos: pos{Line: line}, Object: t.Object, Name: t.Name, Value: value}
	case *Subscript:
		if op != "" {
			return &AssignSubscript{pos: pos{Line: line}, Object: t.Object, Index: t.Index,
				Value: &Binop{pos: pos{Line: line}, Operator: op, Left: t, Right: value}}
		}
		return &AssignSubscript{pos: pos{Line: line}, Object: t.Object, Index: t.Index, Value: value}
	default:
		panic(fmt.Errorf("line %d: invalid assignment target", line))
	}
}

func (p *Parser) orExpr() Expr {
	left := p.andExpr()
	for p.check(lexer.TokenOr) {
		line := p.advance().Line
		right := p.andExpr()
		left = &Binop{pos: pos{Line: line}, Operator: "||", Left: left, Right: right}
	}
	return left
}

func (p *Parser) andExpr() Expr {
	left := p.equality()
	for p.check(lexer.TokenAnd) {
		line := p.advance().Line
		right := p.equality()
		left = &Binop{pos: pos{Line: line}, Operator: "&&", Left: left, Right: right}
	}
	return left
}

func (p *Parser) equality() Expr {
	left := p.comparison()
	for p.check(lexer.TokenDoubleEqual) || p.check(lexer.TokenNotEqual) || p.check(lexer.TokenIs) {
		op := p.advance()
		right := p.comparison()
		left = &Binop{pos: pos{Line: op.Line}, Operator: op.Lexeme, Left: left, Right: right}
	}
	return left
}

func (p *Parser) comparison() Expr {
	left := p.additive()
	for p.check(lexer.TokenLT) || p.check(lexer.TokenGT) || p.check(lexer.TokenLE) || p.check(lexer.TokenGE) {
		op := p.advance()
		right := p.additive()
		left = &Binop{pos: pos{Line: op.Line}, Operator: op.Lexeme, Left: left, Right: right}
	}
	return left
}

func (p *Parser) additive() Expr {
	left := p.multiplicative()
	for p.check(lexer.TokenPlus) || p.check(lexer.TokenMinus) {
		op := p.advance()
		right := p.multiplicative()
		left = &Binop{pos: pos{Line: op.Line}, Operator: op.Lexeme, Left: left, Right: right}
	}
	return left
}

func (p *Parser) multiplicative() Expr {
	left := p.power()
	for p.check(lexer.TokenStar) || p.check(lexer.TokenSlash) || p.check(lexer.TokenSlashSlash) || p.check(lexer.TokenPercent) {
		op := p.advance()
		right := p.power()
		left = &Binop{pos: pos{Line: op.Line}, Operator: op.Lexeme, Left: left, Right: right}
	}
	return left
}

// power is right-associative ( `2 ** 3 ** 2` == `2 ** (3 ** 2)` ).
func (p *Parser) power() Expr {
	left := p.unary()
	if p.check(lexer.TokenStarStar) {
		op := p.advance()
		right := p.power()
		return &Binop{pos: pos{Line: op.Line}, Operator: "**", Left: left, Right: right}
	}
	return left
}

func (p *Parser) unary() Expr {
	if p.check(lexer.TokenNot) || p.check(lexer.TokenMinus) || p.check(lexer.TokenPlus) {
		op := p.advance()
		operand := p.unary()
		return &Unop{pos: pos{Line: op.Line}, Operator: op.Lexeme, Operand: operand}
	}
	if p.check(lexer.TokenAt) {
		line := p.advance().Line
		return mutableOf(p.unary(), line)
	}
	return p.callOrAccess()
}

// mutableOf repurposes a just-parsed String/ListDisplay/MapDisplay literal
// as its mutable-shared counterpart, the way the '@' prefix operator
// works: it is only a parser-level relabeling, not a runtime operation.
func mutableOf(e Expr, line int) Expr {
	switch t := e.(type) {
	case *StringLit:
		return &MutableString{pos: pos{Line: line}, Value: t.Value}
	case *ListDisplay:
		return &MutableListDisplay{pos: pos{Line: line}, Elements: t.Elements}
	case *MapDisplay:
		return &MutableMapDisplay{pos: pos{Line: line}, Keys: t.Keys, Values: t.Values}
	default:
		panic(fmt.Errorf("line %d: '@' may only prefix a string, list, or map literal", line))
	}
}

func (p *Parser) callOrAccess() Expr {
	expr := p.primary()
	for {
		switch {
		case p.check(lexer.TokenLParen):
			expr = p.finishCall(expr)
		case p.check(lexer.TokenDot):
			line := p.advance().Line
			name := p.consume(lexer.TokenIdent, "expected attribute name after '.'")
			if p.check(lexer.TokenLParen) {
				expr = p.finishMethodCall(expr, name.Lexeme, line)
			} else {
				expr = &Attribute{pos: pos{Line: line}, Object: expr, Name: name.Lexeme}
			}
		case p.check(lexer.TokenDoubleColon):
			line := p.advance().Line
			name := p.consume(lexer.TokenIdent, "expected name after '::'")
			expr = &StaticAttribute{pos: pos{Line: line}, Object: expr, Name: name.Lexeme}
		case p.check(lexer.TokenLBracket):
			line := p.advance().Line
			expr = p.finishSubscriptOrSlice(expr, line)
		default:
			return expr
		}
	}
}

// classRef parses the class-name operand of a `new` expression: a bare
// name optionally followed by dotted attribute access, but stopping
// short of a call so the '(' that opens the constructor argument list
// is never mistaken for a method call on the class reference itself.
func (p *Parser) classRef() Expr {
	name := p.consume(lexer.TokenIdent, "expected class name after 'new'")
	var expr Expr = &Name{pos: pos{Line: name.Line}, Name: name.Lexeme}
	for p.check(lexer.TokenDot) {
		line := p.advance().Line
		attr := p.consume(lexer.TokenIdent, "expected name after '.'")
		expr = &Attribute{pos: pos{Line: line}, Object: expr, Name: attr.Lexeme}
	}
	return expr
}

func (p *Parser) finishSubscriptOrSlice(object Expr, line int) Expr {
	var lo Expr
	if !p.check(lexer.TokenColon) {
		lo = p.expression()
	}
	if p.check(lexer.TokenColon) {
		p.advance()
		var hi Expr
		if !p.check(lexer.TokenRBracket) {
			hi = p.expression()
		}
		p.consume(lexer.TokenRBracket, "expected ']' to close slice")
		return &Slice{pos: pos{Line: line}, Object: object, Lo: lo, Hi: hi}
	}
	p.consume(lexer.TokenRBracket, "expected ']' to close subscript")
	return &Subscript{pos: pos{Line: line}, Object: object, Index: lo}
}

func (p *Parser) finishCall(callee Expr) Expr {
	line := p.advance().Line // consume '('
	args, kwargs := p.argumentList()
	p.consume(lexer.TokenRParen, "expected ')' to close call")
	return &FunctionCall{pos: pos{Line: line}, Callee: callee, Args: args, Kwargs: kwargs}
}

func (p *Parser) finishMethodCall(object Expr, name string, line int) Expr {
	p.advance() // consume '('
	args, kwargs := p.argumentList()
	p.consume(lexer.TokenRParen, "expected ')' to close method call")
	return &MethodCall{pos: pos{Line: line}, Object: object, Name: name, Args: args, Kwargs: kwargs}
}

func (p *Parser) argumentList() ([]Expr, map[string]Expr) {
	var args []Expr
	var kwargs map[string]Expr
	for !p.check(lexer.TokenRParen) {
		if p.check(lexer.TokenIdent) && p.checkNext(lexer.TokenColon) {
			name := p.advance().Lexeme
			p.advance() // ':'
			if kwargs == nil {
				kwargs = make(map[string]Expr)
			}
			kwargs[name] = p.expression()
		} else {
			args = append(args, p.expression())
		}
		if !p.check(lexer.TokenComma) {
			break
		}
		p.advance()
	}
	return args, kwargs
}

func (p *Parser) primary() Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenNumber:
		p.advance()
		return numberLiteral(tok)
	case lexer.TokenString:
		p.advance()
		return &StringLit{pos: pos{Line: tok.Line}, Value: tok.Lexeme}
	case lexer.TokenSymbol:
		p.advance()
		return &SymbolLit{pos: pos{Line: tok.Line}, Name: tok.Lexeme}
	case lexer.TokenTrue:
		p.advance()
		return &Bool{pos: pos{Line: tok.Line}, Value: true}
	case lexer.TokenFalse:
		p.advance()
		return &Bool{pos: pos{Line: tok.Line}, Value: false}
	case lexer.TokenNull:
		p.advance()
		return &Nil{pos: pos{Line: tok.Line}}
	case lexer.TokenIdent:
		p.advance()
		return &Name{pos: pos{Line: tok.Line}, Name: tok.Lexeme}
	case lexer.TokenLParen:
		p.advance()
		inner := p.expression()
		p.consume(lexer.TokenRParen, "expected ')'")
		return &Parentheses{pos: pos{Line: tok.Line}, Inner: inner}
	case lexer.TokenLBrace:
		return p.braceExpr()
	case lexer.TokenLBracket:
		return p.listDisplay()
	case lexer.TokenIf:
		return p.ifExpr()
	case lexer.TokenWhile:
		return p.whileExpr()
	case lexer.TokenFor:
		return p.forExpr()
	case lexer.TokenFn:
		return p.functionDisplay()
	case lexer.TokenClass:
		return p.classDisplay(ClassKindClass)
	case lexer.TokenTrait:
		return p.classDisplay(ClassKindTrait)
	case lexer.TokenException:
		return p.exceptionKindDisplay()
	case lexer.TokenImport:
		return p.importExpr()
	case lexer.TokenYield:
		p.advance()
		val := p.expression()
		return &Yield{pos: pos{Line: tok.Line}, Value: val}
	case lexer.TokenReturn:
		p.advance()
		if p.atExprBoundary() {
			return &Return{pos: pos{Line: tok.Line}}
		}
		return &Return{pos: pos{Line: tok.Line}, Value: p.expression()}
	case lexer.TokenBreak:
		p.advance()
		return &Break{pos: pos{Line: tok.Line}}
	case lexer.TokenContinue:
		p.advance()
		return &Continue{pos: pos{Line: tok.Line}}
	case lexer.TokenBreakpoint:
		p.advance()
		return &BreakPoint{pos: pos{Line: tok.Line}}
	case lexer.TokenDel:
		p.advance()
		name := p.consume(lexer.TokenIdent, "expected name after 'del'")
		return &Del{pos: pos{Line: tok.Line}, Name: name.Lexeme}
	case lexer.TokenNonlocal:
		p.advance()
		name := p.consume(lexer.TokenIdent, "expected name after 'nonlocal'")
		return &Nonlocal{pos: pos{Line: tok.Line}, Name: name.Lexeme}
	case lexer.TokenNew:
		p.advance()
		class := p.classRef()
		p.consume(lexer.TokenLParen, "expected '(' after class in 'new' expression")
		args, _ := p.argumentList()
		p.consume(lexer.TokenRParen, "expected ')' to close 'new' arguments")
		return &New{pos: pos{Line: tok.Line}, Class: class, Args: args}
	case lexer.TokenTry:
		return p.tryExpr()
	case lexer.TokenRaise:
		p.advance()
		return &Raise{pos: pos{Line: tok.Line}, Value: p.expression()}
	case lexer.TokenLet, lexer.TokenVar, lexer.TokenConst:
		// `let`/`var`/`const` all lower to a plain binding: the runtime
		// tracks mutability of values, not of bindings, so the
		// distinction between these keywords is a source-level lint the
		// compiler doesn't need to see.
		p.advance()
		name := p.consume(lexer.TokenIdent, "expected name after declaration keyword")
		p.consume(lexer.TokenEqual, "expected '=' in declaration")
		value := p.expression()
		return &Assign{pos: pos{Line: tok.Line}, Name: name.Lexeme, Value: value}
	default:
		panic(fmt.Errorf("line %d: unexpected token %s", tok.Line, tok))
	}
}

func numberLiteral(tok lexer.Token) Expr {
	for _, c := range tok.Lexeme {
		if c == '.' {
			var f float64
			fmt.Sscanf(tok.Lexeme, "%g", &f)
			return &Float{pos: pos{Line: tok.Line}, Value: f}
		}
	}
	var n int64
	fmt.Sscanf(tok.Lexeme, "%d", &n)
	return &Int{pos: pos{Line: tok.Line}, Value: n}
}

// atExprBoundary reports whether the parser has hit a token that cannot
// start an expression, used to detect a bare `return` with no value.
func (p *Parser) atExprBoundary() bool {
	switch p.peek().Type {
	case lexer.TokenRBrace, lexer.TokenEOF, lexer.TokenSemicolon:
		return true
	}
	return false
}

// braceExpr disambiguates a bare '{' in expression position: a map
// display if it looks like `{ key: value, ... }` (an Ident or String
// token immediately followed by ':'), a block otherwise. An empty '{}'
// is treated as an empty block, matching the teacher's existing usage
// of '{}' as a no-op block body.
func (p *Parser) braceExpr() Expr {
	if (p.checkNext(lexer.TokenIdent) || p.checkNext(lexer.TokenString)) && p.peekAt(2).Type == lexer.TokenColon {
		return p.mapDisplay()
	}
	return p.block()
}

func (p *Parser) mapDisplay() Expr {
	line := p.advance().Line // '{'
	var keys, values []Expr
	for !p.check(lexer.TokenRBrace) {
		var key Expr
		if p.check(lexer.TokenIdent) {
			tok := p.advance()
			key = &SymbolLit{pos: pos{Line: tok.Line}, Name: tok.Lexeme}
		} else {
			tok := p.consume(lexer.TokenString, "expected map key")
			key = &StringLit{pos: pos{Line: tok.Line}, Value: tok.Lexeme}
		}
		p.consume(lexer.TokenColon, "expected ':' after map key")
		keys = append(keys, key)
		values = append(values, p.expression())
		if !p.check(lexer.TokenComma) {
			break
		}
		p.advance()
	}
	p.consume(lexer.TokenRBrace, "expected '}' to close map display")
	return &MapDisplay{pos: pos{Line: line}, Keys: keys, Values: values}
}

func (p *Parser) block() Expr {
	line := p.advance().Line // '{'
	var exprs []Expr
	for !p.check(lexer.TokenRBrace) && !p.check(lexer.TokenEOF) {
		exprs = append(exprs, p.expression())
		for p.check(lexer.TokenSemicolon) {
			p.advance()
		}
	}
	p.consume(lexer.TokenRBrace, "expected '}' to close block")
	return &Block{pos: pos{Line: line}, Exprs: exprs}
}

func (p *Parser) listDisplay() Expr {
	line := p.advance().Line // '['
	var elems []Expr
	for !p.check(lexer.TokenRBracket) {
		elems = append(elems, p.expression())
		if !p.check(lexer.TokenComma) {
			break
		}
		p.advance()
	}
	p.consume(lexer.TokenRBracket, "expected ']' to close list display")
	return &ListDisplay{pos: pos{Line: line}, Elements: elems}
}

func (p *Parser) ifExpr() Expr {
	line := p.advance().Line // 'if'
	cond := p.expression()
	then := p.block()
	var els Expr
	if p.check(lexer.TokenElse) {
		p.advance()
		if p.check(lexer.TokenIf) {
			els = p.ifExpr()
		} else {
			els = p.block()
		}
	}
	return &If{pos: pos{Line: line}, Cond: cond, Then: then, Else: els}
}

func (p *Parser) whileExpr() Expr {
	line := p.advance().Line // 'while'
	cond := p.expression()
	body := p.block()
	return &While{pos: pos{Line: line}, Cond: cond, Body: body}
}

// forExpr parses both `for x in iterable { body }` and the C-style
// `for init; cond; update { body }` depending on what follows the
// leading identifier.
func (p *Parser) forExpr() Expr {
	line := p.advance().Line // 'for'
	if p.check(lexer.TokenIdent) && p.checkNext(lexer.TokenIn) {
		varName := p.advance().Lexeme
		p.advance() // 'in'
		iterable := p.expression()
		body := p.block()
		return &ForIn{pos: pos{Line: line}, Var: varName, Iterable: iterable, Body: body}
	}
	var init, update Expr
	var cond Expr
	if !p.check(lexer.TokenSemicolon) {
		init = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "expected ';' after for-loop init")
	if !p.check(lexer.TokenSemicolon) {
		cond = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "expected ';' after for-loop condition")
	if !p.check(lexer.TokenLBrace) {
		update = p.expression()
	}
	body := p.block()
	return &For{pos: pos{Line: line}, Init: init, Cond: cond, Update: update, Body: body}
}

func (p *Parser) functionDisplay() Expr {
	line := p.advance().Line // 'fn'
	isGenerator := false
	if p.check(lexer.TokenStar) {
		p.advance()
		isGenerator = true
	}
	name := ""
	if p.check(lexer.TokenIdent) {
		name = p.advance().Lexeme
	}
	p.consume(lexer.TokenLParen, "expected '(' in function display")
	var required []string
	var optional []Param
	variadic, kwargs := "", ""
	for !p.check(lexer.TokenRParen) {
		if p.check(lexer.TokenStarStar) {
			p.advance()
			kwargs = p.consume(lexer.TokenIdent, "expected kwargs name").Lexeme
		} else if p.check(lexer.TokenStar) {
			p.advance()
			variadic = p.consume(lexer.TokenIdent, "expected variadic name").Lexeme
		} else {
			pname := p.consume(lexer.TokenIdent, "expected parameter name").Lexeme
			if p.check(lexer.TokenEqual) {
				p.advance()
				optional = append(optional, Param{Name: pname, Default: p.expression()})
			} else {
				required = append(required, pname)
			}
		}
		if !p.check(lexer.TokenComma) {
			break
		}
		p.advance()
	}
	p.consume(lexer.TokenRParen, "expected ')' to close parameter list")
	body := p.block()
	return &FunctionDisplay{
		pos: pos{Line: line}, IsGenerator: isGenerator, Name: name,
		Required: required, Optional: optional, Variadic: variadic, Kwargs: kwargs, Body: body,
	}
}

func (p *Parser) classDisplay(kind ClassKind) Expr {
	line := p.advance().Line // 'class'/'trait'
	name := p.consume(lexer.TokenIdent, "expected class name").Lexeme
	var bases []Expr
	if p.check(lexer.TokenLParen) {
		p.advance()
		for !p.check(lexer.TokenRParen) {
			bases = append(bases, p.expression())
			if !p.check(lexer.TokenComma) {
				break
			}
			p.advance()
		}
		p.consume(lexer.TokenRParen, "expected ')' after class bases")
	}
	p.consume(lexer.TokenLBrace, "expected '{' to open class body")
	var fields []string
	var methods, staticMethods []*FunctionDisplay
	for !p.check(lexer.TokenRBrace) {
		if p.check(lexer.TokenConst) || p.check(lexer.TokenVar) {
			p.advance()
			fields = append(fields, p.consume(lexer.TokenIdent, "expected field name").Lexeme)
			continue
		}
		isStatic := false
		if p.check(lexer.TokenIdent) && p.peek().Lexeme == "static" && p.checkNext(lexer.TokenFn) {
			isStatic = true
			p.advance()
		}
		fd := p.functionDisplay().(*FunctionDisplay)
		if isStatic {
			staticMethods = append(staticMethods, fd)
		} else {
			methods = append(methods, fd)
		}
	}
	p.consume(lexer.TokenRBrace, "expected '}' to close class body")
	return &ClassDisplay{pos: pos{Line: line}, Kind: kind, Name: name, Bases: bases,
		Fields: fields, Methods: methods, StaticMethods: staticMethods}
}

func (p *Parser) exceptionKindDisplay() Expr {
	line := p.advance().Line // 'exception'
	name := p.consume(lexer.TokenIdent, "expected exception kind name").Lexeme
	var base Expr
	if p.check(lexer.TokenLParen) {
		p.advance()
		base = p.expression()
		p.consume(lexer.TokenRParen, "expected ')' after exception base")
	}
	var fields []string
	template := ""
	if p.check(lexer.TokenLBrace) {
		p.advance()
		for !p.check(lexer.TokenRBrace) {
			if p.check(lexer.TokenString) {
				template = p.advance().Lexeme
			} else {
				fields = append(fields, p.consume(lexer.TokenIdent, "expected exception field name").Lexeme)
			}
			if !p.check(lexer.TokenComma) {
				break
			}
			p.advance()
		}
		p.consume(lexer.TokenRBrace, "expected '}' to close exception kind body")
	}
	return &ExceptionKindDisplay{pos: pos{Line: line}, Name: name, Base: base,
		Fields: fields, MessageTemplate: template}
}

func (p *Parser) importExpr() Expr {
	line := p.advance().Line // 'import'
	dotted := p.consume(lexer.TokenIdent, "expected module name").Lexeme
	for p.check(lexer.TokenDot) {
		p.advance()
		dotted += "." + p.consume(lexer.TokenIdent, "expected module name segment").Lexeme
	}
	alias := ""
	if p.check(lexer.TokenAs) {
		p.advance()
		alias = p.consume(lexer.TokenIdent, "expected alias name").Lexeme
	}
	return &Import{pos: pos{Line: line}, Dotted: dotted, Alias: alias}
}

func (p *Parser) tryExpr() Expr {
	line := p.advance().Line // 'try'
	body := p.block()
	t := &Try{pos: pos{Line: line}, Body: body}
	if p.check(lexer.TokenCatch) {
		p.advance()
		t.HasCatch = true
		if p.check(lexer.TokenLParen) {
			p.advance()
			t.CatchKind = p.expression()
			if p.check(lexer.TokenAs) {
				p.advance()
				t.CatchName = p.consume(lexer.TokenIdent, "expected catch binding name").Lexeme
			}
			p.consume(lexer.TokenRParen, "expected ')' after catch clause")
		} else if p.check(lexer.TokenIdent) {
			t.CatchName = p.advance().Lexeme
		}
		t.CatchBody = p.block()
	}
	if p.check(lexer.TokenFinally) {
		p.advance()
		t.HasFinally = true
		t.FinallyBody = p.block()
	}
	return t
}

// --- token stream helpers ---

func (p *Parser) peek() lexer.Token { return p.tokens[p.current] }

func (p *Parser) peekAt(n int) lexer.Token {
	i := p.current + n
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) checkNext(t lexer.TokenType) bool { return p.peekAt(1).Type == t }

func (p *Parser) check(t lexer.TokenType) bool { return p.peek().Type == t }

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.current]
	if tok.Type != lexer.TokenEOF {
		p.current++
	}
	return tok
}

func (p *Parser) consume(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	panic(fmt.Errorf("line %d: %s (got %s)", p.peek().Line, msg, p.peek()))
}
