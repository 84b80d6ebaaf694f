// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frontend

import "github.com/gorse-io/vetra/internal/ast"

// Precedence climbs, lowest to highest: ternary, null-coalesce, logical
// or/and, bitwise or/xor/and, equality, relational, range, shift,
// additive, multiplicative, cast, unary, postfix, primary. Each level is a
// thin wrapper around the level below plus a left-associative operator
// loop, except ternary and unary which are right-nested and range which
// takes at most one operator.

func (p *parser) parseExpr() (ast.Expr, error) { return p.parseTernary() }

func (p *parser) parseTernary() (ast.Expr, error) {
	cond, err := p.parseNullCoalesce()
	if err != nil {
		return nil, err
	}
	if p.atPunct("?") {
		pos := p.cur().pos
		p.advance()
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.TernaryExpr{Pos: pos, Cond: cond, Then: then, Else: els}, nil
	}
	return cond, nil
}

func (p *parser) parseNullCoalesce() (ast.Expr, error) {
	x, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	for p.atPunct("??") {
		pos := p.cur().pos
		p.advance()
		fallback, err := p.parseLogicalOr()
		if err != nil {
			return nil, err
		}
		x = ast.NullCoalesceExpr{Pos: pos, X: x, Fallback: fallback}
	}
	return x, nil
}

func (p *parser) parseLogicalOr() (ast.Expr, error) {
	x, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.atPunct("||") {
		pos := p.cur().pos
		p.advance()
		y, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: "||", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseLogicalAnd() (ast.Expr, error) {
	x, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	for p.atPunct("&&") {
		pos := p.cur().pos
		p.advance()
		y, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: "&&", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseBitOr() (ast.Expr, error) {
	x, err := p.parseBitXor()
	if err != nil {
		return nil, err
	}
	for p.atPunct("|") {
		pos := p.cur().pos
		p.advance()
		y, err := p.parseBitXor()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: "|", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseBitXor() (ast.Expr, error) {
	x, err := p.parseBitAnd()
	if err != nil {
		return nil, err
	}
	for p.atPunct("^") {
		pos := p.cur().pos
		p.advance()
		y, err := p.parseBitAnd()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: "^", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseBitAnd() (ast.Expr, error) {
	x, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.atPunct("&") {
		pos := p.cur().pos
		p.advance()
		y, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: "&", X: x, Y: y}
	}
	return x, nil
}

var equalityOps = map[string]bool{"==": true, "!=": true}
var relationalOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true}

func (p *parser) parseEquality() (ast.Expr, error) {
	x, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tkPunct && equalityOps[p.cur().text] {
		pos := p.cur().pos
		op := p.advance().text
		y, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		x = ast.CompareExpr{Pos: pos, Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseRelational() (ast.Expr, error) {
	x, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tkPunct && relationalOps[p.cur().text] {
		pos := p.cur().pos
		op := p.advance().text
		y, err := p.parseRange()
		if err != nil {
			return nil, err
		}
		x = ast.CompareExpr{Pos: pos, Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseRange() (ast.Expr, error) {
	x, err := p.parseShift()
	if err != nil {
		return nil, err
	}
	if p.atPunct("..") || p.atPunct("..=") {
		pos := p.cur().pos
		inclusive := p.cur().text == "..="
		p.advance()
		y, err := p.parseShift()
		if err != nil {
			return nil, err
		}
		return ast.RangeExpr{Pos: pos, Lo: x, Hi: y, Inclusive: inclusive}, nil
	}
	return x, nil
}

func (p *parser) parseShift() (ast.Expr, error) {
	x, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.atPunct("<<") || p.atPunct(">>") {
		pos := p.cur().pos
		op := p.advance().text
		y, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.atPunct("+") || p.atPunct("-") {
		pos := p.cur().pos
		op := p.advance().text
		y, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	x, err := p.parseCast()
	if err != nil {
		return nil, err
	}
	for p.atPunct("*") || p.atPunct("/") || p.atPunct("%") {
		pos := p.cur().pos
		op := p.advance().text
		y, err := p.parseCast()
		if err != nil {
			return nil, err
		}
		x = ast.BinaryExpr{Pos: pos, Op: op, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseCast() (ast.Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("as") {
		pos := p.cur().pos
		p.advance()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		x = ast.CastExpr{Pos: pos, X: x, To: typ}
	}
	return x, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.atPunct("-") || p.atPunct("!") || p.atPunct("~") || p.atPunct("&") || p.atPunct("*") {
		pos := p.cur().pos
		op := p.advance().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Pos: pos, Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("."):
			pos := p.cur().pos
			p.advance()
			if p.cur().kind == tkInt {
				digits, _ := splitNumSuffix(p.advance().text)
				x = ast.TupleAccessExpr{Pos: pos, X: x, Index: int(mustAtoi(digits))}
				continue
			}
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if p.atPunct("(") {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				x = ast.MethodCallExpr{Pos: pos, Recv: x, Method: name, Args: args}
				continue
			}
			x = ast.FieldAccessExpr{Pos: pos, X: x, Field: name}
		case p.atPunct("?."):
			pos := p.cur().pos
			p.advance()
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			x = ast.SafeNavExpr{Pos: pos, X: x, Field: name}
		case p.atPunct("["):
			pos := p.cur().pos
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			x = ast.IndexExpr{Pos: pos, X: x, Index: idx}
		case p.atPunct("("):
			ident, ok := x.(ast.Ident)
			if !ok {
				return x, nil
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = ast.CallExpr{Pos: ident.Pos, Name: ident.Name, Args: args}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs() ([]ast.Expr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for !p.atPunct(")") {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.atPunct(",") {
			p.advance()
		}
	}
	return args, p.expectPunct(")")
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()
	switch {
	case t.kind == tkInt:
		p.advance()
		digits, suffix := splitNumSuffix(t.text)
		return ast.IntLit{Pos: t.pos, Value: mustAtoi(digits), Type: parseIntSuffix(suffix)}, nil
	case t.kind == tkFloat:
		p.advance()
		digits, suffix := splitNumSuffix(t.text)
		return ast.FloatLit{Pos: t.pos, Value: mustAtof(digits), Type: parseFloatSuffix(suffix)}, nil
	case t.kind == tkString:
		p.advance()
		return ast.StringLit{Pos: t.pos, Value: t.text}, nil
	case t.kind == tkChar:
		p.advance()
		return ast.CharLit{Pos: t.pos, Value: []rune(t.text)[0]}, nil
	case p.atKeyword("true"):
		p.advance()
		return ast.BoolLit{Pos: t.pos, Value: true}, nil
	case p.atKeyword("false"):
		p.advance()
		return ast.BoolLit{Pos: t.pos, Value: false}, nil
	case p.atKeyword("null"):
		p.advance()
		return ast.NullLit{Pos: t.pos}, nil
	case p.atKeyword("this") || p.atKeyword("self"):
		p.advance()
		return ast.Ident{Pos: t.pos, Name: "this"}, nil
	case p.atKeyword("sizeof"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return ast.SizeofExpr{Pos: t.pos, Of: typ}, nil
	case p.atKeyword("new"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return ast.NewObjectExpr{Pos: t.pos, Class: name, Args: args}, nil
	case p.atKeyword("fn"):
		return p.parseLambda()
	case p.atPunct("|"):
		return p.parseShorthandLambda()
	case t.kind == tkIdent:
		p.advance()
		name := t.text
		for p.atPunct("::") {
			p.advance()
			next, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			name += "." + next
		}
		return ast.Ident{Pos: t.pos, Name: name}, nil
	case p.atPunct("("):
		p.advance()
		if p.atPunct(")") {
			p.advance()
			return ast.TupleLitExpr{Pos: t.pos}, nil
		}
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.atPunct(",") {
			elems := []ast.Expr{first}
			for p.atPunct(",") {
				p.advance()
				if p.atPunct(")") {
					break
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return ast.TupleLitExpr{Pos: t.pos, Elems: elems}, nil
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return first, nil
	case p.atPunct("["):
		p.advance()
		var elems []ast.Expr
		for !p.atPunct("]") {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.atPunct(",") {
				p.advance()
			}
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return ast.ArrayLitExpr{Pos: t.pos, Elems: elems}, nil
	case p.atPunct("{"):
		return p.parseObjectLit()
	default:
		return nil, p.errf("unexpected token %q in expression", t.text)
	}
}

func (p *parser) parseObjectLit() (ast.Expr, error) {
	pos := p.cur().pos
	p.advance()
	var fields []ast.ObjectField
	for !p.atPunct("}") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.ObjectField{Name: name, Value: v})
		if p.atPunct(",") {
			p.advance()
		}
	}
	return ast.ObjectLitExpr{Pos: pos, Fields: fields}, p.expectPunct("}")
}

func (p *parser) parseLambda() (ast.Expr, error) {
	pos := p.cur().pos
	p.advance() // "fn"
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.atPunct(")") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		typ := ast.Type{Kind: ast.TypeInferred}
		if p.atPunct(":") {
			p.advance()
			typ, err = p.parseType()
			if err != nil {
				return nil, err
			}
		}
		params = append(params, ast.Param{Name: name, Type: typ})
		if p.atPunct(",") {
			p.advance()
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if p.atPunct("->") {
		p.advance()
		if _, err := p.parseType(); err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.LambdaExpr{Pos: pos, Params: params, Body: body}, nil
}

// parseShorthandLambda parses the |x, y| expr closure shape, sugar for a
// single-expression fn(x, y) { return expr; }.
func (p *parser) parseShorthandLambda() (ast.Expr, error) {
	pos := p.cur().pos
	p.advance() // "|"
	var params []ast.Param
	for !p.atPunct("|") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Name: name, Type: ast.Type{Kind: ast.TypeInferred}})
		if p.atPunct(",") {
			p.advance()
		}
	}
	p.advance() // closing "|"
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.LambdaExpr{Pos: pos, Params: params, Body: []ast.Stmt{ast.ReturnStmt{Value: body}}}, nil
}
