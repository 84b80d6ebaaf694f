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

func (p *parser) parseBlock() ([]ast.Stmt, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.atPunct("}") && !p.atEOF() {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, p.expectPunct("}")
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true,
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	pos := p.cur().pos
	switch {
	case p.atKeyword("let"):
		return p.parseVarDecl()
	case p.atKeyword("return"):
		p.advance()
		if p.atPunct(";") {
			p.advance()
			return ast.ReturnStmt{Pos: pos}, nil
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.ReturnStmt{Pos: pos, Value: v}, nil
	case p.atKeyword("break"):
		p.advance()
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.BreakStmt{Pos: pos}, nil
	case p.atKeyword("continue"):
		p.advance()
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.ContinueStmt{Pos: pos}, nil
	case p.atKeyword("if"):
		return p.parseIf()
	case p.atKeyword("while"):
		return p.parseWhile()
	case p.atKeyword("for"):
		return p.parseFor()
	case p.atKeyword("foreach"):
		return p.parseForeach()
	case p.atKeyword("match"):
		return p.parseMatch()
	case p.atKeyword("defer"):
		p.advance()
		call, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.DeferStmt{Pos: pos, Call: call}, nil
	case p.atPunct("{"):
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return ast.BlockStmt{Pos: pos, Stmts: body}, nil
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *parser) parseVarDecl() (ast.Stmt, error) {
	pos := p.cur().pos
	p.advance() // "let"
	mut := false
	if p.atKeyword("mut") {
		p.advance()
		mut = true
	}
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
	var init ast.Expr
	if p.atPunct("=") {
		p.advance()
		init, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return ast.VarDecl{Pos: pos, Name: name, Type: typ, Mutable: mut, Init: init}, nil
}

func (p *parser) parseExprOrAssignStmt() (ast.Stmt, error) {
	pos := p.cur().pos
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tkPunct && assignOps[p.cur().text] {
		op := p.advance().text
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.AssignStmt{Pos: pos, Target: x, Op: op, Value: value}, nil
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return ast.ExprStmt{Pos: pos, X: x}, nil
}

func (p *parser) parseIf() (ast.Stmt, error) {
	pos := p.cur().pos
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := ast.IfStmt{Pos: pos, Cond: cond, Then: then}
	for p.atKeyword("elif") {
		p.advance()
		econd, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ebody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Elifs = append(stmt.Elifs, ast.ElifBranch{Cond: econd, Body: ebody})
	}
	if p.atKeyword("else") {
		p.advance()
		if p.atKeyword("if") {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = []ast.Stmt{elseIf}
		} else {
			elseBody, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseBody
		}
	}
	return stmt, nil
}

func (p *parser) parseWhile() (ast.Stmt, error) {
	pos := p.cur().pos
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.WhileStmt{Pos: pos, Cond: cond, Body: body}, nil
}

func (p *parser) parseFor() (ast.Stmt, error) {
	pos := p.cur().pos
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var init ast.Stmt
	if !p.atPunct(";") {
		var err error
		init, err = p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	var cond ast.Expr
	if !p.atPunct(";") {
		var err error
		cond, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	var post ast.Stmt
	if !p.atPunct(")") {
		var err error
		post, err = p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.ForStmt{Pos: pos, Init: init, Cond: cond, Post: post, Body: body}, nil
}

// parseSimpleStmt parses a for-loop's init/post clause: a let-binding or a
// bare expression/assignment, without the trailing semicolon the caller
// consumes itself.
func (p *parser) parseSimpleStmt() (ast.Stmt, error) {
	if p.atKeyword("let") {
		pos := p.cur().pos
		p.advance()
		mut := false
		if p.atKeyword("mut") {
			p.advance()
			mut = true
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		var init ast.Expr
		if p.atPunct("=") {
			p.advance()
			init, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		return ast.VarDecl{Pos: pos, Name: name, Type: ast.Type{Kind: ast.TypeInferred}, Mutable: mut, Init: init}, nil
	}
	pos := p.cur().pos
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tkPunct && assignOps[p.cur().text] {
		op := p.advance().text
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.AssignStmt{Pos: pos, Target: x, Op: op, Value: value}, nil
	}
	return ast.ExprStmt{Pos: pos, X: x}, nil
}

func (p *parser) parseForeach() (ast.Stmt, error) {
	pos := p.cur().pos
	p.advance()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
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
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	coll, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.ForeachStmt{Pos: pos, ItemName: name, ItemType: typ, Coll: coll, Body: body}, nil
}

func (p *parser) parseMatch() (ast.Stmt, error) {
	pos := p.cur().pos
	p.advance()
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var arms []ast.MatchArm
	for !p.atPunct("}") && !p.atEOF() {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if p.atKeyword("if") {
			p.advance()
			cond, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			pat = ast.GuardPattern{Inner: pat, Cond: cond}
		}
		if err := p.expectPunct("=>"); err != nil {
			return nil, err
		}
		var body []ast.Stmt
		if p.atPunct("{") {
			body, err = p.parseBlock()
		} else {
			var e ast.Expr
			e, err = p.parseExpr()
			body = []ast.Stmt{ast.ExprStmt{X: e}}
		}
		if err != nil {
			return nil, err
		}
		if p.atPunct(",") {
			p.advance()
		}
		arms = append(arms, ast.MatchArm{Pattern: pat, Body: body})
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return ast.MatchStmt{Pos: pos, X: x, Arms: arms}, nil
}

func (p *parser) parsePattern() (ast.Pattern, error) {
	switch {
	case p.cur().kind == tkIdent && p.cur().text == "_":
		p.advance()
		return ast.WildcardPattern{}, nil
	case p.atPunct("("):
		p.advance()
		var elems []ast.Pattern
		for !p.atPunct(")") {
			e, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.atPunct(",") {
				p.advance()
			}
		}
		return ast.TuplePattern{Elems: elems}, p.expectPunct(")")
	case p.atPunct("["):
		p.advance()
		var elems []ast.Pattern
		for !p.atPunct("]") {
			e, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.atPunct(",") {
				p.advance()
			}
		}
		return ast.ArrayPattern{Elems: elems}, p.expectPunct("]")
	case p.cur().kind == tkIdent:
		name := p.advance().text
		return ast.IdentPattern{Name: name}, nil
	default:
		lo, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if p.atPunct("..") || p.atPunct("..=") {
			inclusive := p.cur().text == "..="
			p.advance()
			hi, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return ast.RangePattern{Lo: lo, Hi: hi, Inclusive: inclusive}, nil
		}
		return ast.LiteralPattern{Value: lo}, nil
	}
}
