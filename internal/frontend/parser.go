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

import (
	"fmt"

	"github.com/gorse-io/vetra/internal/ast"
)

// Parse lexes and parses source (attributed to file for diagnostics) into
// an ast.Program. Errors are returned verbatim to the caller rather than
// collected, matching the "first failing phase" propagation policy the
// rest of the pipeline follows.
func Parse(file, source string) (ast.Program, error) {
	toks, err := lex(file, source)
	if err != nil {
		return ast.Program{}, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) at(kind tokKind, text string) bool {
	t := p.cur()
	return t.kind == kind && (text == "" || t.text == text)
}
func (p *parser) atPunct(s string) bool   { return p.at(tkPunct, s) }
func (p *parser) atKeyword(s string) bool { return p.at(tkKeyword, s) }
func (p *parser) atEOF() bool             { return p.cur().kind == tkEOF }

func (p *parser) advance() token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errf(format string, args ...any) error {
	pos := p.cur().pos
	return fmt.Errorf("%s:%d:%d: %s", pos.File, pos.Line, pos.Column, fmt.Sprintf(format, args...))
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return p.errf("expected %q, found %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectKeyword(s string) error {
	if !p.atKeyword(s) {
		return p.errf("expected keyword %q, found %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	if p.cur().kind != tkIdent {
		return "", p.errf("expected identifier, found %q", p.cur().text)
	}
	return p.advance().text, nil
}

// -------------------------------------------------------------------
// Top level

func (p *parser) parseProgram() (ast.Program, error) {
	var prog ast.Program
	for !p.atEOF() {
		if p.atPunct(";") {
			p.advance()
			continue
		}
		top, err := p.parseTopLevel()
		if err != nil {
			return ast.Program{}, err
		}
		if top != nil {
			prog.TopLevels = append(prog.TopLevels, top)
		}
	}
	return prog, nil
}

func (p *parser) parseAccess() string {
	switch {
	case p.atKeyword("public"):
		p.advance()
		return "public"
	case p.atKeyword("private"):
		p.advance()
		return "private"
	case p.atKeyword("protected"):
		p.advance()
		return "protected"
	default:
		return "public"
	}
}

// parseAttrs consumes zero or more "#[name]"-style function attributes
// preceding a fn declaration.
func (p *parser) parseAttrs() (ast.FunctionAttrs, error) {
	var attrs ast.FunctionAttrs
	for p.atPunct("#") {
		p.advance()
		if err := p.expectPunct("["); err != nil {
			return attrs, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return attrs, err
		}
		switch name {
		case "inline":
			attrs.Inline = "hint"
			if p.atPunct("(") {
				p.advance()
				mode, err := p.expectIdent()
				if err != nil {
					return attrs, err
				}
				attrs.Inline = mode
				if err := p.expectPunct(")"); err != nil {
					return attrs, err
				}
			}
		case "pure":
			attrs.Pure = true
		case "const":
			attrs.Const = true
		case "hot":
			attrs.Hot = true
		case "cold":
			attrs.Cold = true
		}
		if err := p.expectPunct("]"); err != nil {
			return attrs, err
		}
	}
	return attrs, nil
}

func (p *parser) parseTopLevel() (ast.TopLevel, error) {
	attrs, err := p.parseAttrs()
	if err != nil {
		return nil, err
	}
	p.parseAccess()
	if p.atKeyword("static") {
		p.advance()
	}

	switch {
	case p.atKeyword("const"):
		return p.parseConst()
	case p.atKeyword("class"):
		return p.parseClass()
	case p.atKeyword("struct"):
		return p.parseStruct()
	case p.atKeyword("enum"):
		return p.parseEnum()
	case p.atKeyword("trait"):
		return p.parseTrait()
	case p.atKeyword("impl"):
		return p.parseImpl()
	case p.atKeyword("namespace"):
		return p.parseNamespace()
	case p.atKeyword("type"):
		return p.parseTypeAlias()
	case p.atKeyword("use"):
		p.advance()
		for !p.atPunct(";") && !p.atEOF() {
			p.advance()
		}
		if p.atPunct(";") {
			p.advance()
		}
		return nil, nil
	case p.atKeyword("fn"):
		return p.parseFunction(attrs)
	default:
		return nil, p.errf("unexpected token %q at top level", p.cur().text)
	}
}

func (p *parser) parseConst() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
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
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return ast.ConstDecl{Pos: pos, Name: name, Type: typ, Value: value}, nil
}

func (p *parser) parseNamespace() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var tops []ast.TopLevel
	for !p.atPunct("}") && !p.atEOF() {
		t, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		if t != nil {
			tops = append(tops, t)
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return ast.NamespaceDecl{Pos: pos, Name: name, TopLevels: tops}, nil
}

func (p *parser) parseTypeAlias() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return ast.TypeAliasDecl{Pos: pos, Name: name, Type: typ}, nil
}

func (p *parser) parseEnum() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var variants []ast.EnumVariant
	for !p.atPunct("}") && !p.atEOF() {
		vname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		var payload []ast.Type
		if p.atPunct("(") {
			p.advance()
			for !p.atPunct(")") {
				t, err := p.parseType()
				if err != nil {
					return nil, err
				}
				payload = append(payload, t)
				if p.atPunct(",") {
					p.advance()
				}
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
		}
		variants = append(variants, ast.EnumVariant{Name: vname, Payload: payload})
		if p.atPunct(",") {
			p.advance()
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return ast.EnumDecl{Pos: pos, Name: name, Variants: variants}, nil
}

func (p *parser) parseStruct() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	fields, err := p.parseFieldBlock()
	if err != nil {
		return nil, err
	}
	return ast.StructDecl{Pos: pos, Name: name, Fields: fields}, nil
}

func (p *parser) parseFieldBlock() ([]ast.ClassField, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var fields []ast.ClassField
	for !p.atPunct("}") && !p.atEOF() {
		access := p.parseAccess()
		static := false
		if p.atKeyword("static") {
			p.advance()
			static = true
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if p.atPunct(";") {
			p.advance()
		} else if p.atPunct(",") {
			p.advance()
		}
		fields = append(fields, ast.ClassField{Name: name, Type: typ, Static: static, Access: access})
	}
	return fields, p.expectPunct("}")
}

func (p *parser) parseClass() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	decl := ast.ClassDecl{Pos: pos, Name: name}
	for !p.atPunct("}") && !p.atEOF() {
		attrs, err := p.parseAttrs()
		if err != nil {
			return nil, err
		}
		access := p.parseAccess()
		static := false
		if p.atKeyword("static") {
			p.advance()
			static = true
		}
		switch {
		case p.atKeyword("fn"):
			fn, err := p.parseFunctionBody(attrs)
			if err != nil {
				return nil, err
			}
			switch fn.Name {
			case name:
				decl.Constructor = &fn
			case "~" + name:
				decl.Destructor = &fn
			default:
				decl.Methods = append(decl.Methods, fn)
			}
		default:
			fname, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			ftyp, err := p.parseType()
			if err != nil {
				return nil, err
			}
			if p.atPunct(";") {
				p.advance()
			}
			decl.Fields = append(decl.Fields, ast.ClassField{Name: fname, Type: ftyp, Static: static, Access: access})
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *parser) parseTrait() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var methods []ast.FunctionDecl
	for !p.atPunct("}") && !p.atEOF() {
		attrs, err := p.parseAttrs()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("fn"); err != nil {
			return nil, err
		}
		fn, err := p.parseFunctionSig(attrs)
		if err != nil {
			return nil, err
		}
		if p.atPunct("{") {
			body, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			fn.Body = body
		} else if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		methods = append(methods, fn)
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return ast.TraitDecl{Pos: pos, Name: name, Methods: methods}, nil
}

func (p *parser) parseImpl() (ast.TopLevel, error) {
	pos := p.cur().pos
	p.advance()
	first, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	decl := ast.ImplDecl{Pos: pos, Target: first}
	if p.atKeyword("for") {
		p.advance()
		target, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		decl.Trait = first
		decl.Target = target
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	for !p.atPunct("}") && !p.atEOF() {
		attrs, err := p.parseAttrs()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("fn"); err != nil {
			return nil, err
		}
		fn, err := p.parseFunctionBody(attrs)
		if err != nil {
			return nil, err
		}
		decl.Methods = append(decl.Methods, fn)
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *parser) parseFunction(attrs ast.FunctionAttrs) (ast.TopLevel, error) {
	fn, err := p.parseFunctionBody(attrs)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

func (p *parser) parseFunctionSig(attrs ast.FunctionAttrs) (ast.FunctionDecl, error) {
	pos := p.cur().pos
	name, err := p.expectIdent()
	if err != nil {
		return ast.FunctionDecl{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return ast.FunctionDecl{}, err
	}
	var params []ast.Param
	for !p.atPunct(")") {
		if p.atKeyword("self") || p.atKeyword("this") {
			p.advance()
		} else {
			pname, err := p.expectIdent()
			if err != nil {
				return ast.FunctionDecl{}, err
			}
			if err := p.expectPunct(":"); err != nil {
				return ast.FunctionDecl{}, err
			}
			ptyp, err := p.parseType()
			if err != nil {
				return ast.FunctionDecl{}, err
			}
			params = append(params, ast.Param{Name: pname, Type: ptyp})
		}
		if p.atPunct(",") {
			p.advance()
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return ast.FunctionDecl{}, err
	}
	ret := ast.Type{Kind: ast.TypeVoid}
	if p.atPunct("->") {
		p.advance()
		var err error
		ret, err = p.parseType()
		if err != nil {
			return ast.FunctionDecl{}, err
		}
	}
	return ast.FunctionDecl{Pos: pos, Name: name, Params: params, ReturnType: ret, Attrs: attrs}, nil
}

func (p *parser) parseFunctionBody(attrs ast.FunctionAttrs) (ast.FunctionDecl, error) {
	if err := p.expectKeyword("fn"); err != nil {
		return ast.FunctionDecl{}, err
	}
	fn, err := p.parseFunctionSig(attrs)
	if err != nil {
		return ast.FunctionDecl{}, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return ast.FunctionDecl{}, err
	}
	fn.Body = body
	return fn, nil
}

// -------------------------------------------------------------------
// Types

func (p *parser) parseType() (ast.Type, error) {
	var base ast.Type
	switch {
	case p.atPunct("&"):
		p.advance()
		mut := false
		if p.atKeyword("mut") {
			p.advance()
			mut = true
		}
		elem, err := p.parseType()
		if err != nil {
			return ast.Type{}, err
		}
		return ast.Type{Kind: ast.TypeRef, Elem: &elem, Mutable: mut}, nil
	case p.atPunct("*"):
		p.advance()
		elem, err := p.parseType()
		if err != nil {
			return ast.Type{}, err
		}
		return ast.Type{Kind: ast.TypePointer, Elem: &elem}, nil
	case p.atPunct("("):
		p.advance()
		var elems []ast.Type
		for !p.atPunct(")") {
			t, err := p.parseType()
			if err != nil {
				return ast.Type{}, err
			}
			elems = append(elems, t)
			if p.atPunct(",") {
				p.advance()
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return ast.Type{}, err
		}
		return ast.Type{Kind: ast.TypeTuple, Elems: elems}, nil
	case p.cur().kind == tkKeyword:
		kind, ok := primitiveKind(p.cur().text)
		if !ok {
			return ast.Type{}, p.errf("expected type, found %q", p.cur().text)
		}
		p.advance()
		base = ast.Type{Kind: kind}
	case p.cur().kind == tkIdent:
		name := p.advance().text
		var args []ast.Type
		if p.atPunct("<") {
			p.advance()
			for !p.atPunct(">") {
				t, err := p.parseType()
				if err != nil {
					return ast.Type{}, err
				}
				args = append(args, t)
				if p.atPunct(",") {
					p.advance()
				}
			}
			if err := p.expectPunct(">"); err != nil {
				return ast.Type{}, err
			}
			base = ast.Type{Kind: ast.TypeGenericNamed, Name: name, Args: args}
		} else {
			base = ast.Type{Kind: ast.TypeNamed, Name: name}
		}
	default:
		return ast.Type{}, p.errf("expected type, found %q", p.cur().text)
	}
	for p.atPunct("[") {
		p.advance()
		length := -1
		if p.cur().kind == tkInt {
			digits, _ := splitNumSuffix(p.advance().text)
			length = int(mustAtoi(digits))
		}
		if err := p.expectPunct("]"); err != nil {
			return ast.Type{}, err
		}
		base = ast.Type{Kind: ast.TypeArray, Elem: &base, Len: length}
	}
	return base, nil
}

func primitiveKind(s string) (ast.TypeKind, bool) {
	switch s {
	case "i8":
		return ast.TypeI8, true
	case "i16":
		return ast.TypeI16, true
	case "i32":
		return ast.TypeI32, true
	case "i64":
		return ast.TypeI64, true
	case "u8":
		return ast.TypeU8, true
	case "u16":
		return ast.TypeU16, true
	case "u32":
		return ast.TypeU32, true
	case "u64":
		return ast.TypeU64, true
	case "f32":
		return ast.TypeF32, true
	case "f64":
		return ast.TypeF64, true
	case "bool":
		return ast.TypeBool, true
	case "char":
		return ast.TypeChar, true
	case "string":
		return ast.TypeString, true
	case "void":
		return ast.TypeVoid, true
	case "var":
		return ast.TypeInferred, true
	case "never":
		return ast.TypeNever, true
	default:
		return 0, false
	}
}
