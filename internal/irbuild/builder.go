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

// Package irbuild lowers an ast.Program into an ir.Program. It manages
// lexical scopes, locals, labels, symbol tables and loop stacks while
// walking the AST; see Builder.Build.
package irbuild

import (
	"strings"

	"github.com/gorse-io/vetra/internal/ast"
	"github.com/gorse-io/vetra/internal/ir"
	"github.com/gorse-io/vetra/internal/syspkg"
)

// addrEntry is what a scope binds a name to: the addressable location
// (almost always a Local slot, or an Argument for parameters) plus its IR
// type, so later Load/Store sites don't need to re-derive the type.
type addrEntry struct {
	Addr ir.Value
	Type ir.Type
}

type loopCtx struct {
	continueBlock int
	exitBlock     int
}

// Builder walks one ast.Program and accumulates an ir.Program. It is not
// reentrant across goroutines; one Builder lowers one compilation unit on
// one thread, matching the single-threaded model of the whole toolchain.
type Builder struct {
	prog *ir.Program
	reg  *syspkg.Registry

	fn        *ir.Function
	block     *ir.BasicBlock
	scopes    []map[string]addrEntry
	loops     []loopCtx
	namespace []string
	class     string
	defers    [][]ast.Expr
}

// New creates a Builder over the given system package registry, which
// the IR builder consults to validate calls and to qualify Console*-style
// method calls to their intrinsic symbol.
func New(reg *syspkg.Registry) *Builder {
	return &Builder{prog: ir.NewProgram(), reg: reg}
}

// Build lowers an entire program, returning the first BuildError encountered
// or a fully-formed ir.Program.
func (b *Builder) Build(p *ast.Program) (*ir.Program, error) {
	if err := b.buildTopLevels(p.TopLevels); err != nil {
		return nil, err
	}
	return b.prog, nil
}

func (b *Builder) qualify(name string) string {
	parts := append(append([]string{}, b.namespace...))
	if b.class != "" {
		parts = append(parts, b.class)
	}
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

func (b *Builder) buildTopLevels(tops []ast.TopLevel) error {
	for _, top := range tops {
		if err := b.buildTopLevel(top); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildTopLevel(top ast.TopLevel) error {
	switch t := top.(type) {
	case ast.FunctionDecl:
		return b.buildFunction(t.Name, t)
	case ast.ClassDecl:
		return b.buildClass(t)
	case ast.StructDecl:
		return nil // struct layout is consumed lazily by object-literal lowering
	case ast.EnumDecl:
		return nil // enum payload layout likewise consumed lazily
	case ast.TraitDecl:
		return nil // traits have no codegen; impls carry the methods
	case ast.ImplDecl:
		save := b.class
		b.class = t.Target
		for _, m := range t.Methods {
			if err := b.buildFunction(m.Name, m); err != nil {
				b.class = save
				return err
			}
		}
		b.class = save
		return nil
	case ast.TypeAliasDecl:
		return nil
	case ast.NamespaceDecl:
		b.namespace = append(b.namespace, t.Name)
		err := b.buildTopLevels(t.TopLevels)
		b.namespace = b.namespace[:len(b.namespace)-1]
		return err
	case ast.ConstDecl:
		return b.buildConst(t)
	default:
		return errUnsupported(ast.Pos{}, "top-level declaration")
	}
}

func (b *Builder) buildClass(c ast.ClassDecl) error {
	save := b.class
	b.class = c.Name
	for _, f := range c.Fields {
		if f.Static {
			ty := lowerType(f.Type)
			b.prog.AddGlobal(&ir.Global{Name: b.class + "." + f.Name, Type: ty, Align: max(ty.Alignment(), 1)})
		}
	}
	if c.Constructor != nil {
		if err := b.buildFunction("new", *c.Constructor); err != nil {
			b.class = save
			return err
		}
	}
	if c.Destructor != nil {
		if err := b.buildFunction("drop", *c.Destructor); err != nil {
			b.class = save
			return err
		}
	}
	for _, m := range c.Methods {
		if err := b.buildFunction(m.Name, m); err != nil {
			b.class = save
			return err
		}
	}
	b.class = save
	return nil
}

func (b *Builder) buildConst(c ast.ConstDecl) error {
	val, _, err := b.constEval(c.Value)
	if err != nil {
		return err
	}
	ty := lowerType(c.Type)
	b.prog.AddGlobal(&ir.Global{Name: b.qualify(c.Name), Type: ty, Init: &val, Const: true, Align: max(ty.Alignment(), 1)})
	return nil
}

// constEval evaluates a restricted subset of constant expressions (literals
// and negation) used for const globals and array sizes.
func (b *Builder) constEval(e ast.Expr) (ir.Constant, ir.Type, error) {
	switch v := e.(type) {
	case ast.IntLit:
		ty := inferLitType(v.Type, ir.TypeI32)
		return ir.IntConst(constKindFor(ty), v.Value), ty, nil
	case ast.FloatLit:
		ty := inferLitType(v.Type, ir.TypeF64)
		return ir.FloatConst(constKindFor(ty), v.Value), ty, nil
	case ast.BoolLit:
		return ir.BoolConst(v.Value), ir.TypeBool, nil
	case ast.StringLit:
		return ir.StringConst(v.Value), ir.PtrTo(ir.TypeI8), nil
	case ast.UnaryExpr:
		if v.Op == "-" {
			c, ty, err := b.constEval(v.X)
			if err != nil {
				return ir.Constant{}, ir.Type{}, err
			}
			if ty.IsFloat() {
				return ir.FloatConst(c.Kind, -c.F), ty, nil
			}
			return ir.IntConst(c.Kind, -c.I), ty, nil
		}
	}
	return ir.Constant{}, ir.Type{}, errUnsupported(ast.Pos{}, "non-constant initializer")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
