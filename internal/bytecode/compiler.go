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

package bytecode

import (
	"github.com/gorse-io/vetra/internal/ast"
)

// loopCtx tracks the two jump sites every loop body needs to patch:
// continue rewinds to the condition re-check, break exits past the loop.
// breakSites accumulates as break statements are compiled and is patched
// once the loop's exit offset is known.
type loopCtx struct {
	continueTarget int // -1 if not yet known (for/foreach: the post-increment hasn't been compiled yet)
	breakSites     []int
	continueSites  []int // deferred continue jumps, patched once continueTarget is known
}

// scope is one lexical block's name→local-slot bindings, pushed on block
// entry and popped on exit so a slot's name binding doesn't leak past its
// block (the slot itself is never reclaimed — Locals only grows, matching
// the simplicity of the original source's scope-stack model).
type scope map[string]int

// Compiler lowers one ast.Program into a Module via a two-pass scheme:
// function pre-registration first (so forward calls resolve), then a
// single AST walk per function body.
type Compiler struct {
	mod        *Module
	funcIdx    map[string]int
	scopes     []scope
	loops      []loopCtx
	numLocals  int
	class      string
}

func NewCompiler() *Compiler {
	return &Compiler{mod: NewModule(), funcIdx: map[string]int{}}
}

// Compile runs both passes and returns the finished Module.
func (c *Compiler) Compile(prog ast.Program) (*Module, error) {
	decls := c.collectFunctions(prog.TopLevels, "")
	for i, d := range decls {
		c.funcIdx[d.Name] = i
		c.mod.Funcs = append(c.mod.Funcs, FuncEntry{Name: d.Name, Params: len(d.Params)})
	}

	// Top-level consts have no enclosing function, so they're evaluated into
	// Globals slots at the very head of Code, ahead of the entry stub. The
	// Compiler's scope stack is left empty here: resolve() falls straight
	// through to the global table, which is exactly what Ident lookups
	// inside a const's own initializer (and everywhere else) expect.
	c.scopes = []scope{}
	if err := c.compileTopConsts(prog.TopLevels, ""); err != nil {
		return nil, err
	}

	mainIdx, hasMain := c.funcIdx["main"]
	if hasMain {
		c.mod.emit(Inst{Op: OpCall, FuncIdx: mainIdx, Argc: 0})
		c.mod.emit(Inst{Op: OpHalt})
	}

	for i, d := range decls {
		if err := c.compileFunction(i, d); err != nil {
			return nil, err
		}
	}
	if !hasMain {
		c.mod.emit(Inst{Op: OpHalt})
	}
	return c.mod, nil
}

// compileTopConsts walks top-level ConstDecls (recursing into namespaces the
// same way collectFunctions does) and emits, for each one, an initializer
// that evaluates its value expression and stores it into a fresh global slot
// named by its (possibly namespace-qualified) identifier.
func (c *Compiler) compileTopConsts(tops []ast.TopLevel, prefix string) error {
	for _, t := range tops {
		switch d := t.(type) {
		case ast.ConstDecl:
			name := prefix + d.Name
			slot := c.mod.globalIndex(name)
			if err := c.compileExpr(d.Value); err != nil {
				return err
			}
			c.mod.emit(Inst{Op: OpStoreGlobal, Global: slot})
			c.mod.emit(Inst{Op: OpPop})
		case ast.NamespaceDecl:
			if err := c.compileTopConsts(d.TopLevels, prefix+d.Name+"."); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectFunctions walks top-level declarations (including namespaces and
// class method lists) in source order, qualifying class methods as
// "ClassName.method" the same way internal/irbuild does.
func (c *Compiler) collectFunctions(tops []ast.TopLevel, prefix string) []ast.FunctionDecl {
	var out []ast.FunctionDecl
	for _, t := range tops {
		switch d := t.(type) {
		case ast.FunctionDecl:
			d.Name = prefix + d.Name
			out = append(out, d)
		case ast.ClassDecl:
			if d.Constructor != nil {
				ctor := *d.Constructor
				ctor.Name = d.Name + "." + "new"
				out = append(out, ctor)
			}
			if d.Destructor != nil {
				dtor := *d.Destructor
				dtor.Name = d.Name + "." + "delete"
				out = append(out, dtor)
			}
			for _, m := range d.Methods {
				m.Name = d.Name + "." + m.Name
				out = append(out, m)
			}
		case ast.NamespaceDecl:
			out = append(out, c.collectFunctions(d.TopLevels, prefix+d.Name+".")...)
		}
	}
	return out
}

func (c *Compiler) compileFunction(idx int, d ast.FunctionDecl) error {
	c.numLocals = 0
	c.scopes = []scope{{}}
	top := c.scopes[0]
	for _, p := range d.Params {
		top[p.Name] = c.newLocal()
	}
	c.mod.Funcs[idx].Entry = c.mod.here()
	for _, st := range d.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	last := c.lastOp()
	if last != OpReturn && last != OpReturnVal {
		c.mod.emit(Inst{Op: OpNull})
		c.mod.emit(Inst{Op: OpReturnVal})
	}
	c.mod.Funcs[idx].Locals = c.numLocals
	return nil
}

func (c *Compiler) lastOp() Op {
	if len(c.mod.Code) == 0 {
		return -1
	}
	return c.mod.Code[len(c.mod.Code)-1].Op
}

func (c *Compiler) newLocal() int {
	id := c.numLocals
	c.numLocals++
	return id
}

func (c *Compiler) pushScope() { c.scopes = append(c.scopes, scope{}) }
func (c *Compiler) popScope()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *Compiler) declareLocal(name string) int {
	slot := c.newLocal()
	c.scopes[len(c.scopes)-1][name] = slot
	return slot
}

// resolve finds name as a local (innermost scope first), falling back to a
// global binding; the bool reports whether it resolved at all.
func (c *Compiler) resolve(name string) (slot int, isGlobal bool, ok bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if s, found := c.scopes[i][name]; found {
			return s, false, true
		}
	}
	for i, g := range c.mod.Globals {
		if g == name {
			return i, true, true
		}
	}
	return 0, false, false
}
