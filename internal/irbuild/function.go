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

package irbuild

import (
	"github.com/gorse-io/vetra/internal/ast"
	"github.com/gorse-io/vetra/internal/ir"
)

func attrsOf(a ast.FunctionAttrs) ir.FunctionAttributes {
	out := ir.FunctionAttributes{Pure: a.Pure, ConstFn: a.Const, Hot: a.Hot, Cold: a.Cold}
	switch a.Inline {
	case "always":
		out.Inline = ir.InlineAlways
	case "hint":
		out.Inline = ir.InlineHintSet
	case "never":
		out.NoInline = true
	}
	return out
}

func (b *Builder) buildFunction(localName string, decl ast.FunctionDecl) error {
	qualified := b.qualify(localName)
	params := make([]ir.Param, len(decl.Params))
	for i, p := range decl.Params {
		params[i] = ir.Param{Name: p.Name, Type: lowerType(p.Type)}
	}
	ret := lowerType(decl.ReturnType)
	fn := ir.NewFunction(qualified, params, ret)
	fn.Attrs = attrsOf(decl.Attrs)
	fn.NewBlock() // entry, block 0

	b.fn = fn
	b.block = fn.Entry()
	b.scopes = []map[string]addrEntry{{}}
	b.defers = [][]ast.Expr{nil}

	for i, p := range decl.Params {
		b.bind(p.Name, ir.ArgVal(i), params[i].Type)
	}

	if err := b.buildStmts(decl.Body); err != nil {
		return err
	}
	if !b.block.HasTerminator() {
		if err := b.emitImplicitReturn(decl, ret); err != nil {
			return err
		}
	}

	b.prog.AddFunction(fn)
	b.fn, b.block = nil, nil
	return nil
}

// emitImplicitReturn closes off a function body that fell through without
// an explicit return: void functions get an implicit "ret void", and
// non-void functions raise the missing-return BuildError.
func (b *Builder) emitImplicitReturn(decl ast.FunctionDecl, ret ir.Type) error {
	if ret.Kind != ir.Void {
		return errMissingReturn(decl.Pos, decl.Name)
	}
	b.emitDefers()
	b.emit(ir.Instruction{Op: ir.OpReturn, Dst: -1, Ty: ir.TypeVoid, TrueBlock: -1, FalseBlock: -1})
	return nil
}

// --- scope management -------------------------------------------------

func (b *Builder) pushScope() { b.scopes = append(b.scopes, map[string]addrEntry{}) }

func (b *Builder) popScope() { b.scopes = b.scopes[:len(b.scopes)-1] }

func (b *Builder) bind(name string, addr ir.Value, ty ir.Type) {
	b.scopes[len(b.scopes)-1][name] = addrEntry{Addr: addr, Type: ty}
}

// lookup walks the scope stack innermost-first, per the lexical-scoping
// invariant in ast's package doc.
func (b *Builder) lookup(name string) (addrEntry, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if e, ok := b.scopes[i][name]; ok {
			return e, true
		}
	}
	return addrEntry{}, false
}

// --- instruction emission ---------------------------------------------

func (b *Builder) emit(inst ir.Instruction) {
	if inst.TrueBlock == 0 && inst.FalseBlock == 0 && !inst.Op.IsTerminator() {
		inst.TrueBlock, inst.FalseBlock = -1, -1
	}
	b.block.AddInst(inst)
}

func (b *Builder) newReg() int { return b.fn.NewReg() }

func (b *Builder) switchTo(blockID int) { b.block = b.fn.Block(blockID) }

// terminated reports whether the current block already ends in a
// return/branch/cond-branch and should stop receiving further instructions.
func (b *Builder) terminated() bool { return b.block.HasTerminator() }

func (b *Builder) branchTo(target int) {
	if !b.terminated() {
		b.emit(ir.Instruction{Op: ir.OpBranch, Dst: -1, TrueBlock: target, FalseBlock: -1})
	}
}

func (b *Builder) condBranch(cond ir.Value, trueB, falseB int) {
	b.emit(ir.Instruction{Op: ir.OpCondBranch, Dst: -1, X: cond, TrueBlock: trueB, FalseBlock: falseB})
}

// pushLoop/popLoop maintain the loop stack consulted by break/continue.
func (b *Builder) pushLoop(continueBlock, exitBlock int) {
	b.loops = append(b.loops, loopCtx{continueBlock: continueBlock, exitBlock: exitBlock})
}

func (b *Builder) popLoop() { b.loops = b.loops[:len(b.loops)-1] }

func (b *Builder) currentLoop() (loopCtx, bool) {
	if len(b.loops) == 0 {
		return loopCtx{}, false
	}
	return b.loops[len(b.loops)-1], true
}

// emitDefers emits every deferred call registered in the innermost defer
// frame, in LIFO order, immediately before a return.
func (b *Builder) emitDefers() {
	frame := b.defers[len(b.defers)-1]
	for i := len(frame) - 1; i >= 0; i-- {
		_, _ = b.buildExpr(frame[i])
	}
}

func (b *Builder) pushDeferFrame()      { b.defers = append(b.defers, nil) }
func (b *Builder) popDeferFrame()       { b.defers = b.defers[:len(b.defers)-1] }
func (b *Builder) addDefer(call ast.Expr) {
	top := len(b.defers) - 1
	b.defers[top] = append(b.defers[top], call)
}
