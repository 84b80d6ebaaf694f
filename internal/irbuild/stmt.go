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

func (b *Builder) buildStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if b.terminated() {
			// A statement stops a block from further emission iff the block
			// now ends in return/branch/cond-branch; unreachable statements
			// after that point are simply not lowered.
			return nil
		}
		if err := b.buildStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case ast.VarDecl:
		return b.buildVarDecl(st)
	case ast.AssignStmt:
		return b.buildAssign(st)
	case ast.ExprStmt:
		_, err := b.buildExpr(st.X)
		return err
	case ast.ReturnStmt:
		return b.buildReturn(st)
	case ast.BreakStmt:
		lp, ok := b.currentLoop()
		if !ok {
			return errBreakOutsideLoop(st.Pos)
		}
		b.branchTo(lp.exitBlock)
		return nil
	case ast.ContinueStmt:
		lp, ok := b.currentLoop()
		if !ok {
			return errContinueOutsideLoop(st.Pos)
		}
		b.branchTo(lp.continueBlock)
		return nil
	case ast.IfStmt:
		return b.buildIf(st)
	case ast.WhileStmt:
		return b.buildWhile(st)
	case ast.ForStmt:
		return b.buildFor(st)
	case ast.ForeachStmt:
		return b.buildForeach(st)
	case ast.MatchStmt:
		return b.buildMatch(st)
	case ast.BlockStmt:
		b.pushScope()
		err := b.buildStmts(st.Stmts)
		b.popScope()
		return err
	case ast.DeferStmt:
		b.addDefer(st.Call)
		return nil
	default:
		return errUnsupported(ast.Pos{}, "statement")
	}
}

func (b *Builder) buildVarDecl(st ast.VarDecl) error {
	var ty ir.Type
	var init ir.Value
	if st.Init != nil {
		v, vty, err := b.buildExprTyped(st.Init)
		if err != nil {
			return err
		}
		init = v
		if st.Type.Kind == ast.TypeInferred {
			ty = vty
		} else {
			ty = lowerType(st.Type)
		}
	} else {
		if st.Type.Kind == ast.TypeInferred {
			return errUninitializedInferred(st.Pos, st.Name)
		}
		ty = lowerType(st.Type)
		init = zeroValue(ty)
	}
	slot := b.fn.NewLocal()
	addr := ir.LocalVal(slot)
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: init, Addr: addr, Ty: ty})
	b.bind(st.Name, addr, ty)
	return nil
}

func zeroValue(ty ir.Type) ir.Value {
	switch {
	case ty.IsFloat():
		return ir.ConstVal(ir.FloatConst(constKindFor(ty), 0))
	case ty.Kind == ir.Bool:
		return ir.ConstVal(ir.BoolConst(false))
	case ty.Kind == ir.Ptr:
		return ir.ConstVal(ir.NullConst())
	default:
		return ir.ConstVal(ir.IntConst(constKindFor(ty), 0))
	}
}

func (b *Builder) buildReturn(st ast.ReturnStmt) error {
	if st.Value == nil {
		b.emitDefers()
		b.emit(ir.Instruction{Op: ir.OpReturn, Dst: -1, Ty: ir.TypeVoid, TrueBlock: -1, FalseBlock: -1})
		return nil
	}
	v, ty, err := b.buildExprTyped(st.Value)
	if err != nil {
		return err
	}
	b.emitDefers()
	b.emit(ir.Instruction{Op: ir.OpReturn, Dst: -1, X: v, Ty: ty, TrueBlock: -1, FalseBlock: -1})
	return nil
}

// buildIf lowers if/elif-chain/else using two fresh blocks per level
// (then, else) plus one merge block shared by the whole chain; each arm
// that does not already terminate gets an unconditional branch to that
// merge block appended.
func (b *Builder) buildIf(st ast.IfStmt) error {
	merge := b.fn.NewBlock()
	if err := b.buildIfChain(st.Cond, st.Then, st.Elifs, st.Else, merge); err != nil {
		return err
	}
	b.switchTo(merge)
	return nil
}

func (b *Builder) buildIfChain(cond ast.Expr, then []ast.Stmt, elifs []ast.ElifBranch, els []ast.Stmt, merge int) error {
	thenB := b.fn.NewBlock()
	elseB := b.fn.NewBlock()

	cv, err := b.buildExpr(cond)
	if err != nil {
		return err
	}
	b.condBranch(cv, thenB, elseB)

	b.switchTo(thenB)
	b.pushScope()
	err = b.buildStmts(then)
	b.popScope()
	if err != nil {
		return err
	}
	b.branchTo(merge)

	b.switchTo(elseB)
	b.pushScope()
	defer b.popScope()
	if len(elifs) > 0 {
		if err := b.buildIfChain(elifs[0].Cond, elifs[0].Body, elifs[1:], els, merge); err != nil {
			return err
		}
		return nil
	}
	if err := b.buildStmts(els); err != nil {
		return err
	}
	b.branchTo(merge)
	return nil
}

// buildWhile allocates header/body/exit blocks; break/continue target
// exit/header respectively.
func (b *Builder) buildWhile(st ast.WhileStmt) error {
	header := b.fn.NewBlock()
	body := b.fn.NewBlock()
	exit := b.fn.NewBlock()

	b.branchTo(header)
	b.switchTo(header)
	cv, err := b.buildExpr(st.Cond)
	if err != nil {
		return err
	}
	b.condBranch(cv, body, exit)

	b.switchTo(body)
	b.pushLoop(header, exit)
	b.pushScope()
	err = b.buildStmts(st.Body)
	b.popScope()
	b.popLoop()
	if err != nil {
		return err
	}
	b.branchTo(header)

	b.switchTo(exit)
	return nil
}

// buildFor pre-emits Init, then lowers header/body/inc/exit; continue
// targets the increment block.
func (b *Builder) buildFor(st ast.ForStmt) error {
	b.pushScope()
	defer b.popScope()
	if st.Init != nil {
		if err := b.buildStmt(st.Init); err != nil {
			return err
		}
	}
	header := b.fn.NewBlock()
	body := b.fn.NewBlock()
	inc := b.fn.NewBlock()
	exit := b.fn.NewBlock()

	b.branchTo(header)
	b.switchTo(header)
	if st.Cond != nil {
		cv, err := b.buildExpr(st.Cond)
		if err != nil {
			return err
		}
		b.condBranch(cv, body, exit)
	} else {
		b.branchTo(body)
	}

	b.switchTo(body)
	b.pushLoop(inc, exit)
	b.pushScope()
	err := b.buildStmts(st.Body)
	b.popScope()
	b.popLoop()
	if err != nil {
		return err
	}
	b.branchTo(inc)

	b.switchTo(inc)
	if st.Post != nil {
		if err := b.buildStmt(st.Post); err != nil {
			return err
		}
	}
	b.branchTo(header)

	b.switchTo(exit)
	return nil
}

// buildForeach indexes an array slot with an auxiliary index slot, guarded
// by the collection's length, mirroring the bytecode compiler's shape so
// both back ends agree on foreach semantics.
func (b *Builder) buildForeach(st ast.ForeachStmt) error {
	b.pushScope()
	defer b.popScope()

	collV, collTy, err := b.buildExprTyped(st.Coll)
	if err != nil {
		return err
	}
	idxSlot := b.fn.NewLocal()
	idxAddr := ir.LocalVal(idxSlot)
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: ir.ConstVal(ir.IntConst(ir.CInt32, 0)), Addr: idxAddr, Ty: ir.TypeI32})

	length := collTy.Len

	header := b.fn.NewBlock()
	body := b.fn.NewBlock()
	inc := b.fn.NewBlock()
	exit := b.fn.NewBlock()

	b.branchTo(header)
	b.switchTo(header)
	idxReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: idxReg, Ty: ir.TypeI32, Addr: idxAddr})
	condReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpCmpLt, Dst: condReg, Ty: ir.TypeBool,
		X: ir.Reg(idxReg), Y: ir.ConstVal(ir.IntConst(ir.CInt32, int64(length)))})
	b.condBranch(ir.Reg(condReg), body, exit)

	b.switchTo(body)
	elemTy := *collTy.Elem
	idxReg2 := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: idxReg2, Ty: ir.TypeI32, Addr: idxAddr})
	itemReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpGEP, Dst: itemReg, Ty: ir.PtrTo(elemTy), Addr: collV, X: ir.Reg(idxReg2)})
	itemValReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: itemValReg, Ty: elemTy, Addr: ir.Reg(itemReg)})

	b.pushScope()
	itemSlot := b.fn.NewLocal()
	itemAddr := ir.LocalVal(itemSlot)
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: ir.Reg(itemValReg), Addr: itemAddr, Ty: elemTy})
	b.bind(st.ItemName, itemAddr, elemTy)

	b.pushLoop(inc, exit)
	errBody := b.buildStmts(st.Body)
	b.popLoop()
	b.popScope()
	if errBody != nil {
		return errBody
	}
	b.branchTo(inc)

	b.switchTo(inc)
	curReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: curReg, Ty: ir.TypeI32, Addr: idxAddr})
	nextReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpAdd, Dst: nextReg, Ty: ir.TypeI32, X: ir.Reg(curReg), Y: ir.ConstVal(ir.IntConst(ir.CInt32, 1))})
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: ir.Reg(nextReg), Addr: idxAddr, Ty: ir.TypeI32})
	b.branchTo(header)

	b.switchTo(exit)
	return nil
}

// buildMatch lowers to a sequential chain of comparisons: literal patterns
// emit Cmp Eq, wildcard always matches, and each arm ends with a branch to
// a common merge block. A match with no wildcard/binding arm that can fall
// through without matching raises errNonExhaustiveMatch rather than the
// undefined-value fallthrough the distilled spec leaves open (see
// SPEC_FULL.md's Open Question decision).
func (b *Builder) buildMatch(st ast.MatchStmt) error {
	subject, subjTy, err := b.buildExprTyped(st.X)
	if err != nil {
		return err
	}
	merge := b.fn.NewBlock()

	hasCatchAll := false
	for _, arm := range st.Arms {
		if isCatchAll(arm.Pattern) {
			hasCatchAll = true
		}
	}
	if !hasCatchAll {
		return errNonExhaustiveMatch(st.Pos)
	}

	for _, arm := range st.Arms {
		armBlock := b.fn.NewBlock()
		nextBlock := b.fn.NewBlock()
		if err := b.buildPatternTest(arm.Pattern, subject, subjTy, armBlock, nextBlock); err != nil {
			return err
		}
		b.switchTo(armBlock)
		b.pushScope()
		if err := b.bindPattern(arm.Pattern, subject, subjTy); err != nil {
			b.popScope()
			return err
		}
		err := b.buildStmts(arm.Body)
		b.popScope()
		if err != nil {
			return err
		}
		b.branchTo(merge)
		b.switchTo(nextBlock)
	}
	b.branchTo(merge)
	b.switchTo(merge)
	return nil
}

func isCatchAll(p ast.Pattern) bool {
	switch pp := p.(type) {
	case ast.WildcardPattern:
		return true
	case ast.IdentPattern:
		return true
	case ast.GuardPattern:
		return false // a guard can fail, so it never catches all by itself
	default:
		_ = pp
		return false
	}
}

func (b *Builder) buildPatternTest(p ast.Pattern, subject ir.Value, ty ir.Type, match, next int) error {
	switch pat := p.(type) {
	case ast.WildcardPattern, ast.IdentPattern:
		b.branchTo(match)
		return nil
	case ast.LiteralPattern:
		lv, _, err := b.buildExprTyped(pat.Value)
		if err != nil {
			return err
		}
		cmpReg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpCmpEq, Dst: cmpReg, Ty: ir.TypeBool, X: subject, Y: lv})
		b.condBranch(ir.Reg(cmpReg), match, next)
		return nil
	case ast.RangePattern:
		lo, _, err := b.buildExprTyped(pat.Lo)
		if err != nil {
			return err
		}
		hi, _, err := b.buildExprTyped(pat.Hi)
		if err != nil {
			return err
		}
		geReg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpCmpGe, Dst: geReg, Ty: ir.TypeBool, X: subject, Y: lo})
		op := ir.OpCmpLt
		if pat.Inclusive {
			op = ir.OpCmpLe
		}
		leReg := b.newReg()
		b.emit(ir.Instruction{Op: op, Dst: leReg, Ty: ir.TypeBool, X: subject, Y: hi})
		andReg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpAnd, Dst: andReg, Ty: ir.TypeBool, X: ir.Reg(geReg), Y: ir.Reg(leReg)})
		b.condBranch(ir.Reg(andReg), match, next)
		return nil
	case ast.GuardPattern:
		innerMatch := b.fn.NewBlock()
		if err := b.buildPatternTest(pat.Inner, subject, ty, innerMatch, next); err != nil {
			return err
		}
		b.switchTo(innerMatch)
		gv, err := b.buildExpr(pat.Cond)
		if err != nil {
			return err
		}
		b.condBranch(gv, match, next)
		return nil
	case ast.TuplePattern, ast.ArrayPattern:
		// Structural patterns match unconditionally at the test stage;
		// per-element binding happens in bindPattern.
		b.branchTo(match)
		return nil
	default:
		return errUnsupportedMatchPattern(ast.Pos{})
	}
}

func (b *Builder) bindPattern(p ast.Pattern, subject ir.Value, ty ir.Type) error {
	switch pat := p.(type) {
	case ast.IdentPattern:
		slot := b.fn.NewLocal()
		addr := ir.LocalVal(slot)
		b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: subject, Addr: addr, Ty: ty})
		b.bind(pat.Name, addr, ty)
	case ast.GuardPattern:
		return b.bindPattern(pat.Inner, subject, ty)
	}
	return nil
}
