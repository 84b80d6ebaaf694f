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

import "github.com/gorse-io/vetra/internal/ast"

func (c *Compiler) compileStmt(st ast.Stmt) error {
	switch s := st.(type) {
	case ast.VarDecl:
		return c.compileVarDecl(s)
	case ast.AssignStmt:
		return c.compileAssign(s)
	case ast.ExprStmt:
		if err := c.compileExpr(s.X); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpPop})
		return nil
	case ast.ReturnStmt:
		if s.Value == nil {
			c.mod.emit(Inst{Op: OpReturn})
			return nil
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpReturnVal})
		return nil
	case ast.BreakStmt:
		if len(c.loops) == 0 {
			return errBreakOutsideLoop(s.Pos)
		}
		site := c.mod.emit(Inst{Op: OpJump, Target: 0})
		top := len(c.loops) - 1
		c.loops[top].breakSites = append(c.loops[top].breakSites, site)
		return nil
	case ast.ContinueStmt:
		if len(c.loops) == 0 {
			return errContinueOutsideLoop(s.Pos)
		}
		top := len(c.loops) - 1
		if c.loops[top].continueTarget >= 0 {
			c.mod.emit(Inst{Op: OpJump, Target: c.loops[top].continueTarget})
			return nil
		}
		site := c.mod.emit(Inst{Op: OpJump, Target: 0})
		c.loops[top].continueSites = append(c.loops[top].continueSites, site)
		return nil
	case ast.IfStmt:
		return c.compileIf(s)
	case ast.WhileStmt:
		return c.compileWhile(s)
	case ast.ForStmt:
		return c.compileFor(s)
	case ast.ForeachStmt:
		return c.compileForeach(s)
	case ast.MatchStmt:
		return c.compileMatch(s)
	case ast.BlockStmt:
		c.pushScope()
		defer c.popScope()
		for _, inner := range s.Stmts {
			if err := c.compileStmt(inner); err != nil {
				return err
			}
		}
		return nil
	case ast.DeferStmt:
		// Deferred-call ordering is an IR-builder concern (internal/irbuild);
		// the bytecode path runs a defer's call inline at its source
		// position instead, so the call runs before the statements that
		// follow it rather than when the enclosing function returns.
		return c.compileExprDiscard(s.Call)
	default:
		return errUnsupported(ast.Pos{}, "statement")
	}
}

func (c *Compiler) compileExprDiscard(e ast.Expr) error {
	if err := c.compileExpr(e); err != nil {
		return err
	}
	c.mod.emit(Inst{Op: OpPop})
	return nil
}

func (c *Compiler) compileVarDecl(s ast.VarDecl) error {
	if s.Init != nil {
		if err := c.compileExpr(s.Init); err != nil {
			return err
		}
	} else {
		c.mod.emit(Inst{Op: OpNull})
	}
	slot := c.declareLocal(s.Name)
	c.mod.emit(Inst{Op: OpStoreLocal, Slot: slot})
	c.mod.emit(Inst{Op: OpPop})
	return nil
}

// compileAssign covers both "=" and the compound "+="-style operators:
// plain assignment stores the RHS directly; compound assignment loads the
// target, applies the arithmetic op, then stores.
func (c *Compiler) compileAssign(s ast.AssignStmt) error {
	if s.Op != "=" {
		if err := c.compileBinary(compoundOp(s.Op), s.Target, s.Value); err != nil {
			return err
		}
	} else if err := c.compileExpr(s.Value); err != nil {
		return err
	}
	return c.storeTo(s.Target)
}

func compoundOp(op string) string {
	return op[:len(op)-1]
}

func (c *Compiler) storeTo(target ast.Expr) error {
	switch t := target.(type) {
	case ast.Ident:
		slot, isGlobal, ok := c.resolve(t.Name)
		if !ok {
			return errUnknownIdent(t.Pos, t.Name)
		}
		if isGlobal {
			c.mod.emit(Inst{Op: OpStoreGlobal, Global: slot})
		} else {
			c.mod.emit(Inst{Op: OpStoreLocal, Slot: slot})
		}
		c.mod.emit(Inst{Op: OpPop})
		return nil
	case ast.FieldAccessExpr:
		valSlot := c.declareLocal("")
		c.mod.emit(Inst{Op: OpStoreLocal, Slot: valSlot})
		c.mod.emit(Inst{Op: OpPop})
		if err := c.compileExpr(t.X); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpLoadLocal, Slot: valSlot})
		c.mod.emit(Inst{Op: OpSetField, Field: c.mod.fieldIndex(t.Field)})
		c.mod.emit(Inst{Op: OpPop})
		return nil
	case ast.IndexExpr:
		valSlot := c.declareLocal("")
		c.mod.emit(Inst{Op: OpStoreLocal, Slot: valSlot})
		c.mod.emit(Inst{Op: OpPop})
		if err := c.compileExpr(t.X); err != nil {
			return err
		}
		if err := c.compileExpr(t.Index); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpLoadLocal, Slot: valSlot})
		c.mod.emit(Inst{Op: OpArraySet})
		c.mod.emit(Inst{Op: OpPop})
		return nil
	default:
		return errInvalidAssignTarget(ast.Pos{})
	}
}

// compileIf implements the documented shape: cond; JumpIfFalse L1; then;
// Jump L2; L1: else; L2:. An elif chain is compiled as a nested else.
func (c *Compiler) compileIf(s ast.IfStmt) error {
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	jf := c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
	c.pushScope()
	for _, st := range s.Then {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	c.popScope()
	var mergeSites []int
	mergeSites = append(mergeSites, c.mod.emit(Inst{Op: OpJump, Target: 0}))
	c.mod.patch(jf, c.mod.here())

	for _, elif := range s.Elifs {
		if err := c.compileExpr(elif.Cond); err != nil {
			return err
		}
		jfE := c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
		c.pushScope()
		for _, st := range elif.Body {
			if err := c.compileStmt(st); err != nil {
				return err
			}
		}
		c.popScope()
		mergeSites = append(mergeSites, c.mod.emit(Inst{Op: OpJump, Target: 0}))
		c.mod.patch(jfE, c.mod.here())
	}

	if s.Else != nil {
		c.pushScope()
		for _, st := range s.Else {
			if err := c.compileStmt(st); err != nil {
				return err
			}
		}
		c.popScope()
	}
	merge := c.mod.here()
	for _, site := range mergeSites {
		c.mod.patch(site, merge)
	}
	return nil
}

// compileWhile implements: L0: cond; JumpIfFalse Lend; body; Jump L0; Lend:
func (c *Compiler) compileWhile(s ast.WhileStmt) error {
	header := c.mod.here()
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	jEnd := c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
	c.loops = append(c.loops, loopCtx{continueTarget: header})
	c.pushScope()
	for _, st := range s.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	c.popScope()
	c.mod.emit(Inst{Op: OpJump, Target: header})
	end := c.mod.here()
	c.mod.patch(jEnd, end)
	top := c.loops[len(c.loops)-1]
	for _, site := range top.breakSites {
		c.mod.patch(site, end)
	}
	c.loops = c.loops[:len(c.loops)-1]
	return nil
}

func (c *Compiler) compileFor(s ast.ForStmt) error {
	c.pushScope()
	defer c.popScope()
	if s.Init != nil {
		if err := c.compileStmt(s.Init); err != nil {
			return err
		}
	}
	header := c.mod.here()
	var jEnd int
	hasJEnd := false
	if s.Cond != nil {
		if err := c.compileExpr(s.Cond); err != nil {
			return err
		}
		jEnd = c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
		hasJEnd = true
	}
	// continue targets the post-increment, not the header; post is compiled
	// after the body, so record its offset lazily by patching continue
	// sites once inc's position is known.
	c.loops = append(c.loops, loopCtx{continueTarget: -1})
	for _, st := range s.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	incTarget := c.mod.here()
	if s.Post != nil {
		if err := c.compileStmt(s.Post); err != nil {
			return err
		}
	}
	c.mod.emit(Inst{Op: OpJump, Target: header})
	end := c.mod.here()
	if hasJEnd {
		c.mod.patch(jEnd, end)
	}
	top := c.loops[len(c.loops)-1]
	for _, site := range top.breakSites {
		c.mod.patch(site, end)
	}
	for _, site := range top.continueSites {
		c.mod.patch(site, incTarget)
	}
	c.loops = c.loops[:len(c.loops)-1]
	return nil
}

func (c *Compiler) compileForeach(s ast.ForeachStmt) error {
	c.pushScope()
	defer c.popScope()
	if err := c.compileExpr(s.Coll); err != nil {
		return err
	}
	collSlot := c.declareLocal("")
	c.mod.emit(Inst{Op: OpStoreLocal, Slot: collSlot})
	c.mod.emit(Inst{Op: OpPop})

	c.mod.emit(Inst{Op: OpInt, Int: 0})
	idxSlot := c.declareLocal("")
	c.mod.emit(Inst{Op: OpStoreLocal, Slot: idxSlot})
	c.mod.emit(Inst{Op: OpPop})

	itemSlot := c.declareLocal(s.ItemName)

	header := c.mod.here()
	c.mod.emit(Inst{Op: OpLoadLocal, Slot: idxSlot})
	c.mod.emit(Inst{Op: OpLoadLocal, Slot: collSlot})
	c.mod.emit(Inst{Op: OpArrayLen})
	c.mod.emit(Inst{Op: OpLt})
	jEnd := c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})

	c.mod.emit(Inst{Op: OpLoadLocal, Slot: collSlot})
	c.mod.emit(Inst{Op: OpLoadLocal, Slot: idxSlot})
	c.mod.emit(Inst{Op: OpArrayGet})
	c.mod.emit(Inst{Op: OpStoreLocal, Slot: itemSlot})
	c.mod.emit(Inst{Op: OpPop})

	c.loops = append(c.loops, loopCtx{continueTarget: -1})
	for _, st := range s.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	incTarget := c.mod.here()
	c.mod.emit(Inst{Op: OpLoadLocal, Slot: idxSlot})
	c.mod.emit(Inst{Op: OpInc})
	c.mod.emit(Inst{Op: OpStoreLocal, Slot: idxSlot})
	c.mod.emit(Inst{Op: OpPop})
	c.mod.emit(Inst{Op: OpJump, Target: header})
	end := c.mod.here()
	c.mod.patch(jEnd, end)
	top := c.loops[len(c.loops)-1]
	for _, site := range top.breakSites {
		c.mod.patch(site, end)
	}
	for _, site := range top.continueSites {
		c.mod.patch(site, incTarget)
	}
	c.loops = c.loops[:len(c.loops)-1]
	return nil
}

// compileMatch lowers to the sequential comparison chain the IR builder
// also uses for match: each literal-pattern arm emits an equality compare
// and conditional branch, a wildcard arm always matches, and every arm
// branches to a common merge once its body completes.
func (c *Compiler) compileMatch(s ast.MatchStmt) error {
	xSlot := c.declareLocal("")
	if err := c.compileExpr(s.X); err != nil {
		return err
	}
	c.mod.emit(Inst{Op: OpStoreLocal, Slot: xSlot})
	c.mod.emit(Inst{Op: OpPop})

	var mergeSites []int
	for _, arm := range s.Arms {
		var jf int
		hasJF := false
		switch p := arm.Pattern.(type) {
		case ast.LiteralPattern:
			c.mod.emit(Inst{Op: OpLoadLocal, Slot: xSlot})
			if err := c.compileExpr(p.Value); err != nil {
				return err
			}
			c.mod.emit(Inst{Op: OpEq})
			jf = c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
			hasJF = true
		case ast.WildcardPattern:
			// always matches: no guard emitted
		default:
			return errUnsupported(ast.Pos{}, "match pattern")
		}
		c.pushScope()
		for _, st := range arm.Body {
			if err := c.compileStmt(st); err != nil {
				return err
			}
		}
		c.popScope()
		mergeSites = append(mergeSites, c.mod.emit(Inst{Op: OpJump, Target: 0}))
		if hasJF {
			c.mod.patch(jf, c.mod.here())
		}
	}
	merge := c.mod.here()
	for _, site := range mergeSites {
		c.mod.patch(site, merge)
	}
	return nil
}
