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

package passes

import (
	"github.com/gorse-io/vetra/internal/cfg"
	"github.com/gorse-io/vetra/internal/ir"
)

// unrollTripThreshold bounds the static trip count unrolling will attempt.
const unrollTripThreshold = 8

// LoopOptimize runs, for every natural loop, invariant code motion,
// full unrolling, and strength reduction; unrolling is attempted only when
// a static trip count can be proven from the header's comparison against a
// constant bound and a constant induction step.
func LoopOptimize(prog *ir.Program, fn *ir.Function) bool {
	cfg.BuildEdges(fn)
	cfg.Dominators(fn)
	loops := cfg.NaturalLoops(fn)
	changed := false
	for _, lp := range loops {
		if hoistInvariants(fn, lp) {
			changed = true
		}
		if unrollIfSmall(fn, lp) {
			changed = true
		}
	}
	if strengthReduceMultiplies(fn) {
		changed = true
	}
	return changed
}

// hoistInvariants marks instructions whose operands are all constants or
// globals as loop-invariant and moves them to just before the loop header
// in program order (an abstraction of a pre-header split: since blocks
// already exist as a flat list, "hoist" means splice the instruction into
// the header's unique non-loop predecessor, if there is exactly one).
func hoistInvariants(fn *ir.Function, lp cfg.Loop) bool {
	header := fn.Block(lp.Header)
	var preheader *ir.BasicBlock
	nonLoopPreds := 0
	for _, p := range header.Preds {
		if !inBody(lp, p) {
			nonLoopPreds++
			preheader = fn.Block(p)
		}
	}
	if nonLoopPreds != 1 || preheader == nil {
		return false
	}
	changed := false
	for _, blockID := range lp.Body {
		if blockID == lp.Header {
			continue
		}
		b := fn.Block(blockID)
		var keep []ir.Instruction
		for _, inst := range b.Insts {
			if isInvariant(inst) && !inst.Op.IsTerminator() {
				insertBeforeTerminator(preheader, inst)
				changed = true
				continue
			}
			keep = append(keep, inst)
		}
		b.Insts = keep
	}
	return changed
}

// insertBeforeTerminator appends inst to b, keeping any existing terminator
// as the final instruction so the block stays well-formed.
func insertBeforeTerminator(b *ir.BasicBlock, inst ir.Instruction) {
	if n := len(b.Insts); n > 0 && b.Insts[n-1].Op.IsTerminator() {
		term := b.Insts[n-1]
		b.Insts = append(b.Insts[:n-1], inst, term)
		return
	}
	b.Insts = append(b.Insts, inst)
}

func inBody(lp cfg.Loop, id int) bool {
	for _, b := range lp.Body {
		if b == id {
			return true
		}
	}
	return false
}

func isInvariant(inst ir.Instruction) bool {
	if !inst.Op.IsArithmetic() && !inst.Op.IsCompare() {
		return false
	}
	return isConstOrGlobal(inst.X) && isConstOrGlobal(inst.Y)
}

func isConstOrGlobal(v ir.Value) bool {
	return v.Kind == ir.ValueConstant || v.Kind == ir.ValueGlobal || v.Kind == ir.ValueUndef
}

// unrollIfSmall fully unrolls a loop whose trip count can be proven at
// compile time from constant arithmetic alone. It only recognizes the
// narrowest loop shape irbuild's buildFor emits for a plain counting loop:
// a single header, a single body block, and a single latch ("inc") block
// that branches straight back to the header — no break/continue/nested
// control flow, since any of those would pull extra blocks into the
// natural loop's body and fail the three-block shape check below. Given
// that shape, it traces the induction variable's initial value from the
// preheader's store, its per-iteration step from the latch's add/sub, and
// the bound from the header's compare; if all three are literal constants
// and the resulting trip count is within unrollTripThreshold, the header is
// rewritten in place as tripCount back-to-back copies of (body, inc)
// followed by an unconditional jump to the loop's exit block. The original
// body/inc blocks are left behind unreferenced; LoopOptimize and the rest
// of the pipeline recompute the CFG fresh on every pass iteration, so a
// block with no remaining predecessor is simply never visited again.
func unrollIfSmall(fn *ir.Function, lp cfg.Loop) bool {
	if len(lp.Body) != 3 {
		return false
	}
	header := fn.Block(lp.Header)
	term, ok := header.Terminator()
	if !ok || term.Op != ir.OpCondBranch {
		return false
	}

	bodyID, incID, ok := splitBodyLatch(fn, lp)
	if !ok {
		return false
	}
	bodyBlk, incBlk := fn.Block(bodyID), fn.Block(incID)
	if bt, ok := bodyBlk.Terminator(); !ok || bt.Op != ir.OpBranch || bt.TrueBlock != incID {
		return false
	}
	if it, ok := incBlk.Terminator(); !ok || it.Op != ir.OpBranch || it.TrueBlock != header.ID {
		return false
	}

	var exit int
	switch {
	case term.TrueBlock == bodyID:
		exit = term.FalseBlock
	case term.FalseBlock == bodyID:
		exit = term.TrueBlock
	default:
		return false
	}

	addr, bound, le, ok := loopCompare(header, term)
	if !ok {
		return false
	}
	preheader, ok := singlePreheader(fn, header, lp)
	if !ok {
		return false
	}
	init, ok := storedConst(preheader, addr)
	if !ok {
		return false
	}
	step, ok := loopStep(incBlk, addr)
	if !ok {
		return false
	}

	trip := computeTripCount(init, bound, step, le)
	if trip < 0 || trip > unrollTripThreshold {
		return false
	}

	unrolled := make([]ir.Instruction, 0, trip*(len(bodyBlk.Insts)+len(incBlk.Insts)))
	for i := 0; i < trip; i++ {
		remap := map[int]int{}
		unrolled = append(unrolled, cloneInsts(bodyBlk.Insts[:len(bodyBlk.Insts)-1], fn, remap)...)
		unrolled = append(unrolled, cloneInsts(incBlk.Insts[:len(incBlk.Insts)-1], fn, remap)...)
	}
	unrolled = append(unrolled, ir.Instruction{Op: ir.OpBranch, TrueBlock: exit, FalseBlock: -1})
	header.Insts = unrolled
	return true
}

// splitBodyLatch tells the loop's single body block from its single latch
// (inc) block: the latch is whichever of the two non-header blocks branches
// straight back to the header.
func splitBodyLatch(fn *ir.Function, lp cfg.Loop) (bodyID, incID int, ok bool) {
	others := make([]int, 0, 2)
	for _, id := range lp.Body {
		if id != lp.Header {
			others = append(others, id)
		}
	}
	if len(others) != 2 {
		return 0, 0, false
	}
	a, b := others[0], others[1]
	at, aok := fn.Block(a).Terminator()
	bt, bok := fn.Block(b).Terminator()
	switch {
	case aok && at.Op == ir.OpBranch && at.TrueBlock == lp.Header:
		return b, a, true
	case bok && bt.Op == ir.OpBranch && bt.TrueBlock == lp.Header:
		return a, b, true
	default:
		return 0, 0, false
	}
}

// loopCompare traces the header's terminator condition back to a
// cmp.lt/cmp.le of a loaded local slot against a constant, returning the
// slot's address value, the constant bound, and whether the comparison is
// inclusive.
func loopCompare(header *ir.BasicBlock, term ir.Instruction) (addr ir.Value, bound int64, le bool, ok bool) {
	if term.X.Kind != ir.ValueRegister {
		return ir.Value{}, 0, false, false
	}
	var cmp *ir.Instruction
	for i := range header.Insts {
		inst := &header.Insts[i]
		if inst.Dst == term.X.Reg && (inst.Op == ir.OpCmpLt || inst.Op == ir.OpCmpLe) {
			cmp = inst
			break
		}
	}
	if cmp == nil || !cmp.Y.IsConstant() || cmp.X.Kind != ir.ValueRegister {
		return ir.Value{}, 0, false, false
	}
	var load *ir.Instruction
	for i := range header.Insts {
		inst := &header.Insts[i]
		if inst.Dst == cmp.X.Reg && inst.Op == ir.OpLoad {
			load = inst
			break
		}
	}
	if load == nil {
		return ir.Value{}, 0, false, false
	}
	return load.Addr, cmp.Y.Const.I, cmp.Op == ir.OpCmpLe, true
}

// singlePreheader returns header's one non-loop predecessor, the block an
// unrolled loop's initial induction value must be traced from.
func singlePreheader(fn *ir.Function, header *ir.BasicBlock, lp cfg.Loop) (*ir.BasicBlock, bool) {
	var preheader *ir.BasicBlock
	count := 0
	for _, p := range header.Preds {
		if !inBody(lp, p) {
			count++
			preheader = fn.Block(p)
		}
	}
	if count != 1 {
		return nil, false
	}
	return preheader, true
}

// storedConst returns the constant most recently stored to addr in b, the
// induction variable's initial value when b is the preheader.
func storedConst(b *ir.BasicBlock, addr ir.Value) (int64, bool) {
	val, ok := int64(0), false
	for _, inst := range b.Insts {
		if inst.Op == ir.OpStore && inst.Addr == addr && inst.X.IsConstant() {
			val, ok = inst.X.Const.I, true
		}
	}
	return val, ok
}

// loopStep finds the latch block's store to addr and traces its value back
// to an add/sub of a load of addr against a constant, returning the signed
// per-iteration step.
func loopStep(incBlk *ir.BasicBlock, addr ir.Value) (int64, bool) {
	for i, inst := range incBlk.Insts {
		if inst.Op != ir.OpStore || inst.Addr != addr || inst.X.Kind != ir.ValueRegister {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			def := incBlk.Insts[j]
			if def.Dst != inst.X.Reg {
				continue
			}
			switch def.Op {
			case ir.OpAdd:
				if def.Y.IsConstant() && isLoadOf(incBlk, def.X, addr) {
					return def.Y.Const.I, true
				}
				if def.X.IsConstant() && isLoadOf(incBlk, def.Y, addr) {
					return def.X.Const.I, true
				}
			case ir.OpSub:
				if def.Y.IsConstant() && isLoadOf(incBlk, def.X, addr) {
					return -def.Y.Const.I, true
				}
			}
			return 0, false
		}
	}
	return 0, false
}

func isLoadOf(b *ir.BasicBlock, v ir.Value, addr ir.Value) bool {
	if v.Kind != ir.ValueRegister {
		return false
	}
	for _, inst := range b.Insts {
		if inst.Dst == v.Reg && inst.Op == ir.OpLoad && inst.Addr == addr {
			return true
		}
	}
	return false
}

// computeTripCount simulates the header's comparison bounded by
// unrollTripThreshold+1 steps, returning -1 if the step doesn't advance
// toward the bound or the loop runs longer than the threshold.
func computeTripCount(init, bound, step int64, le bool) int {
	if step <= 0 {
		return -1
	}
	cur := init
	trip := 0
	for trip <= unrollTripThreshold {
		inRange := cur < bound
		if le {
			inRange = cur <= bound
		}
		if !inRange {
			return trip
		}
		cur += step
		trip++
	}
	return -1
}

// cloneInsts copies insts into a fresh slice, giving every register any
// instruction defines a new id via fn.NewReg() and rewriting every
// register-bearing operand through remap. Values that aren't registers
// (constants, globals, and local-slot addresses in particular) pass through
// unchanged, so the shared induction-variable slot stays shared across
// every unrolled copy exactly as it is across real loop iterations.
func cloneInsts(insts []ir.Instruction, fn *ir.Function, remap map[int]int) []ir.Instruction {
	out := make([]ir.Instruction, len(insts))
	for i, inst := range insts {
		c := inst
		if c.Dst >= 0 {
			nd := fn.NewReg()
			remap[c.Dst] = nd
			c.Dst = nd
		}
		c.X = remapValue(c.X, remap)
		c.Y = remapValue(c.Y, remap)
		c.Addr = remapValue(c.Addr, remap)
		c.Cond = remapValue(c.Cond, remap)
		c.CalleeV = remapValue(c.CalleeV, remap)
		if len(c.Args) > 0 {
			args := make([]ir.Value, len(c.Args))
			for j, a := range c.Args {
				args[j] = remapValue(a, remap)
			}
			c.Args = args
		}
		if len(c.Incoming) > 0 {
			inc := make([]ir.PhiIncoming, len(c.Incoming))
			for j, p := range c.Incoming {
				inc[j] = ir.PhiIncoming{Value: remapValue(p.Value, remap), Block: p.Block}
			}
			c.Incoming = inc
		}
		out[i] = c
	}
	return out
}

func remapValue(v ir.Value, remap map[int]int) ir.Value {
	if v.Kind == ir.ValueRegister {
		if nr, ok := remap[v.Reg]; ok {
			return ir.Reg(nr)
		}
	}
	return v
}

// strengthReduceMultiplies replaces mul r, 2^k with shl r, k across the
// whole function body, independent of loop membership.
func strengthReduceMultiplies(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		for i, inst := range b.Insts {
			if inst.Op != ir.OpMul || !inst.Y.IsConstant() {
				continue
			}
			shift, ok := inst.Y.Const.PowerOfTwoShift()
			if !ok {
				continue
			}
			rewritten := inst
			rewritten.Op = ir.OpShl
			rewritten.Y = ir.ConstVal(ir.IntConst(ir.CInt32, int64(shift)))
			b.Insts[i] = rewritten
			changed = true
		}
	}
	return changed
}
