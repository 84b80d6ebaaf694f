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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/vetra/internal/ir"
)

// countingLoopFunction builds `for (i = 0; i < trip; i = i + 1) { s = s + i }`
// over local slots, the exact shape irbuild's buildFor emits: a preheader
// storing the initial value, a header comparing a freshly loaded value
// against a constant bound, a body block, and a latch ("inc") block that
// stores the incremented value and branches straight back to the header.
func countingLoopFunction(trip int64) (fn *ir.Function, iSlot, sSlot, exit int) {
	fn = ir.NewFunction("f", nil, ir.Type{Kind: ir.I32})
	entry := fn.Block(fn.NewBlock())
	header := fn.NewBlock()
	body := fn.NewBlock()
	inc := fn.NewBlock()
	exitID := fn.NewBlock()

	iSlot = fn.NewLocal()
	sSlot = fn.NewLocal()
	entry.AddInst(ir.Instruction{Op: ir.OpStore, X: ir.ConstVal(ir.IntConst(ir.CInt32, 0)), Addr: ir.LocalVal(iSlot)})
	entry.AddInst(ir.Instruction{Op: ir.OpStore, X: ir.ConstVal(ir.IntConst(ir.CInt32, 0)), Addr: ir.LocalVal(sSlot)})
	entry.AddInst(ir.Instruction{Op: ir.OpBranch, TrueBlock: header, FalseBlock: -1})

	hb := fn.Block(header)
	iv := fn.NewReg()
	cond := fn.NewReg()
	hb.AddInst(ir.Instruction{Op: ir.OpLoad, Dst: iv, Ty: ir.TypeI32, Addr: ir.LocalVal(iSlot)})
	hb.AddInst(ir.Instruction{Op: ir.OpCmpLt, Dst: cond, X: ir.Reg(iv), Y: ir.ConstVal(ir.IntConst(ir.CInt32, trip))})
	hb.AddInst(ir.Instruction{Op: ir.OpCondBranch, X: ir.Reg(cond), TrueBlock: body, FalseBlock: exitID})

	bb := fn.Block(body)
	li := fn.NewReg()
	ls := fn.NewReg()
	sum := fn.NewReg()
	bb.AddInst(ir.Instruction{Op: ir.OpLoad, Dst: li, Ty: ir.TypeI32, Addr: ir.LocalVal(iSlot)})
	bb.AddInst(ir.Instruction{Op: ir.OpLoad, Dst: ls, Ty: ir.TypeI32, Addr: ir.LocalVal(sSlot)})
	bb.AddInst(ir.Instruction{Op: ir.OpAdd, Dst: sum, X: ir.Reg(ls), Y: ir.Reg(li)})
	bb.AddInst(ir.Instruction{Op: ir.OpStore, X: ir.Reg(sum), Addr: ir.LocalVal(sSlot)})
	bb.AddInst(ir.Instruction{Op: ir.OpBranch, TrueBlock: inc, FalseBlock: -1})

	ib := fn.Block(inc)
	li2 := fn.NewReg()
	ni := fn.NewReg()
	ib.AddInst(ir.Instruction{Op: ir.OpLoad, Dst: li2, Ty: ir.TypeI32, Addr: ir.LocalVal(iSlot)})
	ib.AddInst(ir.Instruction{Op: ir.OpAdd, Dst: ni, X: ir.Reg(li2), Y: ir.ConstVal(ir.IntConst(ir.CInt32, 1))})
	ib.AddInst(ir.Instruction{Op: ir.OpStore, X: ir.Reg(ni), Addr: ir.LocalVal(iSlot)})
	ib.AddInst(ir.Instruction{Op: ir.OpBranch, TrueBlock: header, FalseBlock: -1})

	eb := fn.Block(exitID)
	finalS := fn.NewReg()
	eb.AddInst(ir.Instruction{Op: ir.OpLoad, Dst: finalS, Ty: ir.TypeI32, Addr: ir.LocalVal(sSlot)})
	eb.AddInst(ir.Instruction{Op: ir.OpReturn, Ty: ir.Type{Kind: ir.I32}, X: ir.Reg(finalS)})

	return fn, iSlot, sSlot, exitID
}

func countBlockInsts(b *ir.BasicBlock, op ir.Op) int {
	n := 0
	for _, inst := range b.Insts {
		if inst.Op == op {
			n++
		}
	}
	return n
}

func TestLoopOptimizeUnrollsSmallCountingLoop(t *testing.T) {
	fn, _, _, exitID := countingLoopFunction(4)
	prog := ir.NewProgram()
	prog.AddFunction(fn)

	changed := LoopOptimize(prog, fn)
	require.True(t, changed)

	// The header (the loop's original header id, preserved as the rewrite
	// target) now holds 4 unrolled copies of (body, inc) - one add from the
	// body's accumulate and one from the inc's increment per copy - followed
	// by an unconditional branch to the original exit block, with no
	// remaining condbr back into body/inc.
	headerBlk := fn.Blocks[1]
	assert.Equal(t, 8, countBlockInsts(headerBlk, ir.OpAdd))
	term, ok := headerBlk.Terminator()
	require.True(t, ok)
	assert.Equal(t, ir.OpBranch, term.Op)
	assert.Equal(t, exitID, term.TrueBlock)
	assert.Zero(t, countBlockInsts(headerBlk, ir.OpCondBranch), "unrolled block must not re-check the loop condition")
}

func TestUnrollIfSmallLeavesLargeTripCountAlone(t *testing.T) {
	fn, _, _, _ := countingLoopFunction(int64(unrollTripThreshold + 50))
	prog := ir.NewProgram()
	prog.AddFunction(fn)

	// capture header insts before optimizing
	before := len(fn.Blocks[1].Insts)
	LoopOptimize(prog, fn)
	assert.Equal(t, before, len(fn.Blocks[1].Insts), "a loop whose trip count exceeds the threshold must not be unrolled")
}

func TestComputeTripCount(t *testing.T) {
	assert.Equal(t, 4, computeTripCount(0, 4, 1, false))
	assert.Equal(t, 5, computeTripCount(0, 4, 1, true))
	assert.Equal(t, 0, computeTripCount(4, 4, 1, false))
	assert.Equal(t, -1, computeTripCount(0, 4, 0, false))
	assert.Equal(t, -1, computeTripCount(0, 1000, 1, false))
}

func TestCloneInstsAssignsFreshRegistersAndPreservesLocalAddr(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.Type{Kind: ir.I32})
	fn.NewBlock()
	src := fn.NewReg()
	dst := fn.NewReg()
	insts := []ir.Instruction{
		{Op: ir.OpLoad, Dst: src, Addr: ir.LocalVal(3)},
		{Op: ir.OpAdd, Dst: dst, X: ir.Reg(src), Y: ir.ConstVal(ir.IntConst(ir.CInt32, 1))},
		{Op: ir.OpStore, X: ir.Reg(dst), Addr: ir.LocalVal(3)},
	}
	remap := map[int]int{}
	out := cloneInsts(insts, fn, remap)

	require.Len(t, out, 3)
	assert.NotEqual(t, src, out[0].Dst)
	assert.NotEqual(t, dst, out[1].Dst)
	assert.Equal(t, out[0].Dst, out[1].X.Reg, "the clone's add must read the clone's own load, not the original")
	assert.Equal(t, ir.LocalVal(3), out[0].Addr, "local-slot addressing must not be renamed")
	assert.Equal(t, ir.LocalVal(3), out[2].Addr)
	assert.Equal(t, out[1].Dst, out[2].X.Reg)
}

func TestStrengthReduceMultipliesRewritesPowerOfTwo(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.Type{Kind: ir.I32})
	b := fn.Block(fn.NewBlock())
	r := fn.NewReg()
	b.AddInst(ir.Instruction{Op: ir.OpMul, Dst: r,
		X: ir.ConstVal(ir.IntConst(ir.CInt32, 5)), Y: ir.ConstVal(ir.IntConst(ir.CInt32, 8))})
	b.AddInst(ir.Instruction{Op: ir.OpReturn, Ty: ir.Type{Kind: ir.I32}, X: ir.Reg(r)})

	changed := strengthReduceMultiplies(fn)
	require.True(t, changed)
	assert.Equal(t, ir.OpShl, b.Insts[0].Op)
	assert.Equal(t, int64(3), b.Insts[0].Y.Const.I)
}

func TestStrengthReduceMultipliesLeavesNonPowerOfTwoAlone(t *testing.T) {
	fn := ir.NewFunction("f", nil, ir.Type{Kind: ir.I32})
	b := fn.Block(fn.NewBlock())
	r := fn.NewReg()
	b.AddInst(ir.Instruction{Op: ir.OpMul, Dst: r,
		X: ir.ConstVal(ir.IntConst(ir.CInt32, 5)), Y: ir.ConstVal(ir.IntConst(ir.CInt32, 7))})
	changed := strengthReduceMultiplies(fn)
	assert.False(t, changed)
	assert.Equal(t, ir.OpMul, b.Insts[0].Op)
}
