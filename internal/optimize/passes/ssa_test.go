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

// ifDiamondFunction builds `if (cond) { r = 1 } else { r = 2 } return r`:
// one register whose value is produced in exactly one of two predecessor
// arms and merged by reuse of the same register id (a Move in each arm),
// the shape that used to make insertPhis emit a self-referential phi at
// the merge block.
func ifDiamondFunction() (*ir.Function, int) {
	fn := ir.NewFunction("f", nil, ir.Type{Kind: ir.I32})
	entry := fn.Block(fn.NewBlock())
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	merge := fn.NewBlock()

	r := fn.NewReg()
	cond := fn.NewReg()
	entry.AddInst(ir.Instruction{Op: ir.OpCmpEq, Dst: cond,
		X: ir.ConstVal(ir.IntConst(ir.CInt32, 0)), Y: ir.ConstVal(ir.IntConst(ir.CInt32, 0))})
	entry.AddInst(ir.Instruction{Op: ir.OpCondBranch, X: ir.Reg(cond), TrueBlock: thenB, FalseBlock: elseB})

	tb := fn.Block(thenB)
	tb.AddInst(ir.Instruction{Op: ir.OpMove, Dst: r, Ty: ir.TypeI32, X: ir.ConstVal(ir.IntConst(ir.CInt32, 1))})
	tb.AddInst(ir.Instruction{Op: ir.OpBranch, TrueBlock: merge})

	eb := fn.Block(elseB)
	eb.AddInst(ir.Instruction{Op: ir.OpMove, Dst: r, Ty: ir.TypeI32, X: ir.ConstVal(ir.IntConst(ir.CInt32, 2))})
	eb.AddInst(ir.Instruction{Op: ir.OpBranch, TrueBlock: merge})

	mb := fn.Block(merge)
	mb.AddInst(ir.Instruction{Op: ir.OpReturn, Ty: ir.Type{Kind: ir.I32}, X: ir.Reg(r)})

	return fn, r
}

func TestConstructSSANeverInsertsSelfReferentialPhi(t *testing.T) {
	fn, r := ifDiamondFunction()
	prog := ir.NewProgram()
	prog.AddFunction(fn)

	ConstructSSA(prog, fn)

	defsOfR := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpPhi {
				require.NotEqual(t, r, inst.Dst, "phi must not redefine the register it reads from every arm")
			}
			if inst.Dst == r {
				defsOfR++
			}
		}
	}
	assert.Equal(t, 2, defsOfR, "r must keep exactly its two original Move definitions, no phi adding a third")
}

func TestSelfReferentialDetection(t *testing.T) {
	reg := 7
	assert.True(t, selfReferential(reg, []ir.PhiIncoming{
		{Value: ir.Reg(reg), Block: 1},
		{Value: ir.Reg(reg), Block: 2},
	}))
	assert.False(t, selfReferential(reg, []ir.PhiIncoming{
		{Value: ir.Reg(reg), Block: 1},
		{Value: ir.Reg(99), Block: 2},
	}))
}

func TestRenameIsNoOpGivenNoPhisAreEverInserted(t *testing.T) {
	fn, _ := ifDiamondFunction()
	assert.False(t, rename(fn))
}

func TestConstructSSAIdempotent(t *testing.T) {
	fn, _ := ifDiamondFunction()
	prog := ir.NewProgram()
	prog.AddFunction(fn)

	ConstructSSA(prog, fn)
	changed := ConstructSSA(prog, fn)
	assert.False(t, changed, "a second call must converge with no further changes")
}
