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

package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vir "github.com/gorse-io/vetra/internal/ir"
)

// straightLineProgram builds `i32 fn main() { return 2+3*4; }` by hand,
// already one basic block with no branches.
func straightLineProgram() *vir.Program {
	fn := vir.NewFunction("main", nil, vir.Type{Kind: vir.I32})
	b := fn.Block(fn.NewBlock())
	mul := fn.NewReg()
	b.AddInst(vir.Instruction{Op: vir.OpMul, Dst: mul,
		X: vir.ConstVal(vir.IntConst(vir.CInt32, 3)), Y: vir.ConstVal(vir.IntConst(vir.CInt32, 4))})
	sum := fn.NewReg()
	b.AddInst(vir.Instruction{Op: vir.OpAdd, Dst: sum,
		X: vir.ConstVal(vir.IntConst(vir.CInt32, 2)), Y: vir.Reg(mul)})
	b.AddInst(vir.Instruction{Op: vir.OpReturn, Ty: vir.Type{Kind: vir.I32}, X: vir.Reg(sum)})

	prog := vir.NewProgram()
	prog.AddFunction(fn)
	return prog
}

// loopProgram builds a counting loop that accumulates into a register,
// spread across four blocks (entry, header, body, exit) so the dispatch loop
// has to actually loop.
func loopProgram() *vir.Program {
	fn := vir.NewFunction("main", nil, vir.Type{Kind: vir.Void})
	entry := fn.Block(fn.NewBlock())
	header := fn.NewBlock()
	body := fn.NewBlock()
	exit := fn.NewBlock()

	i := fn.NewReg()
	s := fn.NewReg()
	entry.AddInst(vir.Instruction{Op: vir.OpMove, Dst: i, X: vir.ConstVal(vir.IntConst(vir.CInt32, 0))})
	entry.AddInst(vir.Instruction{Op: vir.OpMove, Dst: s, X: vir.ConstVal(vir.IntConst(vir.CInt32, 0))})
	entry.AddInst(vir.Instruction{Op: vir.OpBranch, TrueBlock: header})

	hb := fn.Block(header)
	cond := fn.NewReg()
	hb.AddInst(vir.Instruction{Op: vir.OpCmpLt, Dst: cond, X: vir.Reg(i), Y: vir.ConstVal(vir.IntConst(vir.CInt32, 10))})
	hb.AddInst(vir.Instruction{Op: vir.OpCondBranch, X: vir.Reg(cond), TrueBlock: body, FalseBlock: exit})

	bb := fn.Block(body)
	s2 := fn.NewReg()
	bb.AddInst(vir.Instruction{Op: vir.OpAdd, Dst: s2, X: vir.Reg(s), Y: vir.Reg(i)})
	bb.AddInst(vir.Instruction{Op: vir.OpMove, Dst: s, X: vir.Reg(s2)})
	i2 := fn.NewReg()
	bb.AddInst(vir.Instruction{Op: vir.OpAdd, Dst: i2, X: vir.Reg(i), Y: vir.ConstVal(vir.IntConst(vir.CInt32, 1))})
	bb.AddInst(vir.Instruction{Op: vir.OpMove, Dst: i, X: vir.Reg(i2)})
	bb.AddInst(vir.Instruction{Op: vir.OpBranch, TrueBlock: header})

	eb := fn.Block(exit)
	eb.AddInst(vir.Instruction{Op: vir.OpCall, Callee: "Console.print", Args: []vir.Value{vir.Reg(s)}})
	eb.AddInst(vir.Instruction{Op: vir.OpReturn, Ty: vir.Type{Kind: vir.Void}})

	prog := vir.NewProgram()
	prog.AddFunction(fn)
	return prog
}

func TestEmitStraightLineModuleHeader(t *testing.T) {
	bin, err := New(straightLineProgram()).Emit()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, bin[:8])
}

func TestRunStraightLineReturns14(t *testing.T) {
	bin, err := New(straightLineProgram()).Emit()
	require.NoError(t, err)

	results, printed, err := Run(context.Background(), bin, "main")
	require.NoError(t, err)
	assert.Empty(t, printed)
	require.Len(t, results, 1)
	assert.EqualValues(t, 14, int64(results[0]))
}

func TestRunLoopAccumulatesAndPrints(t *testing.T) {
	bin, err := New(loopProgram()).Emit()
	require.NoError(t, err)

	_, printed, err := Run(context.Background(), bin, "main")
	require.NoError(t, err)
	require.Len(t, printed, 1)
	assert.EqualValues(t, 45, printed[0])
}

func TestEmitRejectsUnsupportedCall(t *testing.T) {
	fn := vir.NewFunction("main", nil, vir.Type{Kind: vir.Void})
	b := fn.Block(fn.NewBlock())
	b.AddInst(vir.Instruction{Op: vir.OpCall, Callee: "Memory.alloc", Args: []vir.Value{vir.ConstVal(vir.IntConst(vir.CInt32, 8))}})
	b.AddInst(vir.Instruction{Op: vir.OpReturn, Ty: vir.Type{Kind: vir.Void}})

	prog := vir.NewProgram()
	prog.AddFunction(fn)

	_, err := New(prog).Emit()
	assert.Error(t, err)
}
