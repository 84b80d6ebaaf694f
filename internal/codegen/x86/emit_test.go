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

package x86

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/vetra/internal/ir"
	"github.com/gorse-io/vetra/internal/regalloc"
)

// exitCodeProgram builds `int main() { return 120; }`, one block returning
// a bare literal with no locals and no allocation table, exercising the
// bring-up round-robin operand path.
func exitCodeProgram() *ir.Program {
	fn := ir.NewFunction("main", nil, ir.Type{Kind: ir.I32})
	b := fn.Block(fn.NewBlock())
	b.AddInst(ir.Instruction{Op: ir.OpReturn, Ty: ir.Type{Kind: ir.I32},
		X: ir.ConstVal(ir.IntConst(ir.CInt32, 120))})

	prog := ir.NewProgram()
	prog.AddFunction(fn)
	return prog
}

func TestEmitWritesTextBeforeData(t *testing.T) {
	out, err := New(exitCodeProgram(), nil).Emit()
	require.NoError(t, err)

	textIdx := strings.Index(out, ".text")
	dataIdx := strings.Index(out, ".data")
	require.NotEqual(t, -1, textIdx, "missing .text directive:\n%s", out)
	require.NotEqual(t, -1, dataIdx, "missing .data directive:\n%s", out)
	assert.Less(t, textIdx, dataIdx, ".text must precede .data so function bodies assemble as code")
}

func TestEmitFunctionHasGlobl(t *testing.T) {
	out, err := New(exitCodeProgram(), nil).Emit()
	require.NoError(t, err)
	assert.Contains(t, out, ".globl main")

	globlIdx := strings.Index(out, ".globl main")
	labelIdx := strings.Index(out, "main:")
	require.NotEqual(t, -1, labelIdx)
	assert.Less(t, globlIdx, labelIdx, ".globl must precede the function's own label")
}

func TestEmitBlockAndStringLabelConventions(t *testing.T) {
	fn := ir.NewFunction("greet", nil, ir.Type{Kind: ir.Void})
	entry := fn.Block(fn.NewBlock())
	other := fn.NewBlock()
	entry.AddInst(ir.Instruction{Op: ir.OpBranch, TrueBlock: other})
	ob := fn.Block(other)
	ob.AddInst(ir.Instruction{Op: ir.OpReturn, Ty: ir.Type{Kind: ir.Void}})

	prog := ir.NewProgram()
	prog.InternString("hi")
	prog.AddFunction(fn)

	out, err := New(prog, nil).Emit()
	require.NoError(t, err)
	assert.Contains(t, out, ".L_greet_0:")
	assert.Contains(t, out, ".L_greet_1:")
	assert.Contains(t, out, "__str_0:")
	assert.NotContains(t, out, "\nstr_0:")
}

func TestOperandRoundRobinFallbackCyclesPhysRegNames(t *testing.T) {
	// no allocation at all: operand() must fall back to the round-robin
	// physical register cycle, never the old "r_%d" textual placeholder.
	fc := &funcCtx{
		fn:    ir.NewFunction("f", nil, ir.Type{Kind: ir.I32}),
		alloc: &regalloc.Allocation{Color: map[int]int{}, Spill: map[int]int{}},
	}

	got := fc.operand(ir.Reg(0))
	assert.Equal(t, "rax", got)
	assert.NotContains(t, got, "r_")

	got2 := fc.operand(ir.Reg(1))
	assert.Equal(t, "rbx", got2)

	wrapped := fc.operand(ir.Reg(regalloc.NumColors))
	assert.Equal(t, "rax", wrapped, "round-robin must wrap at len(PhysRegNames)")
}

func TestConstTextUsesStrPrefix(t *testing.T) {
	prog := ir.NewProgram()
	prog.InternString("hello")
	fc := &funcCtx{prog: prog}
	got := fc.constText(ir.StringConst("hello"))
	assert.Equal(t, "offset __str_0", got)
}
