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

package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/vetra/internal/cfg"
	"github.com/gorse-io/vetra/internal/ir"
)

// manyLiveFunction builds a single straight-line block defining more
// registers than NumColors can hold simultaneously, all of them live at
// once (every one of them is used by the final add chain), forcing both
// coloring and spilling to engage.
func manyLiveFunction(n int) *ir.Function {
	fn := ir.NewFunction("f", nil, ir.Type{Kind: ir.I32})
	b := fn.Block(fn.NewBlock())
	regs := make([]int, n)
	for i := 0; i < n; i++ {
		r := fn.NewReg()
		regs[i] = r
		b.AddInst(ir.Instruction{Op: ir.OpAdd, Dst: r,
			X: ir.ConstVal(ir.IntConst(ir.CInt32, int64(i))), Y: ir.ConstVal(ir.IntConst(ir.CInt32, 1))})
	}
	sum := regs[0]
	for i := 1; i < n; i++ {
		next := fn.NewReg()
		b.AddInst(ir.Instruction{Op: ir.OpAdd, Dst: next, X: ir.Reg(sum), Y: ir.Reg(regs[i])})
		sum = next
	}
	b.AddInst(ir.Instruction{Op: ir.OpReturn, Ty: ir.Type{Kind: ir.I32}, X: ir.Reg(sum)})
	return fn
}

func TestAllocateColorsDisjointForOverlappingRanges(t *testing.T) {
	fn := manyLiveFunction(NumColors + 6)
	ranges := cfg.LiveRanges(fn)
	alloc := Allocate(fn, ranges)

	require.NotEmpty(t, alloc.Color)

	colorOf := make(map[int]int, len(alloc.Color))
	for reg, c := range alloc.Color {
		colorOf[reg] = c
	}
	for a, ra := range ranges {
		ca, colored := colorOf[a]
		if !colored {
			continue
		}
		for b, rb := range ranges {
			if a == b {
				continue
			}
			cb, colored := colorOf[b]
			if !colored {
				continue
			}
			if overlaps(ra, rb) {
				assert.NotEqualf(t, ca, cb, "registers %d and %d overlap but share color %d", a, b, ca)
			}
		}
	}
}

func TestAllocateSpillsWhenInterferenceExceedsColors(t *testing.T) {
	fn := manyLiveFunction(NumColors + 6)
	ranges := cfg.LiveRanges(fn)
	alloc := Allocate(fn, ranges)

	assert.NotEmpty(t, alloc.Spill, "expected at least one register to spill past NumColors live values")
	for reg := range alloc.Spill {
		_, alsoColored := alloc.Color[reg]
		assert.False(t, alsoColored, "register %d is both colored and spilled", reg)
	}
}

func TestAllocateSmallFunctionNeedsNoSpill(t *testing.T) {
	fn := manyLiveFunction(3)
	ranges := cfg.LiveRanges(fn)
	alloc := Allocate(fn, ranges)
	assert.Empty(t, alloc.Spill)
}

func TestPhysRegAndSpillSlotAreMutuallyExclusive(t *testing.T) {
	alloc := &Allocation{Color: map[int]int{1: 2}, Spill: map[int]int{2: 0}}
	name, ok := alloc.PhysReg(1)
	require.True(t, ok)
	assert.Equal(t, PhysRegNames[2], name)

	_, ok = alloc.PhysReg(2)
	assert.False(t, ok)

	slot, ok := alloc.SpillSlot(2)
	require.True(t, ok)
	assert.Equal(t, 0, slot)
}

func TestFrameOffset(t *testing.T) {
	assert.Equal(t, 8, FrameOffset(0))
	assert.Equal(t, 16, FrameOffset(1))
}
