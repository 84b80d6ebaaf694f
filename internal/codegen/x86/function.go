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
	"fmt"
	"strings"

	"github.com/gorse-io/vetra/internal/ir"
	"github.com/gorse-io/vetra/internal/regalloc"
)

func funcLabel(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// align16 rounds n up to the next multiple of 16, used for the prologue's
// stack-frame reservation.
func align16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

func (e *Emitter) emitFunction(fn *ir.Function) {
	label := funcLabel(fn.Name)
	alloc := e.allocs[fn.Name]
	if alloc == nil {
		alloc = &regalloc.Allocation{Color: map[int]int{}, Spill: map[int]int{}}
	}

	fmt.Fprintf(&e.b, "\n.globl %s\n%s:\n", label, label)
	e.b.WriteString("\tpush rbp\n")
	e.b.WriteString("\tmov rbp, rsp\n")
	frame := align16((fn.NumLocals + len(alloc.Spill)) * 8)
	if frame > 0 {
		fmt.Fprintf(&e.b, "\tsub rsp, %d\n", frame)
	}

	for i, p := range fn.Params {
		if i < len(intArgRegs) {
			fmt.Fprintf(&e.b, "\t# param %s <- %s\n", p.Name, intArgRegs[i])
		}
	}

	fc := &funcCtx{fn: fn, alloc: alloc, epilogue: fmt.Sprintf(".L_%s_epilogue", label), prog: e.prog}
	for _, b := range fn.Blocks {
		fmt.Fprintf(&e.b, ".L_%s_%d:\n", label, b.ID)
		for _, inst := range b.Insts {
			e.emitInst(fc, inst)
		}
	}

	fmt.Fprintf(&e.b, "%s:\n", fc.epilogue)
	e.b.WriteString("\tmov rsp, rbp\n")
	e.b.WriteString("\tpop rbp\n")
	e.b.WriteString("\tret\n")
}

// funcCtx carries the per-function state instruction templates need: the
// allocation table, the epilogue label every Return jumps to, and the
// function itself for local-slot size lookups.
type funcCtx struct {
	fn       *ir.Function
	alloc    *regalloc.Allocation
	epilogue string
	prog     *ir.Program
}

func (fc *funcCtx) operand(v ir.Value) string {
	switch v.Kind {
	case ir.ValueRegister:
		if r, ok := fc.alloc.PhysReg(v.Reg); ok {
			return r
		}
		if slot, ok := fc.alloc.SpillSlot(v.Reg); ok {
			return fmt.Sprintf("[rbp - %d]", regalloc.FrameOffset(slot))
		}
		return roundRobin(v.Reg)
	case ir.ValueConstant:
		return fc.constText(v.Const)
	case ir.ValueLocal:
		return fmt.Sprintf("[rbp - %d]", (v.Local+1)*8)
	case ir.ValueGlobal:
		return globalLabel(v.Global)
	case ir.ValueArgument:
		if v.Arg < len(intArgRegs) {
			return intArgRegs[v.Arg]
		}
		return fmt.Sprintf("[rbp + %d]", 16+(v.Arg-len(intArgRegs))*8)
	default:
		return "0"
	}
}

func (fc *funcCtx) constText(c ir.Constant) string {
	switch c.Kind {
	case ir.CFloat32, ir.CFloat64:
		return fmt.Sprintf("%g", c.F)
	case ir.CBool:
		if c.B {
			return "1"
		}
		return "0"
	case ir.CString:
		id, _ := fc.prog.Strings.Get(c.S)
		return "offset __str_" + fmt.Sprint(id)
	case ir.CNull:
		return "0"
	default:
		return fmt.Sprintf("%d", c.I)
	}
}

func (fc *funcCtx) dstOperand(inst ir.Instruction) string {
	return fc.operand(ir.Reg(inst.Dst))
}

// roundRobin maps a virtual register the allocator never colored or
// spilled onto a physical register by cycling regalloc.PhysRegNames. It
// is the bring-up fallback for functions emitted before regalloc.Allocate
// has run against them (or for any vreg a partial allocation missed):
// correctness over the register file isn't at stake because such a vreg
// has no recorded interference to honor in the first place.
func roundRobin(vreg int) string {
	if vreg < 0 {
		vreg = -vreg
	}
	return regalloc.PhysRegNames[vreg%len(regalloc.PhysRegNames)]
}
