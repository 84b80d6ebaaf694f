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
	"github.com/gorse-io/vetra/internal/cfg"
	"github.com/gorse-io/vetra/internal/ir"
)

// RewriteSpills inserts a load before every use and a store after every def
// of a spilled virtual register, reading/writing stack slot
// (rbp - (slot+1)*8) — the x86 emitter's FrameOffset helper computes that
// same offset from alloc.Spill so the two stay in agreement.
func RewriteSpills(fn *ir.Function, alloc *Allocation) {
	if len(alloc.Spill) == 0 {
		return
	}
	for _, b := range fn.Blocks {
		var out []ir.Instruction
		for _, inst := range b.Insts {
			for _, use := range cfg.UsesOf(inst) {
				if use.IsRegister() {
					if _, spilled := alloc.Spill[use.Reg]; spilled {
						loadReg := fn.NewReg()
						out = append(out, ir.Instruction{
							Op: ir.OpLoad, Dst: loadReg, Ty: ir.TypeI64,
							Addr: ir.LocalVal(spillSlotAsLocal(alloc, use.Reg)),
						})
						inst = substituteUse(inst, use.Reg, loadReg)
					}
				}
			}
			out = append(out, inst)
			if inst.Dst >= 0 {
				if _, spilled := alloc.Spill[inst.Dst]; spilled {
					out = append(out, ir.Instruction{
						Op: ir.OpStore, Dst: -1, Ty: ir.TypeI64,
						X:    ir.Reg(inst.Dst),
						Addr: ir.LocalVal(spillSlotAsLocal(alloc, inst.Dst)),
					})
				}
			}
		}
		b.Insts = out
	}
}

// spillSlotAsLocal reuses the function's Local addressing space to name a
// spill slot; the x86 emitter's FrameOffset distinguishes a genuine local
// from a spill slot by consulting alloc.Spill, not by the Local index
// alone, so collisions with real local slots are harmless here.
func spillSlotAsLocal(alloc *Allocation, vreg int) int {
	return alloc.Spill[vreg]
}

func substituteUse(inst ir.Instruction, oldReg, newReg int) ir.Instruction {
	if inst.X.IsRegister() && inst.X.Reg == oldReg {
		inst.X = ir.Reg(newReg)
	}
	if inst.Y.IsRegister() && inst.Y.Reg == oldReg {
		inst.Y = ir.Reg(newReg)
	}
	if inst.Addr.IsRegister() && inst.Addr.Reg == oldReg {
		inst.Addr = ir.Reg(newReg)
	}
	if inst.CalleeV.IsRegister() && inst.CalleeV.Reg == oldReg {
		inst.CalleeV = ir.Reg(newReg)
	}
	for i, a := range inst.Args {
		if a.IsRegister() && a.Reg == oldReg {
			inst.Args[i] = ir.Reg(newReg)
		}
	}
	return inst
}

// FrameOffset computes the (rbp - (slot+1)*8) stack offset for a spill
// slot, shared with the x86 emitter so both sides agree on layout.
func FrameOffset(slot int) int { return (slot + 1) * 8 }
