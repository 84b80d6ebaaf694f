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

// DeadCodeElim runs the three-step sweep: reachable blocks from the entry,
// a live-register sweep seeded by instructions with observable effect, then
// removes any instruction whose sole destination is unused.
func DeadCodeElim(prog *ir.Program, fn *ir.Function) bool {
	reachable := reachableBlocks(fn)
	live := liveRegisters(fn, reachable)
	changed := false
	for _, b := range fn.Blocks {
		if !reachable[b.ID] {
			if len(b.Insts) > 0 {
				b.Insts = nil
				changed = true
			}
			continue
		}
		kept := b.Insts[:0]
		for _, inst := range b.Insts {
			if inst.Dst >= 0 && !hasEffect(inst.Op) && !live[inst.Dst] {
				changed = true
				continue
			}
			kept = append(kept, inst)
		}
		b.Insts = kept
	}
	return changed
}

func reachableBlocks(fn *ir.Function) map[int]bool {
	seen := map[int]bool{fn.Entry().ID: true}
	worklist := []int{fn.Entry().ID}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, s := range fn.Block(cur).Succs {
			if !seen[s] {
				seen[s] = true
				worklist = append(worklist, s)
			}
		}
	}
	return seen
}

// hasEffect reports whether an instruction has an observable effect beyond
// its destination register and must therefore survive DCE regardless of
// whether anything reads its Dst.
func hasEffect(op ir.Op) bool {
	switch op {
	case ir.OpReturn, ir.OpStore, ir.OpCall, ir.OpIndirectCall, ir.OpCondBranch,
		ir.OpBranch, ir.OpIntrinsic:
		return true
	default:
		return false
	}
}

// liveRegisters computes the set of registers that are used transitively by
// an effectful instruction, seeded by every operand of the effect-bearing
// ops within reachable blocks.
func liveRegisters(fn *ir.Function, reachable map[int]bool) map[int]bool {
	live := map[int]bool{}
	defOf := make(map[int]ir.Instruction)
	for _, b := range fn.Blocks {
		if !reachable[b.ID] {
			continue
		}
		for _, inst := range b.Insts {
			if inst.Dst >= 0 {
				defOf[inst.Dst] = inst
			}
		}
	}
	var worklist []ir.Value
	for _, b := range fn.Blocks {
		if !reachable[b.ID] {
			continue
		}
		for _, inst := range b.Insts {
			if hasEffect(inst.Op) {
				worklist = append(worklist, cfg.UsesOf(inst)...)
			}
		}
	}
	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !v.IsRegister() || live[v.Reg] {
			continue
		}
		live[v.Reg] = true
		if def, ok := defOf[v.Reg]; ok {
			worklist = append(worklist, cfg.UsesOf(def)...)
		}
	}
	return live
}
