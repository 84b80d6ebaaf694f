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

// Package cfg computes, for a single IR function, successor/predecessor
// edges, dominators, dominance frontiers, natural loops, live ranges and
// reaching definitions. Nothing here mutates instructions; it only
// populates BasicBlock.Preds/Succs/Dominators/DomFrontier and returns
// ancillary structures the optimizer and register allocator consume.
package cfg

import (
	"sort"

	"golang.org/x/exp/slices"

	"github.com/gorse-io/vetra/internal/ir"
)

// BuildEdges derives successor/predecessor edges from each block's
// terminator instruction and clears any edges computed by a previous run.
func BuildEdges(fn *ir.Function) {
	for _, b := range fn.Blocks {
		b.Succs = nil
		b.Preds = nil
	}
	for _, b := range fn.Blocks {
		term, ok := b.Terminator()
		if !ok {
			continue
		}
		switch term.Op {
		case ir.OpBranch:
			b.AddSucc(term.TrueBlock)
		case ir.OpCondBranch:
			b.AddSucc(term.TrueBlock)
			b.AddSucc(term.FalseBlock)
		}
	}
	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			fn.Block(s).AddPred(b.ID)
		}
	}
}

func allBlockIDs(fn *ir.Function) []int {
	ids := make([]int, len(fn.Blocks))
	for i := range fn.Blocks {
		ids[i] = i
	}
	return ids
}

func intersect(a, b []int) []int {
	set := make(map[int]bool, len(b))
	for _, x := range b {
		set[x] = true
	}
	var out []int
	for _, x := range a {
		if set[x] {
			out = append(out, x)
		}
	}
	return out
}

func sortedUnique(xs []int) []int {
	xs = slices.Clone(xs)
	sort.Ints(xs)
	return slices.Compact(xs)
}

// Dominators computes, for every block, the set of blocks that dominate it,
// by iterative intersection: the entry dominates only itself; every other
// block's set starts as "all blocks" and is repeatedly replaced by
// {self} ∪ ⋂ pred.dominators until fixpoint. Sets are stored sorted so the
// last entry doubles as the immediate dominator (see BasicBlock.
// ImmediateDominator).
func Dominators(fn *ir.Function) {
	all := allBlockIDs(fn)
	for _, b := range fn.Blocks {
		if b.ID == fn.Entry().ID {
			b.Dominators = []int{b.ID}
		} else {
			b.Dominators = slices.Clone(all)
		}
	}
	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			if b.ID == fn.Entry().ID {
				continue
			}
			if len(b.Preds) == 0 {
				continue
			}
			newSet := slices.Clone(fn.Block(b.Preds[0]).Dominators)
			for _, p := range b.Preds[1:] {
				newSet = intersect(newSet, fn.Block(p).Dominators)
			}
			newSet = sortedUnique(append(newSet, b.ID))
			if !slices.Equal(newSet, b.Dominators) {
				b.Dominators = newSet
				changed = true
			}
		}
	}
}

// DominanceFrontiers computes each block's dominance frontier: for each join
// block j (pred count >= 2), walk each predecessor toward j's immediate
// dominator, adding j to the frontier of every block passed along the way.
func DominanceFrontiers(fn *ir.Function) {
	for _, b := range fn.Blocks {
		b.DomFrontier = nil
	}
	idom := make(map[int]int, len(fn.Blocks))
	for _, b := range fn.Blocks {
		if d, ok := b.ImmediateDominator(); ok {
			idom[b.ID] = d
		} else {
			idom[b.ID] = b.ID
		}
	}
	frontier := make(map[int]map[int]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		frontier[b.ID] = make(map[int]bool)
	}
	for _, j := range fn.Blocks {
		if len(j.Preds) < 2 {
			continue
		}
		for _, p := range j.Preds {
			runner := p
			for runner != idom[j.ID] {
				frontier[runner][j.ID] = true
				if runner == idom[runner] {
					break
				}
				runner = idom[runner]
			}
		}
	}
	for _, b := range fn.Blocks {
		var f []int
		for id := range frontier[b.ID] {
			f = append(f, id)
		}
		b.DomFrontier = sortedUnique(f)
	}
}

// Loop is a natural loop: header plus every block in its body.
type Loop struct {
	Header int
	Body   []int // sorted, includes Header
}

// NaturalLoops finds every back edge (u -> v where v dominates u) and
// computes the loop it defines: v plus every block that can reach u without
// crossing v.
func NaturalLoops(fn *ir.Function) []Loop {
	var loops []Loop
	for _, u := range fn.Blocks {
		for _, v := range u.Succs {
			header := fn.Block(v)
			if !slices.Contains(u.Dominators, v) {
				continue
			}
			body := map[int]bool{header.ID: true, u.ID: true}
			worklist := []int{u.ID}
			for len(worklist) > 0 {
				cur := worklist[len(worklist)-1]
				worklist = worklist[:len(worklist)-1]
				for _, p := range fn.Block(cur).Preds {
					if !body[p] {
						body[p] = true
						worklist = append(worklist, p)
					}
				}
			}
			var ids []int
			for id := range body {
				ids = append(ids, id)
			}
			loops = append(loops, Loop{Header: header.ID, Body: sortedUnique(ids)})
		}
	}
	return loops
}

// LiveRange is the span of a virtual register from its first definition to
// its last use.
type LiveRange struct {
	Reg       int
	DefBlock  int
	DefIndex  int
	LastBlock int
	LastIndex int
}

// LiveRanges computes, per virtual register, the (block, instruction) of
// earliest def and latest use, in block-then-index order.
func LiveRanges(fn *ir.Function) map[int]*LiveRange {
	ranges := make(map[int]*LiveRange)
	touch := func(reg, block, idx int) {
		lr, ok := ranges[reg]
		if !ok {
			ranges[reg] = &LiveRange{Reg: reg, DefBlock: block, DefIndex: idx, LastBlock: block, LastIndex: idx}
			return
		}
		if block > lr.LastBlock || (block == lr.LastBlock && idx > lr.LastIndex) {
			lr.LastBlock, lr.LastIndex = block, idx
		}
	}
	for _, b := range fn.Blocks {
		for idx, inst := range b.Insts {
			if inst.Dst >= 0 {
				if _, ok := ranges[inst.Dst]; !ok {
					ranges[inst.Dst] = &LiveRange{Reg: inst.Dst, DefBlock: b.ID, DefIndex: idx, LastBlock: b.ID, LastIndex: idx}
				}
			}
			for _, use := range usesOf(inst) {
				if use.IsRegister() {
					touch(use.Reg, b.ID, idx)
				}
			}
		}
	}
	return ranges
}

func usesOf(inst ir.Instruction) []ir.Value {
	var uses []ir.Value
	switch inst.Op {
	case ir.OpLoad, ir.OpAlloca:
		uses = append(uses, inst.Addr)
	case ir.OpGEP:
		uses = append(uses, inst.Addr, inst.X)
	case ir.OpStore:
		uses = append(uses, inst.X, inst.Addr)
	case ir.OpCondBranch:
		uses = append(uses, inst.X)
	case ir.OpReturn:
		uses = append(uses, inst.X)
	case ir.OpCall:
		uses = append(uses, inst.Args...)
	case ir.OpIndirectCall:
		uses = append(uses, inst.CalleeV)
		uses = append(uses, inst.Args...)
	case ir.OpCast, ir.OpBitcast, ir.OpMove, ir.OpNeg, ir.OpNot:
		uses = append(uses, inst.X)
	case ir.OpSelect:
		uses = append(uses, inst.Cond, inst.X, inst.Y)
	case ir.OpPhi:
		for _, in := range inst.Incoming {
			uses = append(uses, in.Value)
		}
	case ir.OpIntrinsic:
		uses = append(uses, inst.Args...)
	default:
		if inst.Op.IsArithmetic() || inst.Op.IsCompare() {
			uses = append(uses, inst.X, inst.Y)
		}
	}
	return uses
}

// UsesOf exposes usesOf to other packages (DCE, regalloc) that need the same
// operand-extraction logic.
func UsesOf(inst ir.Instruction) []ir.Value { return usesOf(inst) }

// ReachingDefs computes, per block, the set of registers defined on some
// path from the entry to that block's start.
func ReachingDefs(fn *ir.Function) map[int]map[int]bool {
	reach := make(map[int]map[int]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		reach[b.ID] = make(map[int]bool)
	}
	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			in := make(map[int]bool)
			for _, p := range b.Preds {
				for r := range reach[p] {
					in[r] = true
				}
				for _, inst := range fn.Block(p).Insts {
					if inst.Dst >= 0 {
						in[inst.Dst] = true
					}
				}
			}
			for r := range in {
				if !reach[b.ID][r] {
					reach[b.ID][r] = true
					changed = true
				}
			}
		}
	}
	return reach
}
