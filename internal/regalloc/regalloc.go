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

// Package regalloc implements Chaitin-style graph-coloring register
// allocation: build an interference graph from live ranges, simplify by
// repeatedly removing low-degree nodes (or spilling the longest-lived
// remaining node when none qualifies), then color in reverse simplify
// order and rewrite spills to stack slots.
package regalloc

import (
	"sort"

	"github.com/dolthub/swiss"

	"github.com/gorse-io/vetra/internal/cfg"
	"github.com/gorse-io/vetra/internal/ir"
)

// NumColors is k: the 14 general-purpose x86-64 registers available for
// allocation (RAX, RBX, RCX, RDX, RSI, RDI, R8-R15; RSP/RBP are reserved for
// the stack frame).
const NumColors = 14

// PhysRegNames is the color->register-name table the x86 emitter formats
// operands through, in the same order the allocator assigns colors 0..13.
var PhysRegNames = [NumColors]string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// Allocation is the allocator's output for one function: a direct mapping
// from virtual register to either a physical color or a spill slot.
type Allocation struct {
	Color map[int]int // virtual reg -> color [0, NumColors)
	Spill map[int]int // virtual reg -> stack slot index
}

func (a *Allocation) PhysReg(vreg int) (string, bool) {
	c, ok := a.Color[vreg]
	if !ok {
		return "", false
	}
	return PhysRegNames[c], true
}

func (a *Allocation) SpillSlot(vreg int) (int, bool) {
	s, ok := a.Spill[vreg]
	return s, ok
}

// interferenceGraph maps a register to the set of registers whose live
// range overlaps it. swiss.Map gives O(1) neighbor membership checks during
// simplify/select, which matters once a function has hundreds of live
// ranges.
type interferenceGraph struct {
	neighbors map[int]*swiss.Map[int, struct{}]
}

func newGraph() *interferenceGraph {
	return &interferenceGraph{neighbors: map[int]*swiss.Map[int, struct{}]{}}
}

func (g *interferenceGraph) ensure(r int) {
	if g.neighbors[r] == nil {
		g.neighbors[r] = swiss.NewMap[int, struct{}](8)
	}
}

func (g *interferenceGraph) addEdge(a, b int) {
	if a == b {
		return
	}
	g.ensure(a)
	g.ensure(b)
	g.neighbors[a].Put(b, struct{}{})
	g.neighbors[b].Put(a, struct{}{})
}

func (g *interferenceGraph) degree(r int) int {
	n, ok := g.neighbors[r]
	if !ok {
		return 0
	}
	return n.Count()
}

func (g *interferenceGraph) hasEdge(a, b int) bool {
	n, ok := g.neighbors[a]
	if !ok {
		return false
	}
	_, ok = n.Get(b)
	return ok
}

func buildInterferenceGraph(ranges map[int]*cfg.LiveRange) *interferenceGraph {
	g := newGraph()
	regs := sortedRegs(ranges)
	for _, r := range regs {
		g.ensure(r)
	}
	for i, a := range regs {
		for _, b := range regs[i+1:] {
			if overlaps(ranges[a], ranges[b]) {
				g.addEdge(a, b)
			}
		}
	}
	return g
}

func sortedRegs(ranges map[int]*cfg.LiveRange) []int {
	regs := make([]int, 0, len(ranges))
	for r := range ranges {
		regs = append(regs, r)
	}
	sort.Ints(regs)
	return regs
}

// overlaps treats (block, index) as a total order proxy for position in
// the function: two ranges overlap unless one ends strictly before the
// other begins. This is a block-and-index linearization, not a full
// flow-sensitive overlap test, matching the live-range model cfg.LiveRanges
// already produces (earliest def, latest use).
func overlaps(a, b *cfg.LiveRange) bool {
	aStart, aEnd := pos(a.DefBlock, a.DefIndex), pos(a.LastBlock, a.LastIndex)
	bStart, bEnd := pos(b.DefBlock, b.DefIndex), pos(b.LastBlock, b.LastIndex)
	return aStart <= bEnd && bStart <= aEnd
}

func pos(block, index int) int64 { return int64(block)<<32 | int64(index) }

// Allocate runs the full Chaitin pipeline for fn, given its live ranges.
func Allocate(fn *ir.Function, ranges map[int]*cfg.LiveRange) *Allocation {
	g := buildInterferenceGraph(ranges)
	order, spilled := simplify(g, ranges)
	return selectColors(g, order, spilled)
}

// simplify repeatedly removes a node of degree < k, pushing it on the
// return stack (built by reverse-appending so Allocate pops highest-index
// first = last removed first). If no such node exists, the remaining node
// with the longest live range is picked as a spill candidate and removed
// anyway, so simplify always terminates.
func simplify(g *interferenceGraph, ranges map[int]*cfg.LiveRange) (order []int, spillCandidates map[int]bool) {
	remaining := map[int]bool{}
	for r := range g.neighbors {
		remaining[r] = true
	}
	spillCandidates = map[int]bool{}
	removed := map[int]bool{}

	degreeIn := func(r int) int {
		d := 0
		n := g.neighbors[r]
		n.Iter(func(nb int, _ struct{}) bool {
			if remaining[nb] {
				d++
			}
			return false
		})
		return d
	}

	for len(remaining) > 0 {
		picked := -1
		regs := make([]int, 0, len(remaining))
		for r := range remaining {
			regs = append(regs, r)
		}
		sort.Ints(regs)
		for _, r := range regs {
			if degreeIn(r) < NumColors {
				picked = r
				break
			}
		}
		if picked == -1 {
			// No low-degree node: spill the longest live range.
			longest := regs[0]
			longestSpan := span(ranges[longest])
			for _, r := range regs[1:] {
				if sp := span(ranges[r]); sp > longestSpan {
					longest, longestSpan = r, sp
				}
			}
			picked = longest
			spillCandidates[picked] = true
		}
		order = append(order, picked)
		removed[picked] = true
		delete(remaining, picked)
	}
	return order, spillCandidates
}

func span(r *cfg.LiveRange) int64 {
	if r == nil {
		return 0
	}
	return pos(r.LastBlock, r.LastIndex) - pos(r.DefBlock, r.DefIndex)
}

// selectColors pops the simplify stack in reverse order, coloring each node
// with the lowest color unused by an already-colored neighbor; a node that
// cannot fit within k colors is spilled to a fresh stack slot.
func selectColors(g *interferenceGraph, order []int, spillCandidates map[int]bool) *Allocation {
	alloc := &Allocation{Color: map[int]int{}, Spill: map[int]int{}}
	nextSlot := 0
	for i := len(order) - 1; i >= 0; i-- {
		reg := order[i]
		used := map[int]bool{}
		n := g.neighbors[reg]
		if n != nil {
			n.Iter(func(nb int, _ struct{}) bool {
				if c, ok := alloc.Color[nb]; ok {
					used[c] = true
				}
				return false
			})
		}
		color := -1
		for c := 0; c < NumColors; c++ {
			if !used[c] {
				color = c
				break
			}
		}
		if color == -1 {
			alloc.Spill[reg] = nextSlot
			nextSlot++
			continue
		}
		alloc.Color[reg] = color
	}
	return alloc
}
