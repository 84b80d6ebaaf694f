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

package ir

import "github.com/samber/lo"

// BasicBlock is a maximal straight-line instruction sequence with a single
// entry and exactly one terminator once the function is fully built.
// Predecessor/successor sets and dominance data are computed by
// internal/cfg and stored back here for the optimizer and allocator to
// consume without recomputing them per pass.
type BasicBlock struct {
	ID    int
	Insts []Instruction

	Preds []int
	Succs []int

	// Dominators holds this block's dominator set in sorted order, per the
	// tie-break documented in the control-flow analysis: keeping the set
	// sorted lets the last strict dominator double as the immediate
	// dominator without a separate computation.
	Dominators []int
	// DomFrontier is this block's dominance frontier.
	DomFrontier []int
}

func NewBasicBlock(id int) *BasicBlock {
	return &BasicBlock{ID: id}
}

func (b *BasicBlock) AddInst(inst Instruction) {
	b.Insts = append(b.Insts, inst)
}

// Terminator returns the block's last instruction, or false if the block is
// still open (e.g. mid-construction).
func (b *BasicBlock) Terminator() (Instruction, bool) {
	if len(b.Insts) == 0 {
		return Instruction{}, false
	}
	last := b.Insts[len(b.Insts)-1]
	return last, last.Op.IsTerminator()
}

// HasTerminator reports whether the block already ends with a
// return/branch/cond-branch, the condition the IR builder uses to decide
// whether a statement should stop further emission into this block.
func (b *BasicBlock) HasTerminator() bool {
	_, ok := b.Terminator()
	return ok
}

func (b *BasicBlock) AddSucc(id int) {
	if !lo.Contains(b.Succs, id) {
		b.Succs = append(b.Succs, id)
	}
}

func (b *BasicBlock) AddPred(id int) {
	if !lo.Contains(b.Preds, id) {
		b.Preds = append(b.Preds, id)
	}
}

// ImmediateDominator returns the last entry of the sorted dominator set
// excluding the block itself — valid only because Dominators is kept sorted
// (see the control-flow analysis' tie-break rule).
func (b *BasicBlock) ImmediateDominator() (int, bool) {
	for i := len(b.Dominators) - 1; i >= 0; i-- {
		if b.Dominators[i] != b.ID {
			return b.Dominators[i], true
		}
	}
	return 0, false
}
