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

import "github.com/gorse-io/vetra/internal/ir"

// ConstantPropagate forward-substitutes a register known to hold a literal
// constant (via a Move from ConstantFold or the builder itself) into every
// later use within the same block, letting a subsequent ConstantFold pass
// iteration fold arithmetic it otherwise couldn't reach. The Maximum
// optimization level adds this and CSE on top of Aggressive's pass list;
// both work within a single block.
func ConstantPropagate(prog *ir.Program, fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		known := map[int]ir.Value{}
		for i, inst := range b.Insts {
			rewritten := inst
			if inst.X.IsRegister() {
				if c, ok := known[inst.X.Reg]; ok {
					rewritten.X = c
					changed = true
				}
			}
			if inst.Y.IsRegister() {
				if c, ok := known[inst.Y.Reg]; ok {
					rewritten.Y = c
					changed = true
				}
			}
			b.Insts[i] = rewritten
			if rewritten.Op == ir.OpMove && rewritten.X.IsConstant() && rewritten.Dst >= 0 {
				known[rewritten.Dst] = rewritten.X
			}
		}
	}
	return changed
}

// CSE (common subexpression elimination) collapses repeated pure arithmetic
// computations within a single block: the second occurrence of an
// identical (op, x, y) triple becomes a Move of the first occurrence's
// destination register.
func CSE(prog *ir.Program, fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		seen := map[cseKey]int{}
		for i, inst := range b.Insts {
			if !inst.Op.IsArithmetic() && !inst.Op.IsCompare() {
				continue
			}
			key, ok := keyOf(inst)
			if !ok {
				continue
			}
			if prevDst, ok := seen[key]; ok {
				b.Insts[i] = ir.Move(inst.Dst, inst.Ty, ir.Reg(prevDst))
				changed = true
				continue
			}
			seen[key] = inst.Dst
		}
	}
	return changed
}

type cseKey struct {
	op   ir.Op
	x, y string
}

func keyOf(inst ir.Instruction) (cseKey, bool) {
	if !inst.X.IsRegister() && !inst.X.IsConstant() {
		return cseKey{}, false
	}
	if !inst.Y.IsRegister() && !inst.Y.IsConstant() {
		return cseKey{}, false
	}
	return cseKey{op: inst.Op, x: inst.X.String(), y: inst.Y.String()}, true
}
