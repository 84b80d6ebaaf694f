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

// inlineSizeThreshold bounds non-hinted inline candidates' instruction
// count.
const inlineSizeThreshold = 50

// Inline rewrites direct calls to inline candidates into a sequence of
// argument moves, the callee's remapped instructions, and a final move from
// the callee's return value to the caller's destination register.
//
// Candidates are: functions marked inline-always; small (<= 50
// instructions) non-recursive functions; or pure functions carrying an
// inline hint. never_inline and recursion are absolute blockers.
//
// The candidate body is snapshotted from prog before any caller is mutated,
// since prog is a single shared map and inlining into one caller must not
// observe a half-rewritten callee if the callee is itself inlined into
// elsewhere in the same pass — taking the snapshot up front avoids the
// mutable-aliasing bug where marking a callee "changed" without copying its
// body corrupts later callers.
func Inline(prog *ir.Program, fn *ir.Function) bool {
	snapshot := snapshotCandidates(prog)
	if len(snapshot) == 0 {
		return false
	}
	changed := false
	for _, b := range fn.Blocks {
		newInsts := make([]ir.Instruction, 0, len(b.Insts))
		for _, inst := range b.Insts {
			if inst.Op == ir.OpCall {
				if callee, ok := snapshot[inst.Callee]; ok && callee.Name != fn.Name {
					expanded := expandCall(fn, inst, callee)
					newInsts = append(newInsts, expanded...)
					changed = true
					continue
				}
			}
			newInsts = append(newInsts, inst)
		}
		b.Insts = newInsts
	}
	return changed
}

type inlineCandidate struct {
	Name   string
	Params []ir.Param
	Ret    ir.Type
	Blocks []*ir.BasicBlock
}

func snapshotCandidates(prog *ir.Program) map[string]inlineCandidate {
	out := map[string]inlineCandidate{}
	for _, name := range prog.FunctionNames() {
		f, ok := prog.Function(name)
		if !ok || !isCandidate(f) {
			continue
		}
		blocks := make([]*ir.BasicBlock, len(f.Blocks))
		for i, b := range f.Blocks {
			insts := make([]ir.Instruction, len(b.Insts))
			copy(insts, b.Insts)
			blocks[i] = &ir.BasicBlock{ID: b.ID, Insts: insts}
		}
		out[name] = inlineCandidate{Name: f.Name, Params: f.Params, Ret: f.ReturnType, Blocks: blocks}
	}
	return out
}

func isCandidate(f *ir.Function) bool {
	if f.Attrs.NoInline {
		return false
	}
	if f.Attrs.Inline == ir.InlineAlways {
		return !isRecursive(f)
	}
	if isRecursive(f) {
		return false
	}
	if f.InstCount() <= inlineSizeThreshold {
		return true
	}
	return f.Attrs.Pure && f.Attrs.Inline == ir.InlineHintSet
}

func isRecursive(f *ir.Function) bool {
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpCall && inst.Callee == f.Name {
				return true
			}
		}
	}
	return false
}

// expandCall lowers a single-block-worth candidate (the common case for
// small inline targets) into moves-for-arguments plus a final move of the
// return value. Multi-block candidates degrade to leaving the call in
// place — a deliberate scope limit, since control-flow splicing across
// blocks needs the caller's block to split mid-instruction, which the
// pipeline's single-pass driver does not yet do.
func expandCall(fn *ir.Function, call ir.Instruction, callee inlineCandidate) []ir.Instruction {
	if len(callee.Blocks) != 1 {
		return []ir.Instruction{call}
	}
	remap := map[int]int{}
	argRegs := make([]ir.Value, len(callee.Params))
	var out []ir.Instruction
	for i, p := range callee.Params {
		if i >= len(call.Args) {
			break
		}
		argReg := fn.NewReg()
		out = append(out, ir.Move(argReg, p.Type, call.Args[i]))
		argRegs[i] = ir.Reg(argReg)
	}
	var retVal ir.Value
	hasRet := false
	for _, inst := range callee.Blocks[0].Insts {
		if inst.Op == ir.OpReturn {
			retVal = remapValue(inst.X, remap, argRegs)
			hasRet = true
			continue
		}
		remapped := inst
		remapped.Dst = remapDst(inst.Dst, remap, fn)
		remapped.X = remapValue(inst.X, remap, argRegs)
		remapped.Y = remapValue(inst.Y, remap, argRegs)
		remapped.Addr = remapValue(inst.Addr, remap, argRegs)
		out = append(out, remapped)
	}
	if call.Dst >= 0 && hasRet {
		out = append(out, ir.Move(call.Dst, call.Ty, retVal))
	}
	return out
}

func remapDst(dst int, remap map[int]int, fn *ir.Function) int {
	if dst < 0 {
		return -1
	}
	if r, ok := remap[dst]; ok {
		return r
	}
	fresh := fn.NewReg()
	remap[dst] = fresh
	return fresh
}

func remapValue(v ir.Value, remap map[int]int, argRegs []ir.Value) ir.Value {
	switch v.Kind {
	case ir.ValueArgument:
		if v.Arg < len(argRegs) {
			return argRegs[v.Arg]
		}
		return v
	case ir.ValueRegister:
		if r, ok := remap[v.Reg]; ok {
			return ir.Reg(r)
		}
		return v
	default:
		return v
	}
}
