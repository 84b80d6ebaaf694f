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

// Peephole applies the single- and two-instruction rewrite patterns:
// x+0/x-0/x*1/x/1 -> x, x*0/x&0 -> 0, x*2^k -> x<<k, x|0/x^0 -> x, x^x -> 0,
// consecutive moves collapse, and a load immediately following a store to
// the same address is replaced by the stored value.
func Peephole(prog *ir.Program, fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		if rewriteArithIdentities(b) {
			changed = true
		}
		if collapseMoveChains(b) {
			changed = true
		}
		if forwardStoreToLoad(b) {
			changed = true
		}
	}
	return changed
}

func rewriteArithIdentities(b *ir.BasicBlock) bool {
	changed := false
	for i, inst := range b.Insts {
		switch inst.Op {
		case ir.OpAdd, ir.OpSub, ir.OpOr, ir.OpXor:
			if inst.Y.IsConstant() && inst.Y.Const.IsZero() {
				if inst.Op == ir.OpXor && sameOperand(inst.X, inst.Y) {
					b.Insts[i] = ir.Move(inst.Dst, inst.Ty, zeroOf(inst.Ty))
				} else {
					b.Insts[i] = ir.Move(inst.Dst, inst.Ty, inst.X)
				}
				changed = true
			} else if inst.Op == ir.OpXor && sameOperand(inst.X, inst.Y) {
				b.Insts[i] = ir.Move(inst.Dst, inst.Ty, zeroOf(inst.Ty))
				changed = true
			}
		case ir.OpMul:
			if inst.Y.IsConstant() && inst.Y.Const.IsZero() {
				b.Insts[i] = ir.Move(inst.Dst, inst.Ty, zeroOf(inst.Ty))
				changed = true
			} else if inst.Y.IsConstant() && inst.Y.Const.IsOne() {
				b.Insts[i] = ir.Move(inst.Dst, inst.Ty, inst.X)
				changed = true
			} else if inst.Y.IsConstant() {
				if shift, ok := inst.Y.Const.PowerOfTwoShift(); ok {
					i2 := inst
					i2.Op = ir.OpShl
					i2.Y = ir.ConstVal(ir.IntConst(ir.CInt32, int64(shift)))
					b.Insts[i] = i2
					changed = true
				}
			}
		case ir.OpDiv:
			if inst.Y.IsConstant() && inst.Y.Const.IsOne() {
				b.Insts[i] = ir.Move(inst.Dst, inst.Ty, inst.X)
				changed = true
			}
		case ir.OpAnd:
			if inst.Y.IsConstant() && inst.Y.Const.IsZero() {
				b.Insts[i] = ir.Move(inst.Dst, inst.Ty, zeroOf(inst.Ty))
				changed = true
			}
		}
	}
	return changed
}

func sameOperand(x, y ir.Value) bool {
	if x.Kind != y.Kind {
		return false
	}
	switch x.Kind {
	case ir.ValueRegister:
		return x.Reg == y.Reg
	case ir.ValueLocal:
		return x.Local == y.Local
	case ir.ValueConstant:
		return x.Const.Equal(y.Const)
	default:
		return false
	}
}

func zeroOf(ty ir.Type) ir.Value {
	if ty.IsFloat() {
		return ir.ConstVal(ir.FloatConst(constKindForFold(ty), 0))
	}
	return ir.ConstVal(ir.IntConst(constKindForFold(ty), 0))
}

func constKindForFold(ty ir.Type) ir.ConstKind {
	switch ty.Kind {
	case ir.I8:
		return ir.CInt8
	case ir.I16:
		return ir.CInt16
	case ir.I32:
		return ir.CInt32
	case ir.I64:
		return ir.CInt64
	case ir.F32:
		return ir.CFloat32
	case ir.F64:
		return ir.CFloat64
	default:
		return ir.CInt32
	}
}

// collapseMoveChains rewrites "y = move x; z = move y" into "z = move x"
// within a single block, a conservative single-pass version that a second
// pipeline iteration repeats until no chain remains.
func collapseMoveChains(b *ir.BasicBlock) bool {
	changed := false
	movedFrom := map[int]ir.Value{}
	for i, inst := range b.Insts {
		if inst.Op != ir.OpMove {
			continue
		}
		if inst.X.IsRegister() {
			if src, ok := movedFrom[inst.X.Reg]; ok {
				b.Insts[i].X = src
				inst.X = src
				changed = true
			}
		}
		if inst.Dst >= 0 {
			movedFrom[inst.Dst] = inst.X
		}
	}
	return changed
}

// forwardStoreToLoad replaces a Load whose address exactly matches an
// immediately preceding Store's address, within the same block, with a Move
// of the stored value.
func forwardStoreToLoad(b *ir.BasicBlock) bool {
	changed := false
	for i := 1; i < len(b.Insts); i++ {
		if b.Insts[i].Op != ir.OpLoad {
			continue
		}
		prev := b.Insts[i-1]
		if prev.Op == ir.OpStore && sameOperand(prev.Addr, b.Insts[i].Addr) {
			b.Insts[i] = ir.Move(b.Insts[i].Dst, b.Insts[i].Ty, prev.X)
			changed = true
		}
	}
	return changed
}
