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

// Package passes holds every individual optimization pass. Passes never
// report errors — they either rewrite an instruction in place or leave it
// alone, per the pipeline's failure semantics.
package passes

import "github.com/gorse-io/vetra/internal/ir"

// ConstantFold replaces arithmetic on two literal operands of matching
// numeric type with a Move of the folded result. Integer ops wrap; division
// by a literal zero is left untouched rather than folded to a bogus value.
func ConstantFold(prog *ir.Program, fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		for i, inst := range b.Insts {
			if !inst.Op.IsArithmetic() {
				continue
			}
			if !inst.X.IsConstant() || !inst.Y.IsConstant() {
				continue
			}
			folded, ok := foldArith(inst.Op, inst.X.Const, inst.Y.Const)
			if !ok {
				continue
			}
			b.Insts[i] = ir.Move(inst.Dst, inst.Ty, ir.ConstVal(folded))
			changed = true
		}
	}
	return changed
}

func foldArith(op ir.Op, x, y ir.Constant) (ir.Constant, bool) {
	if x.Kind != y.Kind {
		return ir.Constant{}, false
	}
	if isFloatKind(x.Kind) {
		return foldFloat(op, x, y)
	}
	return foldInt(op, x, y)
}

func isFloatKind(k ir.ConstKind) bool { return k == ir.CFloat32 || k == ir.CFloat64 }

func foldInt(op ir.Op, x, y ir.Constant) (ir.Constant, bool) {
	a, b := x.I, y.I
	var r int64
	switch op {
	case ir.OpAdd:
		r = a + b
	case ir.OpSub:
		r = a - b
	case ir.OpMul:
		r = a * b
	case ir.OpDiv:
		if b == 0 {
			return ir.Constant{}, false
		}
		r = a / b
	case ir.OpMod:
		if b == 0 {
			return ir.Constant{}, false
		}
		r = a % b
	case ir.OpAnd:
		r = a & b
	case ir.OpOr:
		r = a | b
	case ir.OpXor:
		r = a ^ b
	case ir.OpShl:
		r = a << uint(b)
	case ir.OpShr:
		r = a >> uint(b)
	default:
		return ir.Constant{}, false
	}
	return ir.IntConst(x.Kind, wrapToKind(x.Kind, r)), true
}

// wrapToKind applies the target width's wrapping semantics so folded
// constants agree with what the same op would produce at runtime.
func wrapToKind(kind ir.ConstKind, v int64) int64 {
	switch kind {
	case ir.CInt8:
		return int64(int8(v))
	case ir.CInt16:
		return int64(int16(v))
	case ir.CInt32:
		return int64(int32(v))
	default:
		return v
	}
}

func foldFloat(op ir.Op, x, y ir.Constant) (ir.Constant, bool) {
	a, b := x.F, y.F
	var r float64
	switch op {
	case ir.OpAdd:
		r = a + b
	case ir.OpSub:
		r = a - b
	case ir.OpMul:
		r = a * b
	case ir.OpDiv:
		if b == 0 {
			return ir.Constant{}, false
		}
		r = a / b
	default:
		return ir.Constant{}, false
	}
	return ir.FloatConst(x.Kind, r), true
}
