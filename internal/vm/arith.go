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

package vm

import "github.com/gorse-io/vetra/internal/bytecode"

// arith evaluates one of the four mixed int/float binary operators,
// promoting an Int operand to Float when the other side is Float. String
// concatenation only applies to Add.
func (m *Machine) arith(op bytecode.Op, a, b bytecode.Val) (bytecode.Val, error) {
	if op == bytecode.OpAdd && a.Kind == bytecode.VStr && b.Kind == bytecode.VStr {
		return bytecode.StrVal(a.String() + b.String()), nil
	}
	if a.Kind == bytecode.VInt && b.Kind == bytecode.VInt {
		switch op {
		case bytecode.OpAdd:
			return bytecode.IntVal(a.I + b.I), nil
		case bytecode.OpSub:
			return bytecode.IntVal(a.I - b.I), nil
		case bytecode.OpMul:
			return bytecode.IntVal(a.I * b.I), nil
		case bytecode.OpDiv:
			if b.I == 0 {
				return bytecode.Val{}, m.errorf("integer division by zero")
			}
			return bytecode.IntVal(a.I / b.I), nil
		}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return bytecode.Val{}, m.errorf("type mismatch: %s %s %s", a.TypeName(), op, b.TypeName())
	}
	switch op {
	case bytecode.OpAdd:
		return bytecode.FloatVal(af + bf), nil
	case bytecode.OpSub:
		return bytecode.FloatVal(af - bf), nil
	case bytecode.OpMul:
		return bytecode.FloatVal(af * bf), nil
	case bytecode.OpDiv:
		return bytecode.FloatVal(af / bf), nil
	}
	return bytecode.Val{}, m.errorf("unsupported arithmetic op %s", op)
}

func asFloat(v bytecode.Val) (float64, bool) {
	switch v.Kind {
	case bytecode.VFloat:
		return v.F, true
	case bytecode.VInt:
		return float64(v.I), true
	default:
		return 0, false
	}
}

// compare returns -1/0/1 for ordered int/float operands; anything else is a
// RuntimeError reporting the type mismatch.
func (m *Machine) compare(a, b bytecode.Val) (int, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return 0, m.errorf("cannot compare %s and %s", a.TypeName(), b.TypeName())
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// valuesEqual implements Eq/NotEq: cross-kind comparisons (other than the
// int/float widening compare already handles structurally) are simply
// unequal rather than an error — Eq/NotEq never fail.
func valuesEqual(a, b bytecode.Val) bool {
	if a.Kind != b.Kind {
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if aok && bok {
			return af == bf
		}
		return false
	}
	switch a.Kind {
	case bytecode.VInt:
		return a.I == b.I
	case bytecode.VFloat:
		return a.F == b.F
	case bytecode.VBool:
		return a.B == b.B
	case bytecode.VStr:
		return a.String() == b.String()
	case bytecode.VNull:
		return true
	case bytecode.VFn:
		return a.FnID == b.FnID
	default:
		return a.Arr == b.Arr && a.Obj == b.Obj
	}
}
