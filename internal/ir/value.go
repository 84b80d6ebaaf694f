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

import (
	"fmt"
	"math"
)

// ValueKind tags a Value's variant.
type ValueKind int

const (
	ValueRegister ValueKind = iota
	ValueConstant
	ValueGlobal
	ValueLocal
	ValueArgument
	ValueUndef
)

// Value is one of: virtual register id, constant, named global, local slot
// index, parameter index, or undef. Values are typed by context (the
// instruction's Ty field) rather than carrying their own type.
type Value struct {
	Kind   ValueKind
	Reg    int      // ValueRegister
	Const  Constant // ValueConstant
	Global string   // ValueGlobal
	Local  int      // ValueLocal
	Arg    int       // ValueArgument
}

func Reg(id int) Value              { return Value{Kind: ValueRegister, Reg: id} }
func ConstVal(c Constant) Value     { return Value{Kind: ValueConstant, Const: c} }
func GlobalVal(name string) Value   { return Value{Kind: ValueGlobal, Global: name} }
func LocalVal(slot int) Value       { return Value{Kind: ValueLocal, Local: slot} }
func ArgVal(i int) Value            { return Value{Kind: ValueArgument, Arg: i} }
func Undef() Value                  { return Value{Kind: ValueUndef} }

func (v Value) String() string {
	switch v.Kind {
	case ValueRegister:
		return fmt.Sprintf("%%r%d", v.Reg)
	case ValueConstant:
		return v.Const.String()
	case ValueGlobal:
		return "@" + v.Global
	case ValueLocal:
		return fmt.Sprintf("local[%d]", v.Local)
	case ValueArgument:
		return fmt.Sprintf("arg[%d]", v.Arg)
	default:
		return "undef"
	}
}

func (v Value) IsConstant() bool { return v.Kind == ValueConstant }
func (v Value) IsRegister() bool { return v.Kind == ValueRegister }

// ConstKind tags a Constant's variant.
type ConstKind int

const (
	CInt8 ConstKind = iota
	CInt16
	CInt32
	CInt64
	CFloat32
	CFloat64
	CBool
	CString
	CNull
)

// Constant mirrors the original source's IRConstant: float equality/hashing
// uses the raw bit pattern (via Key) so that constant pools and CSE never
// rely on IEEE equality, where NaN != NaN and +0.0 == -0.0 would otherwise
// merge or split entries incorrectly.
type Constant struct {
	Kind ConstKind
	I    int64
	F    float64
	B    bool
	S    string
}

func IntConst(kind ConstKind, v int64) Constant  { return Constant{Kind: kind, I: v} }
func FloatConst(kind ConstKind, v float64) Constant { return Constant{Kind: kind, F: v} }
func BoolConst(v bool) Constant                  { return Constant{Kind: CBool, B: v} }
func StringConst(v string) Constant              { return Constant{Kind: CString, S: v} }
func NullConst() Constant                        { return Constant{Kind: CNull} }

// Key returns a comparable value suitable for use as a map key, implementing
// the bit-pattern canonicalization for floats.
type ConstKey struct {
	Kind ConstKind
	I    int64
	Bits uint64
	B    bool
	S    string
}

func (c Constant) Key() ConstKey {
	k := ConstKey{Kind: c.Kind, I: c.I, B: c.B, S: c.S}
	if c.Kind == CFloat32 {
		k.Bits = uint64(math.Float32bits(float32(c.F)))
	} else if c.Kind == CFloat64 {
		k.Bits = math.Float64bits(c.F)
	}
	return k
}

func (c Constant) Equal(o Constant) bool { return c.Key() == o.Key() }

func (c Constant) Type() Type {
	switch c.Kind {
	case CInt8:
		return TypeI8
	case CInt16:
		return TypeI16
	case CInt32:
		return TypeI32
	case CInt64:
		return TypeI64
	case CFloat32:
		return TypeF32
	case CFloat64:
		return TypeF64
	case CBool:
		return TypeBool
	case CString:
		return PtrTo(TypeI8)
	default:
		return PtrTo(TypeVoid)
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case CInt8, CInt16, CInt32, CInt64:
		return fmt.Sprintf("%d", c.I)
	case CFloat32, CFloat64:
		return fmt.Sprintf("%g", c.F)
	case CBool:
		return fmt.Sprintf("%t", c.B)
	case CString:
		return fmt.Sprintf("%q", c.S)
	default:
		return "null"
	}
}

// IsZero reports whether the constant is the additive identity for its
// type, used by the peephole pass.
func (c Constant) IsZero() bool {
	switch c.Kind {
	case CInt8, CInt16, CInt32, CInt64:
		return c.I == 0
	case CFloat32, CFloat64:
		return c.F == 0
	default:
		return false
	}
}

// IsOne reports whether the constant is the multiplicative identity.
func (c Constant) IsOne() bool {
	switch c.Kind {
	case CInt8, CInt16, CInt32, CInt64:
		return c.I == 1
	case CFloat32, CFloat64:
		return c.F == 1
	default:
		return false
	}
}

// PowerOfTwoShift returns (shift, true) if the constant is a positive
// integer power of two, used by strength reduction.
func (c Constant) PowerOfTwoShift() (int, bool) {
	switch c.Kind {
	case CInt8, CInt16, CInt32, CInt64:
		if c.I <= 0 {
			return 0, false
		}
		n := uint64(c.I)
		if n&(n-1) != 0 {
			return 0, false
		}
		shift := 0
		for n > 1 {
			n >>= 1
			shift++
		}
		return shift, true
	default:
		return 0, false
	}
}
