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

import "fmt"

// Op tags an Instruction's variant.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpNeg
	OpNot
	OpCmpEq
	OpCmpNe
	OpCmpLt
	OpCmpLe
	OpCmpGt
	OpCmpGe
	OpLoad
	OpStore
	OpAlloca
	OpBranch
	OpCondBranch
	OpReturn
	OpCall
	OpIndirectCall
	OpCast
	OpBitcast
	OpGEP
	OpExtractValue
	OpInsertValue
	OpPhi
	OpSelect
	OpMove
	OpIntrinsic
)

func (op Op) String() string {
	names := [...]string{
		"add", "sub", "mul", "div", "mod", "and", "or", "xor", "shl", "shr",
		"neg", "not", "cmp.eq", "cmp.ne", "cmp.lt", "cmp.le", "cmp.gt", "cmp.ge",
		"load", "store", "alloca", "br", "condbr", "ret", "call", "icall",
		"cast", "bitcast", "gep", "extractvalue", "insertvalue", "phi", "select",
		"move", "intrinsic",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// IsArithmetic reports whether op is one of the binary arithmetic/bitwise
// opcodes eligible for constant folding and peephole rewriting.
func (op Op) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr:
		return true
	default:
		return false
	}
}

func (op Op) IsCompare() bool {
	switch op {
	case OpCmpEq, OpCmpNe, OpCmpLt, OpCmpLe, OpCmpGt, OpCmpGe:
		return true
	default:
		return false
	}
}

func (op Op) IsTerminator() bool {
	switch op {
	case OpBranch, OpCondBranch, OpReturn:
		return true
	default:
		return false
	}
}

// PhiIncoming is one (value, predecessor-id) pair carried by a Phi
// instruction.
type PhiIncoming struct {
	Value Value
	Block int
}

// Instruction is a tagged variant over every IR opcode. Not every field
// applies to every Op; see the comment on each field for which opcodes use
// it. Destination registers are unique per function once the function is in
// SSA form.
type Instruction struct {
	Op   Op
	Ty   Type  // result type (arithmetic/load/call/cast/...)
	Dst  int   // destination virtual register, -1 if the instruction has none
	X, Y Value // primary operands (arithmetic, cmp, store value, cast source, select true/false)

	// Load/Store/Alloca/GEP addressing. For GEP, Addr is the base pointer,
	// X carries the dynamic element index (array indexing) when IsConstant
	// is false or is itself an integer constant, and Indices carries any
	// further static struct-field offsets applied after the element index.
	Addr Value

	// Branch/CondBranch targets, block ids.
	TrueBlock  int
	FalseBlock int // unused by unconditional Branch

	// Call/IndirectCall.
	Callee   string // Call: qualified function name
	CalleeV  Value  // IndirectCall: function pointer value
	Args     []Value

	// Phi.
	Incoming []PhiIncoming

	// Select: Cond ? X : Y.
	Cond Value

	// GEP/ExtractValue/InsertValue index chain.
	Indices []int

	// Intrinsic name (system package call already resolved to a symbol).
	Intrinsic string
}

func (i Instruction) String() string {
	dst := ""
	if i.Dst >= 0 {
		dst = fmt.Sprintf("%%r%d = ", i.Dst)
	}
	switch i.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr,
		OpCmpEq, OpCmpNe, OpCmpLt, OpCmpLe, OpCmpGt, OpCmpGe:
		return fmt.Sprintf("%s%s %s, %s", dst, i.Op, i.X, i.Y)
	case OpNeg, OpNot:
		return fmt.Sprintf("%s%s %s", dst, i.Op, i.X)
	case OpLoad:
		return fmt.Sprintf("%sload %s", dst, i.Addr)
	case OpStore:
		return fmt.Sprintf("store %s, %s", i.X, i.Addr)
	case OpAlloca:
		return fmt.Sprintf("%salloca %s", dst, i.Ty)
	case OpBranch:
		return fmt.Sprintf("br block%d", i.TrueBlock)
	case OpCondBranch:
		return fmt.Sprintf("condbr %s, block%d, block%d", i.X, i.TrueBlock, i.FalseBlock)
	case OpReturn:
		if i.X == (Value{}) && i.Ty.Kind == Void {
			return "ret void"
		}
		return fmt.Sprintf("ret %s", i.X)
	case OpCall:
		return fmt.Sprintf("%scall %s(%v)", dst, i.Callee, i.Args)
	case OpIndirectCall:
		return fmt.Sprintf("%sicall %s(%v)", dst, i.CalleeV, i.Args)
	case OpCast, OpBitcast:
		return fmt.Sprintf("%s%s %s to %s", dst, i.Op, i.X, i.Ty)
	case OpPhi:
		return fmt.Sprintf("%sphi %v", dst, i.Incoming)
	case OpSelect:
		return fmt.Sprintf("%sselect %s, %s, %s", dst, i.Cond, i.X, i.Y)
	case OpMove:
		return fmt.Sprintf("%smove %s", dst, i.X)
	case OpIntrinsic:
		return fmt.Sprintf("%sintrinsic %s(%v)", dst, i.Intrinsic, i.Args)
	default:
		return fmt.Sprintf("%s%s", dst, i.Op)
	}
}

// Move is the canonical way passes replace an instruction in place: fold,
// CSE and copy-propagation all converge on "this def is now just a move of
// some value."
func Move(dst int, ty Type, v Value) Instruction {
	return Instruction{Op: OpMove, Dst: dst, Ty: ty, X: v, FalseBlock: -1, TrueBlock: -1}
}
