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

// Package bytecode is the stack-machine twin of internal/ir: a compiler
// from internal/ast straight to a flat op stream, bypassing the typed IR
// and its optimizer/allocator pipeline entirely. It exists for
// internal/vm/internal/embed's fast-start interpreted path, where the
// AOT back end's analysis passes would cost more than they save.
package bytecode

// Op tags one instruction in the flat op stream. Operands are carried on
// the Inst that wraps the Op rather than packed into the stream itself —
// this module is in-memory only, never serialized, so there is no
// byte-width pressure forcing compaction.
type Op int

const (
	OpConst Op = iota
	OpInt
	OpFloat
	OpTrue
	OpFalse
	OpNull
	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpBitNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpAnd
	OpOr
	OpNot
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpCall
	OpReturn
	OpReturnVal
	OpPop
	OpDup
	OpNewArray
	OpArrayGet
	OpArraySet
	OpArrayLen
	OpNewObject
	OpGetField
	OpSetField
	OpPrint
	OpPrintInt
	OpPrintStr
	OpInc
	OpDec
	OpCallNative
	OpHalt
)

func (op Op) String() string {
	names := [...]string{
		"const", "int", "float", "true", "false", "null",
		"load_local", "store_local", "load_global", "store_global",
		"add", "sub", "mul", "div", "mod", "neg",
		"bitnot", "bitand", "bitor", "bitxor", "shl", "shr",
		"eq", "neq", "lt", "lteq", "gt", "gteq", "and", "or", "not",
		"jump", "jump_if_false", "jump_if_true",
		"call", "return", "return_val", "pop", "dup",
		"new_array", "array_get", "array_set", "array_len",
		"new_object", "get_field", "set_field",
		"print", "print_int", "print_str", "inc", "dec", "call_native", "halt",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// smallIntThreshold is the |n| ≤ 32767 boundary below which an integer
// literal inlines as Int(n) instead of going through the constant pool.
const smallIntThreshold = 32767

// Inst is one instruction: an Op plus whichever operand fields it uses.
// Jump targets are absolute offsets into the owning Module's Code, patched
// once the target location is known.
type Inst struct {
	Op      Op
	Int     int64  // Int, NewArray count
	Float   float64
	ConstID int    // Const
	Slot    int    // LoadLocal/StoreLocal
	Global  int    // LoadGlobal/StoreGlobal, index into Module.Globals
	Target  int    // Jump/JumpIfFalse/JumpIfTrue
	FuncIdx int    // Call
	Argc    int    // Call, CallNative
	Field   int    // GetField/SetField, index into Module.Fields
	Native  int    // CallNative, index into Module.Natives
}
