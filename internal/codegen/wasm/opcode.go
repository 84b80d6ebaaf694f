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

// Package wasm is the second alternate back end: it translates an
// ir.Program's functions straight into a binary-encoded WebAssembly module,
// byte for byte, without shelling out to an assembler. Scope is
// deliberately narrower than the x86-64 path: integer arithmetic,
// comparisons, calls to the Console.print intrinsic and arbitrary control
// flow (including loops) are supported, reconstructed from the block graph
// via a single dispatch loop rather than a structural relooper. Heap
// objects (Load/Store/Alloca/GEP) are out of scope, matching the
// arithmetic-and-terminators restriction the LLVM stub carries.
package wasm

// Section ids, in module order.
const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secExport   = 7
	secCode     = 10
)

// Value type encodings.
const (
	valtypeI32 = 0x7f
	valtypeI64 = 0x7e
)

const funcTypeForm = 0x60

// Export kinds.
const exportKindFunc = 0x00

// Instruction opcodes, named after their WAT mnemonic.
const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0b
	opBr          = 0x0c
	opBrIf        = 0x0d
	opBrTable     = 0x0e
	opReturn      = 0x0f
	opCall        = 0x10

	opLocalGet = 0x20
	opLocalSet = 0x21

	opI32Const = 0x41
	opI64Const = 0x42

	opI32Eqz = 0x45

	opI64Eqz  = 0x50
	opI64Eq   = 0x51
	opI64Ne   = 0x52
	opI64LtS  = 0x53
	opI64GtS  = 0x55
	opI64LeS  = 0x57
	opI64GeS  = 0x59

	opI64Add  = 0x7c
	opI64Sub  = 0x7d
	opI64Mul  = 0x7e
	opI64DivS = 0x7f
	opI64RemS = 0x81
	opI64And  = 0x83
	opI64Or   = 0x84
	opI64Xor  = 0x85
	opI64Shl  = 0x86
	opI64ShrS = 0x87
)

const (
	opDrop        = 0x1a
	opI32WrapI64  = 0xa7
	opI64ExtendI32U = 0xad
)

// blockTypeVoid/blockTypeI32/blockTypeI64 are the single-byte blocktype
// immediates for block/loop/if headers that produce nothing, one i32 or
// one i64 — the only shapes this emitter ever needs.
const (
	blockTypeVoid = 0x40
	blockTypeI32  = valtypeI32
	blockTypeI64  = valtypeI64
)
