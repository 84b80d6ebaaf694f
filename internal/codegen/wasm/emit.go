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

package wasm

import (
	"fmt"
	"sort"
	"strings"

	vir "github.com/gorse-io/vetra/internal/ir"
)

// Emitter walks an ir.Program and produces one binary WebAssembly module.
// It imports a single host function, env.print_int, which is all the
// Console surface the round-trip scenarios need.
type Emitter struct {
	prog *vir.Program
}

func New(prog *vir.Program) *Emitter { return &Emitter{prog: prog} }

// Emit encodes every function in the program into one module and returns
// its bytes. Functions are visited in sorted name order so the output is
// deterministic across runs.
func (e *Emitter) Emit() ([]byte, error) {
	names := e.prog.FunctionNames()
	sort.Strings(names)

	types := [][]byte{funcType([]byte{valtypeI64}, nil)} // type 0: env.print_int
	typeIdx := make(map[string]int, len(names))
	for i, name := range names {
		fn, _ := e.prog.Function(name)
		typeIdx[name] = i + 1
		types = append(types, funcType(paramTypes(fn), resultTypes(fn)))
	}

	imports := [][]byte{importFunc("env", "print_int", 0)}

	var funcSec [][]byte
	for _, name := range names {
		funcSec = append(funcSec, appendULEB128(nil, uint64(typeIdx[name])))
	}

	var exports [][]byte
	for i, name := range names {
		exports = append(exports, exportFunc(name, len(imports)+i))
	}

	var code [][]byte
	for _, name := range names {
		fn, _ := e.prog.Function(name)
		body, err := newFuncBuilder(fn).build()
		if err != nil {
			return nil, fmt.Errorf("wasm: %w", err)
		}
		code = append(code, body)
	}

	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, section(secType, vec(types))...)
	mod = append(mod, section(secImport, vec(imports))...)
	mod = append(mod, section(secFunction, vec(funcSec))...)
	mod = append(mod, section(secExport, vec(exports))...)
	mod = append(mod, section(secCode, vec(code))...)
	return mod, nil
}

func funcType(params, results []byte) []byte {
	out := []byte{funcTypeForm}
	out = appendULEB128(out, uint64(len(params)))
	out = append(out, params...)
	out = appendULEB128(out, uint64(len(results)))
	out = append(out, results...)
	return out
}

func paramTypes(fn *vir.Function) []byte {
	out := make([]byte, len(fn.Params))
	for i := range out {
		out[i] = valtypeI64
	}
	return out
}

func resultTypes(fn *vir.Function) []byte {
	if fn.ReturnType.Kind == vir.Void {
		return nil
	}
	return []byte{valtypeI64}
}

func importFunc(module, name string, typeIdx int) []byte {
	var out []byte
	out = appendName(out, module)
	out = appendName(out, name)
	out = append(out, 0x00)
	out = appendULEB128(out, uint64(typeIdx))
	return out
}

func exportFunc(name string, funcIdx int) []byte {
	var out []byte
	out = appendName(out, name)
	out = append(out, exportKindFunc)
	out = appendULEB128(out, uint64(funcIdx))
	return out
}

func localDecl(count int, vt byte) []byte {
	out := appendULEB128(nil, uint64(count))
	return append(out, vt)
}

// isPrintCallee accepts any callee whose name contains "print", ignoring
// case (Console.print, print_int, ...); any other call target is out of
// scope for this translation.
func isPrintCallee(name string) bool {
	return strings.Contains(strings.ToLower(name), "print")
}

// funcBuilder translates one ir.Function into a WebAssembly function body.
// Every virtual register and parameter becomes an i64 local; control flow
// is reconstructed with a single dispatch loop wrapping one nested block
// per basic block (a "switch relooper"), so arbitrary — including
// irreducible — block graphs translate without a structural CFG analysis:
// a block's code sits between its own closing `end` and the next one, and
// branching to block k means setting the dispatch local to k and branching
// back to the loop header.
type funcBuilder struct {
	fn      *vir.Function
	pcLocal int
}

func newFuncBuilder(fn *vir.Function) *funcBuilder {
	return &funcBuilder{fn: fn}
}

func (b *funcBuilder) regLocal(reg int) int { return len(b.fn.Params) + reg }
func (b *funcBuilder) argLocal(i int) int   { return i }

func (b *funcBuilder) build() ([]byte, error) {
	n := len(b.fn.Blocks)
	if n == 0 {
		return nil, fmt.Errorf("function %s has no blocks", b.fn.Name)
	}
	b.pcLocal = len(b.fn.Params) + b.fn.NumRegs

	var localDecls [][]byte
	if b.fn.NumRegs > 0 {
		localDecls = append(localDecls, localDecl(b.fn.NumRegs, valtypeI64))
	}
	localDecls = append(localDecls, localDecl(1, valtypeI32))

	var code []byte
	code = append(code, opLoop, blockTypeVoid)
	for i := 0; i < n; i++ {
		code = append(code, opBlock, blockTypeVoid)
	}

	code = append(code, opLocalGet)
	code = appendULEB128(code, uint64(b.pcLocal))
	code = append(code, opBrTable)
	code = appendULEB128(code, uint64(n))
	for i := 0; i < n; i++ {
		code = appendULEB128(code, uint64(i))
	}
	code = appendULEB128(code, uint64(n-1)) // default: clamp to the last case

	for k := 0; k < n; k++ {
		code = append(code, opEnd) // closes case k
		blkCode, err := b.translateBlock(k)
		if err != nil {
			return nil, fmt.Errorf("function %s, block %d: %w", b.fn.Name, k, err)
		}
		code = append(code, blkCode...)
	}
	code = append(code, opEnd) // closes loop
	code = append(code, opUnreachable)
	code = append(code, opEnd) // function end

	var body []byte
	body = appendULEB128(body, uint64(len(localDecls)))
	for _, d := range localDecls {
		body = append(body, d...)
	}
	body = append(body, code...)

	out := appendULEB128(nil, uint64(len(body)))
	return append(out, body...), nil
}

func (b *funcBuilder) translateBlock(blockIdx int) ([]byte, error) {
	blk := b.fn.Blocks[blockIdx]
	if len(blk.Insts) == 0 {
		return nil, fmt.Errorf("empty block")
	}
	var code []byte
	for _, inst := range blk.Insts[:len(blk.Insts)-1] {
		var err error
		code, err = b.emitInst(code, inst)
		if err != nil {
			return nil, err
		}
	}
	return b.emitTerminator(code, blockIdx, blk.Insts[len(blk.Insts)-1])
}

var arithOpcode = map[vir.Op]byte{
	vir.OpAdd: opI64Add, vir.OpSub: opI64Sub, vir.OpMul: opI64Mul,
	vir.OpDiv: opI64DivS, vir.OpMod: opI64RemS,
	vir.OpAnd: opI64And, vir.OpOr: opI64Or, vir.OpXor: opI64Xor,
	vir.OpShl: opI64Shl, vir.OpShr: opI64ShrS,
}

var cmpOpcode = map[vir.Op]byte{
	vir.OpCmpEq: opI64Eq, vir.OpCmpNe: opI64Ne,
	vir.OpCmpLt: opI64LtS, vir.OpCmpLe: opI64LeS,
	vir.OpCmpGt: opI64GtS, vir.OpCmpGe: opI64GeS,
}

func (b *funcBuilder) emitInst(code []byte, inst vir.Instruction) ([]byte, error) {
	var err error
	switch {
	case inst.Op.IsArithmetic():
		if code, err = b.emitOperand(code, inst.X); err != nil {
			return nil, err
		}
		if code, err = b.emitOperand(code, inst.Y); err != nil {
			return nil, err
		}
		op, ok := arithOpcode[inst.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported arithmetic op %s", inst.Op)
		}
		code = append(code, op)
		return b.setReg(code, inst.Dst), nil
	case inst.Op.IsCompare():
		if code, err = b.emitOperand(code, inst.X); err != nil {
			return nil, err
		}
		if code, err = b.emitOperand(code, inst.Y); err != nil {
			return nil, err
		}
		op, ok := cmpOpcode[inst.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported compare op %s", inst.Op)
		}
		code = append(code, op, opI64ExtendI32U)
		return b.setReg(code, inst.Dst), nil
	}

	switch inst.Op {
	case vir.OpNeg:
		code = append(code, opI64Const)
		code = appendSLEB128(code, 0)
		if code, err = b.emitOperand(code, inst.X); err != nil {
			return nil, err
		}
		code = append(code, opI64Sub)
		return b.setReg(code, inst.Dst), nil
	case vir.OpNot:
		if code, err = b.emitOperand(code, inst.X); err != nil {
			return nil, err
		}
		code = append(code, opI64Const)
		code = appendSLEB128(code, -1)
		code = append(code, opI64Xor)
		return b.setReg(code, inst.Dst), nil
	case vir.OpMove:
		if code, err = b.emitOperand(code, inst.X); err != nil {
			return nil, err
		}
		return b.setReg(code, inst.Dst), nil
	case vir.OpCall, vir.OpIntrinsic:
		callee := inst.Callee
		if inst.Op == vir.OpIntrinsic {
			callee = inst.Intrinsic
		}
		if !isPrintCallee(callee) {
			return nil, fmt.Errorf("unsupported call target %q", callee)
		}
		if len(inst.Args) != 1 {
			return nil, fmt.Errorf("print_int wants 1 argument, got %d", len(inst.Args))
		}
		if code, err = b.emitOperand(code, inst.Args[0]); err != nil {
			return nil, err
		}
		code = append(code, opCall)
		code = appendULEB128(code, 0)
		return code, nil
	default:
		return nil, fmt.Errorf("unsupported instruction %s", inst.Op)
	}
}

func (b *funcBuilder) setReg(code []byte, dst int) []byte {
	if dst < 0 {
		return append(code, opDrop)
	}
	code = append(code, opLocalSet)
	return appendULEB128(code, uint64(b.regLocal(dst)))
}

func (b *funcBuilder) emitOperand(code []byte, v vir.Value) ([]byte, error) {
	switch v.Kind {
	case vir.ValueRegister:
		code = append(code, opLocalGet)
		return appendULEB128(code, uint64(b.regLocal(v.Reg))), nil
	case vir.ValueArgument:
		code = append(code, opLocalGet)
		return appendULEB128(code, uint64(b.argLocal(v.Arg))), nil
	case vir.ValueConstant:
		code = append(code, opI64Const)
		return appendSLEB128(code, constInt(v.Const)), nil
	case vir.ValueUndef:
		code = append(code, opI64Const)
		return appendSLEB128(code, 0), nil
	default:
		return nil, fmt.Errorf("unsupported operand kind %v (globals/locals/heap values are out of scope)", v.Kind)
	}
}

func constInt(c vir.Constant) int64 {
	switch c.Kind {
	case vir.CFloat32, vir.CFloat64:
		return int64(c.F)
	case vir.CBool:
		if c.B {
			return 1
		}
		return 0
	default:
		return c.I
	}
}

func (b *funcBuilder) emitTerminator(code []byte, blockIdx int, inst vir.Instruction) ([]byte, error) {
	n := len(b.fn.Blocks)
	loopDepth := n - 1 - blockIdx

	switch inst.Op {
	case vir.OpBranch:
		code = append(code, opI32Const)
		code = appendSLEB128(code, int64(inst.TrueBlock))
		code = append(code, opLocalSet)
		code = appendULEB128(code, uint64(b.pcLocal))
		code = append(code, opBr)
		return appendULEB128(code, uint64(loopDepth)), nil

	case vir.OpCondBranch:
		var err error
		if code, err = b.emitOperand(code, inst.X); err != nil {
			return nil, err
		}
		code = append(code, opI32WrapI64)
		code = append(code, opIf, blockTypeI32)
		code = append(code, opI32Const)
		code = appendSLEB128(code, int64(inst.TrueBlock))
		code = append(code, opElse)
		code = append(code, opI32Const)
		code = appendSLEB128(code, int64(inst.FalseBlock))
		code = append(code, opEnd)
		code = append(code, opLocalSet)
		code = appendULEB128(code, uint64(b.pcLocal))
		code = append(code, opBr)
		return appendULEB128(code, uint64(loopDepth)), nil

	case vir.OpReturn:
		if inst.Ty.Kind == vir.Void {
			return append(code, opReturn), nil
		}
		var err error
		if code, err = b.emitOperand(code, inst.X); err != nil {
			return nil, err
		}
		return append(code, opReturn), nil

	default:
		return nil, fmt.Errorf("block does not end in a terminator (got %s)", inst.Op)
	}
}
