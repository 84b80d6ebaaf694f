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

// Package llvm is a deliberately partial alternate back end: it translates
// an ir.Program's terminators and arithmetic one-to-one into llir/llvm IR
// and hands back the module's text form. Everything x86-64-complete (calls,
// memory addressing, intrinsics) stays unique to internal/codegen/x86; this
// package exists to give a caller LLVM IR text to feed to llc, not to be a
// second complete back end.
package llvm

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	vir "github.com/gorse-io/vetra/internal/ir"
)

// Emitter translates one vir.Program into an llir/llvm module.
type Emitter struct {
	prog   *vir.Program
	module *ir.Module
}

func New(prog *vir.Program) *Emitter {
	return &Emitter{prog: prog, module: ir.NewModule()}
}

// Emit lowers every function's blocks and returns the module's LLVM IR
// text. Only OpAdd/Sub/Mul/Div and the three terminators are translated.
// Any other opcode goes through NewUnreachable, which only sets the
// block's terminator; the block's own branch or return replaces it, so
// the instruction is dropped and a register it defines reads as 0.
func (e *Emitter) Emit() (string, error) {
	for _, name := range e.prog.FunctionNames() {
		fn, ok := e.prog.Function(name)
		if !ok {
			continue
		}
		e.emitFunction(name, fn)
	}
	return e.module.String(), nil
}

func llType(t vir.Type) types.Type {
	switch t.Kind {
	case vir.I8:
		return types.I8
	case vir.I16:
		return types.I16
	case vir.I32:
		return types.I32
	case vir.I64:
		return types.I64
	case vir.F32:
		return types.Float
	case vir.F64:
		return types.Double
	case vir.Bool:
		return types.I1
	case vir.Ptr:
		return types.NewPointer(types.I8)
	default:
		return types.Void
	}
}

func (e *Emitter) emitFunction(name string, fn *vir.Function) {
	var params []*ir.Param
	for _, p := range fn.Params {
		params = append(params, ir.NewParam(p.Name, llType(p.Type)))
	}
	llFn := e.module.NewFunc(name, llType(fn.ReturnType), params...)

	blocks := make([]*ir.Block, len(fn.Blocks))
	for i := range fn.Blocks {
		blocks[i] = llFn.NewBlock(fmt.Sprintf("bb%d", i))
	}

	regs := map[int]value.Value{}
	for i, bb := range fn.Blocks {
		b := blocks[i]
		for _, inst := range bb.Insts {
			e.emitInst(b, blocks, inst, regs)
		}
	}
}

func (e *Emitter) operand(v vir.Value, regs map[int]value.Value) value.Value {
	switch v.Kind {
	case vir.ValueRegister:
		if r, ok := regs[v.Reg]; ok {
			return r
		}
		return constant.NewInt(types.I64, 0)
	case vir.ValueConstant:
		if v.Const.Kind == vir.CFloat32 || v.Const.Kind == vir.CFloat64 {
			return constant.NewFloat(types.Double, v.Const.F)
		}
		return constant.NewInt(types.I64, v.Const.I)
	default:
		return constant.NewInt(types.I64, 0)
	}
}

func (e *Emitter) emitInst(b *ir.Block, blocks []*ir.Block, inst vir.Instruction, regs map[int]value.Value) {
	switch inst.Op {
	case vir.OpAdd:
		regs[inst.Dst] = b.NewAdd(e.operand(inst.X, regs), e.operand(inst.Y, regs))
	case vir.OpSub:
		regs[inst.Dst] = b.NewSub(e.operand(inst.X, regs), e.operand(inst.Y, regs))
	case vir.OpMul:
		regs[inst.Dst] = b.NewMul(e.operand(inst.X, regs), e.operand(inst.Y, regs))
	case vir.OpDiv:
		regs[inst.Dst] = b.NewSDiv(e.operand(inst.X, regs), e.operand(inst.Y, regs))
	case vir.OpBranch:
		b.NewBr(blocks[inst.TrueBlock])
	case vir.OpCondBranch:
		b.NewCondBr(e.operand(inst.X, regs), blocks[inst.TrueBlock], blocks[inst.FalseBlock])
	case vir.OpReturn:
		if inst.X.Kind == vir.ValueUndef {
			b.NewRet(nil)
		} else {
			b.NewRet(e.operand(inst.X, regs))
		}
	default:
		b.NewUnreachable()
	}
}
