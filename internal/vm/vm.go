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

// Package vm is the switch-dispatched stack machine that runs a
// internal/bytecode Module: instruction pointer, operand stack, call-frame
// stack, and a fixed-size globals vector. One Machine is single-threaded;
// a host running several scripts concurrently creates one Machine per
// script.
package vm

import (
	"fmt"
	"os"

	"github.com/gorse-io/vetra/internal/bytecode"
)

// frame is one call's window into the shared operand stack: base is the
// stack index its locals are offset from (LoadLocal/StoreLocal address
// stack[base+slot]), retIP is where Return/ReturnVal resumes the caller.
type frame struct {
	retIP int
	base  int
}

// NativeFn is a host or internal/embed-registered function callable from
// script by name via OpCallNative, mirroring original_source's
// `Fn(&[Val]) -> Result<Val, String>` native signature.
type NativeFn func(args []bytecode.Val) (bytecode.Val, error)

// Machine is one running instance of a compiled Module. It is not safe for
// concurrent use; a host juggling multiple scripts creates one Machine per
// script (see internal/embed).
type Machine struct {
	mod     *bytecode.Module
	ip      int
	stack   []bytecode.Val
	frames  []frame
	globals []bytecode.Val
	Stdout  *os.File
	Natives map[string]NativeFn
}

// New prepares a Machine to run mod, with every global initialized to Null
// until the module's const-initializer code (emitted ahead of the entry
// point) assigns it.
func New(mod *bytecode.Module) *Machine {
	globals := make([]bytecode.Val, len(mod.Globals))
	for i := range globals {
		globals[i] = bytecode.NullVal()
	}
	return &Machine{
		mod:     mod,
		stack:   make([]bytecode.Val, 0, 256),
		frames:  make([]frame, 0, 64),
		globals: globals,
		Stdout:  os.Stdout,
		Natives: map[string]NativeFn{},
	}
}

// Global and SetGlobal let an embedder read or seed a global slot by
// index (resolved by name against mod.Globals) from outside the dispatch
// loop, before or after a Run call.
func (m *Machine) Global(i int) bytecode.Val     { return m.globals[i] }
func (m *Machine) SetGlobal(i int, v bytecode.Val) { m.globals[i] = v }

// Run executes from mod.EntryOffset until Halt or the outermost Return,
// returning the value left on the stack (or reported via ReturnVal at frame
// depth zero).
func (m *Machine) Run() (bytecode.Val, error) {
	m.ip = m.mod.EntryOffset
	for {
		if m.ip < 0 || m.ip >= len(m.mod.Code) {
			return bytecode.Val{}, m.errorf("ip out of bounds")
		}
		inst := m.mod.Code[m.ip]
		m.ip++
		switch inst.Op {
		case bytecode.OpConst:
			m.push(m.mod.Consts[inst.ConstID])
		case bytecode.OpInt:
			m.push(bytecode.IntVal(inst.Int))
		case bytecode.OpFloat:
			m.push(bytecode.FloatVal(inst.Float))
		case bytecode.OpTrue:
			m.push(bytecode.BoolVal(true))
		case bytecode.OpFalse:
			m.push(bytecode.BoolVal(false))
		case bytecode.OpNull:
			m.push(bytecode.NullVal())

		case bytecode.OpLoadLocal:
			m.push(m.stack[m.base()+inst.Slot])
		case bytecode.OpStoreLocal:
			m.storeLocal(inst.Slot)
		case bytecode.OpLoadGlobal:
			m.push(m.globals[inst.Global])
		case bytecode.OpStoreGlobal:
			m.globals[inst.Global] = m.peek()

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv:
			b, a := m.pop(), m.pop()
			v, err := m.arith(inst.Op, a, b)
			if err != nil {
				return bytecode.Val{}, err
			}
			m.push(v)
		case bytecode.OpMod:
			b, a := m.pop(), m.pop()
			if a.Kind != bytecode.VInt || b.Kind != bytecode.VInt {
				return bytecode.Val{}, m.errorf("mod requires ints, got %s %% %s", a.TypeName(), b.TypeName())
			}
			if b.I == 0 {
				return bytecode.Val{}, m.errorf("integer division by zero")
			}
			m.push(bytecode.IntVal(a.I % b.I))
		case bytecode.OpNeg:
			v := m.pop()
			switch v.Kind {
			case bytecode.VInt:
				m.push(bytecode.IntVal(-v.I))
			case bytecode.VFloat:
				m.push(bytecode.FloatVal(-v.F))
			default:
				return bytecode.Val{}, m.errorf("cannot negate %s", v.TypeName())
			}

		case bytecode.OpBitNot:
			v := m.pop()
			if v.Kind != bytecode.VInt {
				return bytecode.Val{}, m.errorf("bitnot requires int, got %s", v.TypeName())
			}
			m.push(bytecode.IntVal(^v.I))
		case bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr:
			b, a := m.pop(), m.pop()
			if a.Kind != bytecode.VInt || b.Kind != bytecode.VInt {
				return bytecode.Val{}, m.errorf("%s requires ints, got %s and %s", inst.Op, a.TypeName(), b.TypeName())
			}
			m.push(bitop(inst.Op, a.I, b.I))

		case bytecode.OpEq:
			b, a := m.pop(), m.pop()
			m.push(bytecode.BoolVal(valuesEqual(a, b)))
		case bytecode.OpNotEq:
			b, a := m.pop(), m.pop()
			m.push(bytecode.BoolVal(!valuesEqual(a, b)))
		case bytecode.OpLt, bytecode.OpLtEq, bytecode.OpGt, bytecode.OpGtEq:
			b, a := m.pop(), m.pop()
			c, err := m.compare(a, b)
			if err != nil {
				return bytecode.Val{}, err
			}
			m.push(bytecode.BoolVal(ordered(inst.Op, c)))

		case bytecode.OpAnd:
			b, a := m.pop(), m.pop()
			m.push(bytecode.BoolVal(a.IsTruthy() && b.IsTruthy()))
		case bytecode.OpOr:
			b, a := m.pop(), m.pop()
			m.push(bytecode.BoolVal(a.IsTruthy() || b.IsTruthy()))
		case bytecode.OpNot:
			m.push(bytecode.BoolVal(!m.pop().IsTruthy()))

		case bytecode.OpJump:
			m.ip = inst.Target
		case bytecode.OpJumpIfFalse:
			if !m.pop().IsTruthy() {
				m.ip = inst.Target
			}
		case bytecode.OpJumpIfTrue:
			if m.pop().IsTruthy() {
				m.ip = inst.Target
			}

		case bytecode.OpCall:
			fn := m.mod.Funcs[inst.FuncIdx]
			m.frames = append(m.frames, frame{retIP: m.ip, base: len(m.stack) - inst.Argc})
			m.ip = fn.Entry
		case bytecode.OpReturn, bytecode.OpReturnVal:
			var ret bytecode.Val
			if inst.Op == bytecode.OpReturnVal {
				ret = m.pop()
			} else {
				ret = bytecode.NullVal()
			}
			if len(m.frames) == 0 {
				return ret, nil
			}
			fr := m.frames[len(m.frames)-1]
			m.frames = m.frames[:len(m.frames)-1]
			m.stack = m.stack[:fr.base]
			m.push(ret)
			m.ip = fr.retIP

		case bytecode.OpPop:
			m.pop()
		case bytecode.OpDup:
			m.push(m.peek())

		case bytecode.OpNewArray:
			// Allocates n Null-filled slots; the compiler fills them in
			// with a Dup/Int/compile-element/ArraySet/Pop sequence per
			// element rather than pushing all n values ahead of NewArray.
			m.push(bytecode.NewArray(int(inst.Int)))
		case bytecode.OpArrayGet:
			idx, container := m.pop(), m.pop()
			v, err := m.indexGet(container, idx)
			if err != nil {
				return bytecode.Val{}, err
			}
			m.push(v)
		case bytecode.OpArraySet:
			val, idx, container := m.pop(), m.pop(), m.pop()
			if err := m.indexSet(container, idx, val); err != nil {
				return bytecode.Val{}, err
			}
			m.push(container)
		case bytecode.OpArrayLen:
			v := m.pop()
			switch v.Kind {
			case bytecode.VArray:
				m.push(bytecode.IntVal(int64(v.ArrayLen())))
			case bytecode.VStr:
				m.push(bytecode.IntVal(int64(len(v.String()))))
			default:
				return bytecode.Val{}, m.errorf("not an array or string: %s", v.TypeName())
			}

		case bytecode.OpNewObject:
			m.push(bytecode.NewObject())
		case bytecode.OpGetField:
			name := m.mod.Fields[inst.Field]
			obj := m.pop()
			v, err := m.getField(obj, name)
			if err != nil {
				return bytecode.Val{}, err
			}
			m.push(v)
		case bytecode.OpSetField:
			value := m.pop()
			name := m.mod.Fields[inst.Field]
			obj := m.pop()
			if obj.Kind != bytecode.VObj {
				return bytecode.Val{}, m.errorf("cannot set field %q on non-object %s", name, obj.TypeName())
			}
			obj.ObjSet(name, value)
			m.push(obj)

		case bytecode.OpPrint:
			fmt.Fprintln(m.Stdout, m.pop().String())
			m.push(bytecode.NullVal())
		case bytecode.OpPrintInt:
			v := m.pop()
			if v.Kind != bytecode.VInt {
				return bytecode.Val{}, m.errorf("print_int expected int, got %s", v.TypeName())
			}
			fmt.Fprintln(m.Stdout, v.I)
			m.push(bytecode.NullVal())
		case bytecode.OpPrintStr:
			v := m.pop()
			if v.Kind != bytecode.VStr {
				return bytecode.Val{}, m.errorf("print_str expected string, got %s", v.TypeName())
			}
			fmt.Fprintln(m.Stdout, v.String())
			m.push(bytecode.NullVal())

		case bytecode.OpCallNative:
			name := m.mod.Natives[inst.Native]
			fn, ok := m.Natives[name]
			if !ok {
				return bytecode.Val{}, m.errorf("unregistered native function %q", name)
			}
			args := make([]bytecode.Val, inst.Argc)
			for i := inst.Argc - 1; i >= 0; i-- {
				args[i] = m.pop()
			}
			v, err := fn(args)
			if err != nil {
				return bytecode.Val{}, m.errorf("native %q: %s", name, err)
			}
			m.push(v)

		case bytecode.OpInc:
			v := m.pop()
			switch v.Kind {
			case bytecode.VInt:
				m.push(bytecode.IntVal(v.I + 1))
			case bytecode.VFloat:
				m.push(bytecode.FloatVal(v.F + 1))
			default:
				return bytecode.Val{}, m.errorf("cannot increment %s", v.TypeName())
			}
		case bytecode.OpDec:
			v := m.pop()
			switch v.Kind {
			case bytecode.VInt:
				m.push(bytecode.IntVal(v.I - 1))
			case bytecode.VFloat:
				m.push(bytecode.FloatVal(v.F - 1))
			default:
				return bytecode.Val{}, m.errorf("cannot decrement %s", v.TypeName())
			}

		case bytecode.OpHalt:
			if len(m.stack) == 0 {
				return bytecode.NullVal(), nil
			}
			return m.peek(), nil

		default:
			return bytecode.Val{}, m.errorf("unimplemented op %s", inst.Op)
		}
	}
}

func (m *Machine) base() int {
	if len(m.frames) == 0 {
		return 0
	}
	return m.frames[len(m.frames)-1].base
}

func (m *Machine) push(v bytecode.Val) { m.stack = append(m.stack, v) }

func (m *Machine) pop() bytecode.Val {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *Machine) peek() bytecode.Val { return m.stack[len(m.stack)-1] }

// storeLocal implements the compiler's peek-and-store convention:
// StoreLocal never pops, it assigns stack[base+slot] from the current top
// and leaves the top in place for the explicit Pop the compiler always
// pairs it with. When slot addresses the top itself (first-time
// declaration, immediately after evaluating the initializer) or lies
// beyond it, the stack grows to hold the slot, padding any gap with Null,
// and a copy of the value is pushed above it for that Pop to remove.
func (m *Machine) storeLocal(slot int) {
	idx := m.base() + slot
	v := m.peek()
	if idx < len(m.stack)-1 {
		m.stack[idx] = v
		return
	}
	for len(m.stack) <= idx {
		m.stack = append(m.stack, bytecode.NullVal())
	}
	m.stack[idx] = v
	m.stack = append(m.stack, v)
}

func (m *Machine) indexGet(container, idx bytecode.Val) (bytecode.Val, error) {
	switch {
	case container.Kind == bytecode.VArray && idx.Kind == bytecode.VInt:
		if idx.I < 0 || idx.I >= int64(container.ArrayLen()) {
			return bytecode.Val{}, m.errorf("array index %d out of range (len %d)", idx.I, container.ArrayLen())
		}
		return container.ArrayGet(int(idx.I)), nil
	case container.Kind == bytecode.VObj && idx.Kind == bytecode.VStr:
		v, ok := container.ObjGet(idx.String())
		if !ok {
			return bytecode.NullVal(), nil
		}
		return v, nil
	default:
		return bytecode.Val{}, m.errorf("invalid index operation on %s", container.TypeName())
	}
}

func (m *Machine) indexSet(container, idx, val bytecode.Val) error {
	switch {
	case container.Kind == bytecode.VArray && idx.Kind == bytecode.VInt:
		if idx.I < 0 || idx.I >= int64(container.ArrayLen()) {
			return m.errorf("array index %d out of range (len %d)", idx.I, container.ArrayLen())
		}
		container.ArraySet(int(idx.I), val)
		return nil
	case container.Kind == bytecode.VObj && idx.Kind == bytecode.VStr:
		container.ObjSet(idx.String(), val)
		return nil
	default:
		return m.errorf("invalid index assignment on %s", container.TypeName())
	}
}

func (m *Machine) getField(obj bytecode.Val, name string) (bytecode.Val, error) {
	switch {
	case obj.Kind == bytecode.VObj:
		v, ok := obj.ObjGet(name)
		if !ok {
			return bytecode.NullVal(), nil
		}
		return v, nil
	case obj.Kind == bytecode.VArray && name == "length":
		return bytecode.IntVal(int64(obj.ArrayLen())), nil
	case obj.Kind == bytecode.VStr && name == "length":
		return bytecode.IntVal(int64(len(obj.String()))), nil
	default:
		return bytecode.Val{}, m.errorf("cannot get field %q from non-object %s", name, obj.TypeName())
	}
}

func bitop(op bytecode.Op, a, b int64) bytecode.Val {
	switch op {
	case bytecode.OpBitAnd:
		return bytecode.IntVal(a & b)
	case bytecode.OpBitOr:
		return bytecode.IntVal(a | b)
	case bytecode.OpBitXor:
		return bytecode.IntVal(a ^ b)
	case bytecode.OpShl:
		return bytecode.IntVal(a << uint(b))
	default:
		return bytecode.IntVal(a >> uint(b))
	}
}

func ordered(op bytecode.Op, c int) bool {
	switch op {
	case bytecode.OpLt:
		return c < 0
	case bytecode.OpLtEq:
		return c <= 0
	case bytecode.OpGt:
		return c > 0
	default:
		return c >= 0
	}
}
