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

package irbuild

import (
	"strings"

	"github.com/gorse-io/vetra/internal/ast"
	"github.com/gorse-io/vetra/internal/ir"
)

// buildExpr lowers an expression and discards its static type, for callers
// (conditions, statement-expressions) that only need the value.
func (b *Builder) buildExpr(e ast.Expr) (ir.Value, error) {
	v, _, err := b.buildExprTyped(e)
	return v, err
}

func (b *Builder) buildExprTyped(e ast.Expr) (ir.Value, ir.Type, error) {
	switch ex := e.(type) {
	case ast.IntLit:
		ty := inferLitType(ex.Type, ir.TypeI32)
		return ir.ConstVal(ir.IntConst(constKindFor(ty), ex.Value)), ty, nil
	case ast.FloatLit:
		ty := inferLitType(ex.Type, ir.TypeF64)
		return ir.ConstVal(ir.FloatConst(constKindFor(ty), ex.Value)), ty, nil
	case ast.BoolLit:
		return ir.ConstVal(ir.BoolConst(ex.Value)), ir.TypeBool, nil
	case ast.StringLit:
		b.prog.InternString(ex.Value)
		return ir.ConstVal(ir.StringConst(ex.Value)), ir.PtrTo(ir.TypeI8), nil
	case ast.CharLit:
		return ir.ConstVal(ir.IntConst(ir.CInt32, int64(ex.Value))), ir.TypeI32, nil
	case ast.NullLit:
		return ir.ConstVal(ir.NullConst()), ir.PtrTo(ir.TypeVoid), nil
	case ast.Ident:
		return b.buildIdent(ex)
	case ast.UnaryExpr:
		return b.buildUnary(ex)
	case ast.BinaryExpr:
		return b.buildBinary(ex)
	case ast.CompareExpr:
		return b.buildCompare(ex)
	case ast.TernaryExpr:
		return b.buildTernary(ex)
	case ast.FieldAccessExpr:
		return b.buildFieldAccess(ex)
	case ast.IndexExpr:
		return b.buildIndex(ex)
	case ast.TupleAccessExpr:
		return b.buildTupleAccess(ex)
	case ast.CallExpr:
		return b.buildCall(ex)
	case ast.MethodCallExpr:
		return b.buildMethodCall(ex)
	case ast.NewObjectExpr:
		return b.buildNewObject(ex)
	case ast.CastExpr:
		return b.buildCast(ex)
	case ast.SizeofExpr:
		ty := lowerType(ex.Of)
		return ir.ConstVal(ir.IntConst(ir.CInt64, int64(ty.SizeBytes()))), ir.TypeI64, nil
	case ast.ArrayLitExpr:
		return b.buildArrayLit(ex)
	case ast.TupleLitExpr:
		return b.buildTupleLit(ex)
	case ast.ObjectLitExpr:
		return b.buildObjectLit(ex)
	case ast.NullCoalesceExpr:
		return b.buildNullCoalesce(ex)
	case ast.SafeNavExpr:
		return b.buildSafeNav(ex)
	case ast.RangeExpr:
		return ir.Undef(), ir.TypeI32, nil // ranges are consumed structurally by foreach/match, never as values
	case ast.LambdaExpr:
		return ir.Undef(), ir.PtrTo(ir.TypeVoid), errUnsupported(ex.Pos, "lambda expression (no closures in the IR model)")
	default:
		return ir.Value{}, ir.Type{}, errUnsupported(ast.Pos{}, "expression")
	}
}

func (b *Builder) buildIdent(ex ast.Ident) (ir.Value, ir.Type, error) {
	entry, ok := b.lookup(ex.Name)
	if !ok {
		// Fall through to a class-qualified static field / global lookup
		// before giving up, matching the class-context call resolution
		// rule used for method calls.
		if b.class != "" {
			if g, ok := b.prog.Global(b.class + "." + ex.Name); ok {
				reg := b.newReg()
				b.emit(ir.Instruction{Op: ir.OpLoad, Dst: reg, Ty: g.Type, Addr: ir.GlobalVal(g.Name)})
				return ir.Reg(reg), g.Type, nil
			}
		}
		return ir.Value{}, ir.Type{}, errUnknownIdent(ex.Pos, ex.Name)
	}
	if entry.Addr.Kind == ir.ValueArgument {
		return entry.Addr, entry.Type, nil
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: reg, Ty: entry.Type, Addr: entry.Addr})
	return ir.Reg(reg), entry.Type, nil
}

func (b *Builder) buildUnary(ex ast.UnaryExpr) (ir.Value, ir.Type, error) {
	x, ty, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	reg := b.newReg()
	switch ex.Op {
	case "-":
		b.emit(ir.Instruction{Op: ir.OpNeg, Dst: reg, Ty: ty, X: x})
	case "!":
		b.emit(ir.Instruction{Op: ir.OpNot, Dst: reg, Ty: ir.TypeBool, X: x})
	case "~":
		b.emit(ir.Instruction{Op: ir.OpNot, Dst: reg, Ty: ty, X: x})
	case "&", "*":
		// Address-of/deref are handled at l-value sites (assignment,
		// FieldAccess, Index); as a pure r-value they degrade to the
		// operand itself.
		return x, ty, nil
	default:
		return ir.Value{}, ir.Type{}, errUnsupported(ex.Pos, "unary operator "+ex.Op)
	}
	return ir.Reg(reg), ty, nil
}

// isStringValued reports whether e is a string literal or a local bound to
// a string (i8 pointer) type; buildBinary lowers `a + b` with such an
// operand through buildStringConcat, a call to the string_concat_int
// runtime intrinsic.
func (b *Builder) isStringValued(e ast.Expr) bool {
	switch v := e.(type) {
	case ast.StringLit:
		return true
	case ast.Ident:
		entry, ok := b.lookup(v.Name)
		return ok && entry.Type.Kind == ir.Ptr && entry.Type.Elem != nil && entry.Type.Elem.Kind == ir.I8
	default:
		return false
	}
}

func (b *Builder) buildBinary(ex ast.BinaryExpr) (ir.Value, ir.Type, error) {
	if ex.Op == "&&" || ex.Op == "||" {
		return b.buildShortCircuit(ex)
	}
	if ex.Op == "+" && (b.isStringValued(ex.X) || b.isStringValued(ex.Y)) {
		return b.buildStringConcat(ex)
	}
	x, ty, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	y, _, err := b.buildExprTyped(ex.Y)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	op, err := binOp(ex.Op, ex.Pos)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: op, Dst: reg, Ty: ty, X: x, Y: y})
	return ir.Reg(reg), ty, nil
}

func (b *Builder) buildStringConcat(ex ast.BinaryExpr) (ir.Value, ir.Type, error) {
	x, _, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	y, _, err := b.buildExprTyped(ex.Y)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	strTy := ir.PtrTo(ir.TypeI8)
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpIntrinsic, Dst: reg, Ty: strTy, Intrinsic: "string_concat_int", Args: []ir.Value{x, y}})
	return ir.Reg(reg), strTy, nil
}

func binOp(op string, pos ast.Pos) (ir.Op, error) {
	switch op {
	case "+":
		return ir.OpAdd, nil
	case "-":
		return ir.OpSub, nil
	case "*":
		return ir.OpMul, nil
	case "/":
		return ir.OpDiv, nil
	case "%":
		return ir.OpMod, nil
	case "&":
		return ir.OpAnd, nil
	case "|":
		return ir.OpOr, nil
	case "^":
		return ir.OpXor, nil
	case "<<":
		return ir.OpShl, nil
	case ">>":
		return ir.OpShr, nil
	default:
		return 0, errUnsupported(pos, "binary operator "+op)
	}
}

// buildShortCircuit lowers && / || with explicit control flow so the right
// operand is evaluated only when observable.
func (b *Builder) buildShortCircuit(ex ast.BinaryExpr) (ir.Value, ir.Type, error) {
	slot := b.fn.NewLocal()
	addr := ir.LocalVal(slot)

	x, err := b.buildExpr(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	rhsBlock := b.fn.NewBlock()
	shortBlock := b.fn.NewBlock()
	merge := b.fn.NewBlock()

	if ex.Op == "&&" {
		b.condBranch(x, rhsBlock, shortBlock)
	} else {
		b.condBranch(x, shortBlock, rhsBlock)
	}

	b.switchTo(shortBlock)
	shortVal := ir.ConstVal(ir.BoolConst(ex.Op == "||"))
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: shortVal, Addr: addr, Ty: ir.TypeBool})
	b.branchTo(merge)

	b.switchTo(rhsBlock)
	y, err := b.buildExpr(ex.Y)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: y, Addr: addr, Ty: ir.TypeBool})
	b.branchTo(merge)

	b.switchTo(merge)
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: reg, Ty: ir.TypeBool, Addr: addr})
	return ir.Reg(reg), ir.TypeBool, nil
}

func (b *Builder) buildCompare(ex ast.CompareExpr) (ir.Value, ir.Type, error) {
	x, ty, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	y, _, err := b.buildExprTyped(ex.Y)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	_ = ty
	var op ir.Op
	switch ex.Op {
	case "==":
		op = ir.OpCmpEq
	case "!=":
		op = ir.OpCmpNe
	case "<":
		op = ir.OpCmpLt
	case "<=":
		op = ir.OpCmpLe
	case ">":
		op = ir.OpCmpGt
	case ">=":
		op = ir.OpCmpGe
	default:
		return ir.Value{}, ir.Type{}, errUnsupported(ex.Pos, "comparison operator "+ex.Op)
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: op, Dst: reg, Ty: ir.TypeBool, X: x, Y: y})
	return ir.Reg(reg), ir.TypeBool, nil
}

func (b *Builder) buildTernary(ex ast.TernaryExpr) (ir.Value, ir.Type, error) {
	slot := b.fn.NewLocal()
	addr := ir.LocalVal(slot)

	cond, err := b.buildExpr(ex.Cond)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	thenB := b.fn.NewBlock()
	elseB := b.fn.NewBlock()
	merge := b.fn.NewBlock()
	b.condBranch(cond, thenB, elseB)

	b.switchTo(thenB)
	tv, ty, err := b.buildExprTyped(ex.Then)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: tv, Addr: addr, Ty: ty})
	b.branchTo(merge)

	b.switchTo(elseB)
	ev, _, err := b.buildExprTyped(ex.Else)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: ev, Addr: addr, Ty: ty})
	b.branchTo(merge)

	b.switchTo(merge)
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: reg, Ty: ty, Addr: addr})
	return ir.Reg(reg), ty, nil
}

func (b *Builder) buildFieldAccess(ex ast.FieldAccessExpr) (ir.Value, ir.Type, error) {
	addr, fieldTy, err := b.fieldAddr(ex)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: reg, Ty: fieldTy, Addr: addr})
	return ir.Reg(reg), fieldTy, nil
}

// fieldAddr computes the address a field access or its assignment target
// resolves to: base pointer GEP'd by the field's static struct index. The
// field layout table is looked up lazily since struct/class declarations
// don't themselves emit IR (SPEC_FULL.md keeps type declarations as pure
// compile-time metadata).
func (b *Builder) fieldAddr(ex ast.FieldAccessExpr) (ir.Value, ir.Type, error) {
	base, _, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	// Without a full struct-layout pass, field type defaults to I32; the
	// well-known virtual fields get their natural type.
	fieldTy := ir.TypeI32
	if ex.Field == "length" {
		fieldTy = ir.TypeI32
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpGEP, Dst: reg, Ty: ir.PtrTo(fieldTy), Addr: base, Indices: []int{fieldIndex(ex.Field)}})
	return ir.Reg(reg), fieldTy, nil
}

var fieldOrder []string

// fieldIndex assigns stable small integer indices to field names in first-
// seen order, since the AST carries field names, not positions.
func fieldIndex(name string) int {
	for i, n := range fieldOrder {
		if n == name {
			return i
		}
	}
	fieldOrder = append(fieldOrder, name)
	return len(fieldOrder) - 1
}

func (b *Builder) buildIndex(ex ast.IndexExpr) (ir.Value, ir.Type, error) {
	base, baseTy, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	idx, _, err := b.buildExprTyped(ex.Index)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	elemTy := ir.TypeI32
	if baseTy.Elem != nil {
		elemTy = *baseTy.Elem
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpGEP, Dst: reg, Ty: ir.PtrTo(elemTy), Addr: base, X: idx})
	valReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: valReg, Ty: elemTy, Addr: ir.Reg(reg)})
	return ir.Reg(valReg), elemTy, nil
}

func (b *Builder) buildTupleAccess(ex ast.TupleAccessExpr) (ir.Value, ir.Type, error) {
	base, _, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpGEP, Dst: reg, Ty: ir.PtrTo(ir.TypeI32), Addr: base, Indices: []int{ex.Index}})
	valReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: valReg, Ty: ir.TypeI32, Addr: ir.Reg(reg)})
	return ir.Reg(valReg), ir.TypeI32, nil
}

// resolveCallee implements the dotted-name / class-context qualification
// rule: dotted names resolve to Namespace.Class.method, and simple
// identifier calls inside a class context prefer the class-qualified name
// if such a function was defined.
func (b *Builder) resolveCallee(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	if b.class != "" {
		qualified := b.class + "." + name
		if _, ok := b.prog.Function(qualified); ok {
			return qualified
		}
	}
	return name
}

func (b *Builder) buildCall(ex ast.CallExpr) (ir.Value, ir.Type, error) {
	args := make([]ir.Value, len(ex.Args))
	for i, a := range ex.Args {
		v, err := b.buildExpr(a)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		args[i] = v
	}
	if sym, _, ok := b.reg.Lookup(ex.Name); ok {
		reg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpIntrinsic, Dst: reg, Ty: sym.Return, Intrinsic: sym.Name, Args: args})
		if sym.Return.Kind == ir.Void {
			return ir.Undef(), ir.TypeVoid, nil
		}
		return ir.Reg(reg), sym.Return, nil
	}
	callee := b.resolveCallee(ex.Name)
	fn, ok := b.prog.Function(callee)
	ret := ir.TypeI32
	if ok {
		ret = fn.ReturnType
	}
	if ret.Kind == ir.Void {
		b.emit(ir.Instruction{Op: ir.OpCall, Dst: -1, Ty: ret, Callee: callee, Args: args})
		return ir.Undef(), ir.TypeVoid, nil
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpCall, Dst: reg, Ty: ret, Callee: callee, Args: args})
	return ir.Reg(reg), ret, nil
}

func (b *Builder) buildMethodCall(ex ast.MethodCallExpr) (ir.Value, ir.Type, error) {
	recv, _, err := b.buildExprTyped(ex.Recv)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	args := make([]ir.Value, 0, len(ex.Args)+1)
	args = append(args, recv)
	for _, a := range ex.Args {
		v, err := b.buildExpr(a)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		args = append(args, v)
	}
	callee := b.qualifyMethod(ex.Recv, ex.Method)
	fn, ok := b.prog.Function(callee)
	ret := ir.TypeI32
	if ok {
		ret = fn.ReturnType
	}
	if ret.Kind == ir.Void {
		b.emit(ir.Instruction{Op: ir.OpCall, Dst: -1, Ty: ret, Callee: callee, Args: args})
		return ir.Undef(), ir.TypeVoid, nil
	}
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpCall, Dst: reg, Ty: ret, Callee: callee, Args: args})
	return ir.Reg(reg), ret, nil
}

// qualifyMethod resolves o.method(...) to o.method when o is an identifier
// that is not a bound local (a class or namespace name), otherwise to
// CurrentClass.method inside a class context (covers `self.method()`-style
// calls), else to the bare method name. The receiver's type is not used.
func (b *Builder) qualifyMethod(recv ast.Expr, method string) string {
	if id, ok := recv.(ast.Ident); ok {
		if _, isLocal := b.lookup(id.Name); !isLocal {
			return id.Name + "." + method
		}
	}
	if b.class != "" {
		return b.class + "." + method
	}
	return method
}

func (b *Builder) buildNewObject(ex ast.NewObjectExpr) (ir.Value, ir.Type, error) {
	args := make([]ir.Value, len(ex.Args))
	for i, a := range ex.Args {
		v, err := b.buildExpr(a)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		args[i] = v
	}
	ty := ir.PtrTo(ir.Type{Kind: ir.Struct})
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpIntrinsic, Dst: reg, Ty: ty, Intrinsic: "runtime.alloc_object", Args: args})
	ctor := ex.Class + ".new"
	if _, ok := b.prog.Function(ctor); ok {
		ctorArgs := append([]ir.Value{ir.Reg(reg)}, args...)
		b.emit(ir.Instruction{Op: ir.OpCall, Dst: -1, Ty: ir.TypeVoid, Callee: ctor, Args: ctorArgs})
	}
	return ir.Reg(reg), ty, nil
}

func (b *Builder) buildCast(ex ast.CastExpr) (ir.Value, ir.Type, error) {
	x, _, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	ty := lowerType(ex.To)
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpCast, Dst: reg, Ty: ty, X: x})
	return ir.Reg(reg), ty, nil
}

func (b *Builder) buildArrayLit(ex ast.ArrayLitExpr) (ir.Value, ir.Type, error) {
	elemTy := ir.TypeI32
	vals := make([]ir.Value, len(ex.Elems))
	for i, el := range ex.Elems {
		v, ty, err := b.buildExprTyped(el)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		vals[i] = v
		elemTy = ty
	}
	arrTy := ir.Type{Kind: ir.Array, Elem: &elemTy, Len: len(ex.Elems)}
	slot := b.fn.NewLocal()
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpAlloca, Dst: reg, Ty: arrTy, Addr: ir.LocalVal(slot)})
	base := ir.Reg(reg)
	for i, v := range vals {
		addrReg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpGEP, Dst: addrReg, Ty: ir.PtrTo(elemTy), Addr: base, X: ir.ConstVal(ir.IntConst(ir.CInt32, int64(i)))})
		b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: v, Addr: ir.Reg(addrReg), Ty: elemTy})
	}
	return base, arrTy, nil
}

func (b *Builder) buildTupleLit(ex ast.TupleLitExpr) (ir.Value, ir.Type, error) {
	slot := b.fn.NewLocal()
	reg := b.newReg()
	ty := ir.Type{Kind: ir.Struct}
	b.emit(ir.Instruction{Op: ir.OpAlloca, Dst: reg, Ty: ty, Addr: ir.LocalVal(slot)})
	base := ir.Reg(reg)
	for i, el := range ex.Elems {
		v, elTy, err := b.buildExprTyped(el)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		addrReg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpGEP, Dst: addrReg, Ty: ir.PtrTo(elTy), Addr: base, Indices: []int{i}})
		b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: v, Addr: ir.Reg(addrReg), Ty: elTy})
	}
	return base, ty, nil
}

func (b *Builder) buildObjectLit(ex ast.ObjectLitExpr) (ir.Value, ir.Type, error) {
	reg := b.newReg()
	ty := ir.PtrTo(ir.Type{Kind: ir.Struct})
	b.emit(ir.Instruction{Op: ir.OpIntrinsic, Dst: reg, Ty: ty, Intrinsic: "runtime.alloc_object"})
	base := ir.Reg(reg)
	for _, f := range ex.Fields {
		v, fTy, err := b.buildExprTyped(f.Value)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		addrReg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpGEP, Dst: addrReg, Ty: ir.PtrTo(fTy), Addr: base, Indices: []int{fieldIndex(f.Name)}})
		b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: v, Addr: ir.Reg(addrReg), Ty: fTy})
	}
	return base, ty, nil
}

func (b *Builder) buildNullCoalesce(ex ast.NullCoalesceExpr) (ir.Value, ir.Type, error) {
	slot := b.fn.NewLocal()
	addr := ir.LocalVal(slot)
	x, ty, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	isNull := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpCmpEq, Dst: isNull, Ty: ir.TypeBool, X: x, Y: ir.ConstVal(ir.NullConst())})
	fallbackB := b.fn.NewBlock()
	keepB := b.fn.NewBlock()
	merge := b.fn.NewBlock()
	b.condBranch(ir.Reg(isNull), fallbackB, keepB)

	b.switchTo(keepB)
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: x, Addr: addr, Ty: ty})
	b.branchTo(merge)

	b.switchTo(fallbackB)
	fv, _, err := b.buildExprTyped(ex.Fallback)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: fv, Addr: addr, Ty: ty})
	b.branchTo(merge)

	b.switchTo(merge)
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: reg, Ty: ty, Addr: addr})
	return ir.Reg(reg), ty, nil
}

// lvalueAddr resolves an assignment target to its address and static type.
// Only Ident/FieldAccess/Index/TupleAccess targets are addressable; anything
// else is rejected by errInvalidAssignTarget.
func (b *Builder) lvalueAddr(e ast.Expr) (ir.Value, ir.Type, error) {
	switch t := e.(type) {
	case ast.Ident:
		entry, ok := b.lookup(t.Name)
		if !ok {
			return ir.Value{}, ir.Type{}, errUnknownIdent(t.Pos, t.Name)
		}
		return entry.Addr, entry.Type, nil
	case ast.FieldAccessExpr:
		return b.fieldAddr(t)
	case ast.IndexExpr:
		base, baseTy, err := b.buildExprTyped(t.X)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		idx, _, err := b.buildExprTyped(t.Index)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		elemTy := ir.TypeI32
		if baseTy.Elem != nil {
			elemTy = *baseTy.Elem
		}
		reg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpGEP, Dst: reg, Ty: ir.PtrTo(elemTy), Addr: base, X: idx})
		return ir.Reg(reg), elemTy, nil
	case ast.TupleAccessExpr:
		base, _, err := b.buildExprTyped(t.X)
		if err != nil {
			return ir.Value{}, ir.Type{}, err
		}
		reg := b.newReg()
		b.emit(ir.Instruction{Op: ir.OpGEP, Dst: reg, Ty: ir.PtrTo(ir.TypeI32), Addr: base, Indices: []int{t.Index}})
		return ir.Reg(reg), ir.TypeI32, nil
	default:
		return ir.Value{}, ir.Type{}, errInvalidAssignTarget(ast.Pos{})
	}
}

// buildAssign lowers plain and compound assignment. Compound ops (+=, -=,
// ...) load the current value, apply the corresponding binary op, and store
// the result back, matching the pattern the bytecode compiler's field-write
// shape also uses.
func (b *Builder) buildAssign(st ast.AssignStmt) error {
	addr, ty, err := b.lvalueAddr(st.Target)
	if err != nil {
		return err
	}
	rhs, _, err := b.buildExprTyped(st.Value)
	if err != nil {
		return err
	}
	if st.Op == "=" {
		b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: rhs, Addr: addr, Ty: ty})
		return nil
	}
	compoundOp := strings.TrimSuffix(st.Op, "=")
	op, err := binOp(compoundOp, st.Pos)
	if err != nil {
		return err
	}
	curReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: curReg, Ty: ty, Addr: addr})
	newReg := b.newReg()
	b.emit(ir.Instruction{Op: op, Dst: newReg, Ty: ty, X: ir.Reg(curReg), Y: rhs})
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: ir.Reg(newReg), Addr: addr, Ty: ty})
	return nil
}

func (b *Builder) buildSafeNav(ex ast.SafeNavExpr) (ir.Value, ir.Type, error) {
	slot := b.fn.NewLocal()
	addr := ir.LocalVal(slot)
	x, _, err := b.buildExprTyped(ex.X)
	if err != nil {
		return ir.Value{}, ir.Type{}, err
	}
	fieldTy := ir.TypeI32
	isNull := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpCmpEq, Dst: isNull, Ty: ir.TypeBool, X: x, Y: ir.ConstVal(ir.NullConst())})
	nullB := b.fn.NewBlock()
	loadB := b.fn.NewBlock()
	merge := b.fn.NewBlock()
	b.condBranch(ir.Reg(isNull), nullB, loadB)

	b.switchTo(nullB)
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: ir.ConstVal(ir.NullConst()), Addr: addr, Ty: fieldTy})
	b.branchTo(merge)

	b.switchTo(loadB)
	fieldReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpGEP, Dst: fieldReg, Ty: ir.PtrTo(fieldTy), Addr: x, Indices: []int{fieldIndex(ex.Field)}})
	valReg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: valReg, Ty: fieldTy, Addr: ir.Reg(fieldReg)})
	b.emit(ir.Instruction{Op: ir.OpStore, Dst: -1, X: ir.Reg(valReg), Addr: addr, Ty: fieldTy})
	b.branchTo(merge)

	b.switchTo(merge)
	reg := b.newReg()
	b.emit(ir.Instruction{Op: ir.OpLoad, Dst: reg, Ty: fieldTy, Addr: addr})
	return ir.Reg(reg), fieldTy, nil
}
