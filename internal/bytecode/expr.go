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

package bytecode

import "github.com/gorse-io/vetra/internal/ast"

func (c *Compiler) compileExpr(e ast.Expr) error {
	switch ex := e.(type) {
	case ast.IntLit:
		return c.compileIntLit(ex)
	case ast.FloatLit:
		c.mod.emit(Inst{Op: OpConst, ConstID: c.mod.addConst(FloatVal(ex.Value))})
		return nil
	case ast.BoolLit:
		if ex.Value {
			c.mod.emit(Inst{Op: OpTrue})
		} else {
			c.mod.emit(Inst{Op: OpFalse})
		}
		return nil
	case ast.StringLit:
		c.mod.emit(Inst{Op: OpConst, ConstID: c.mod.addConst(StrVal(ex.Value))})
		return nil
	case ast.CharLit:
		c.mod.emit(Inst{Op: OpInt, Int: int64(ex.Value)})
		return nil
	case ast.NullLit:
		c.mod.emit(Inst{Op: OpNull})
		return nil
	case ast.Ident:
		slot, isGlobal, ok := c.resolve(ex.Name)
		if !ok {
			return errUnknownIdent(ex.Pos, ex.Name)
		}
		if isGlobal {
			c.mod.emit(Inst{Op: OpLoadGlobal, Global: slot})
		} else {
			c.mod.emit(Inst{Op: OpLoadLocal, Slot: slot})
		}
		return nil
	case ast.BinaryExpr:
		return c.compileBinary(ex.Op, ex.X, ex.Y)
	case ast.UnaryExpr:
		return c.compileUnary(ex)
	case ast.CompareExpr:
		return c.compileCompare(ex)
	case ast.TernaryExpr:
		return c.compileTernary(ex)
	case ast.FieldAccessExpr:
		return c.compileFieldAccess(ex)
	case ast.SafeNavExpr:
		return c.compileFieldAccess(ast.FieldAccessExpr{Pos: ex.Pos, X: ex.X, Field: ex.Field})
	case ast.IndexExpr:
		if err := c.compileExpr(ex.X); err != nil {
			return err
		}
		if err := c.compileExpr(ex.Index); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpArrayGet})
		return nil
	case ast.TupleAccessExpr:
		if err := c.compileExpr(ex.X); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpGetField, Field: c.mod.fieldIndex(tupleFieldName(ex.Index))})
		return nil
	case ast.CallExpr:
		return c.compileCall(ex)
	case ast.MethodCallExpr:
		return c.compileMethodCall(ex)
	case ast.NewObjectExpr:
		return c.compileNewObject(ex)
	case ast.CastExpr:
		return c.compileExpr(ex.X) // bytecode values are dynamically typed; a cast is a no-op at this level
	case ast.ArrayLitExpr:
		return c.compileArrayLit(ex)
	case ast.TupleLitExpr:
		return c.compileTupleLit(ex)
	case ast.ObjectLitExpr:
		return c.compileObjectLit(ex)
	case ast.NullCoalesceExpr:
		return c.compileNullCoalesce(ex)
	default:
		return errUnsupported(ast.Pos{}, "expression")
	}
}

func tupleFieldName(i int) string {
	return "_" + string(rune('0'+i))
}

func (c *Compiler) compileIntLit(ex ast.IntLit) error {
	if ex.Value <= smallIntThreshold && ex.Value >= -smallIntThreshold {
		c.mod.emit(Inst{Op: OpInt, Int: ex.Value})
		return nil
	}
	c.mod.emit(Inst{Op: OpConst, ConstID: c.mod.addConst(IntVal(ex.Value))})
	return nil
}

var binOpcode = map[string]Op{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
	"&": OpBitAnd, "|": OpBitOr, "^": OpBitXor, "<<": OpShl, ">>": OpShr,
}

func (c *Compiler) compileBinary(op string, x, y ast.Expr) error {
	if op == "&&" || op == "||" {
		return c.compileShortCircuit(op, x, y)
	}
	if err := c.compileExpr(x); err != nil {
		return err
	}
	if err := c.compileExpr(y); err != nil {
		return err
	}
	c.mod.emit(Inst{Op: binOpcode[op]})
	return nil
}

// compileShortCircuit evaluates X, and for && skips Y (leaving X's falsy
// value) when X is already false; for || it skips Y when X is already
// true. Both branches converge on a merge point with the result on top of
// the stack.
func (c *Compiler) compileShortCircuit(op string, x, y ast.Expr) error {
	if err := c.compileExpr(x); err != nil {
		return err
	}
	c.mod.emit(Inst{Op: OpDup})
	var skip int
	if op == "&&" {
		skip = c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
	} else {
		skip = c.mod.emit(Inst{Op: OpJumpIfTrue, Target: 0})
	}
	c.mod.emit(Inst{Op: OpPop})
	if err := c.compileExpr(y); err != nil {
		return err
	}
	c.mod.patch(skip, c.mod.here())
	return nil
}

func (c *Compiler) compileUnary(ex ast.UnaryExpr) error {
	if err := c.compileExpr(ex.X); err != nil {
		return err
	}
	switch ex.Op {
	case "-":
		c.mod.emit(Inst{Op: OpNeg})
	case "!":
		c.mod.emit(Inst{Op: OpNot})
	case "~":
		c.mod.emit(Inst{Op: OpBitNot})
	default:
		// "&"/"*" (address-of/deref) have no bytecode-level representation:
		// values here are never raw addresses, so both are no-ops over the
		// already-compiled operand.
	}
	return nil
}

var cmpOpcode = map[string]Op{
	"==": OpEq, "!=": OpNotEq, "<": OpLt, "<=": OpLtEq, ">": OpGt, ">=": OpGtEq,
}

func (c *Compiler) compileCompare(ex ast.CompareExpr) error {
	if err := c.compileExpr(ex.X); err != nil {
		return err
	}
	if err := c.compileExpr(ex.Y); err != nil {
		return err
	}
	c.mod.emit(Inst{Op: cmpOpcode[ex.Op]})
	return nil
}

func (c *Compiler) compileTernary(ex ast.TernaryExpr) error {
	if err := c.compileExpr(ex.Cond); err != nil {
		return err
	}
	jf := c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
	if err := c.compileExpr(ex.Then); err != nil {
		return err
	}
	jEnd := c.mod.emit(Inst{Op: OpJump, Target: 0})
	c.mod.patch(jf, c.mod.here())
	if err := c.compileExpr(ex.Else); err != nil {
		return err
	}
	c.mod.patch(jEnd, c.mod.here())
	return nil
}

func (c *Compiler) compileFieldAccess(ex ast.FieldAccessExpr) error {
	if err := c.compileExpr(ex.X); err != nil {
		return err
	}
	if ex.Field == "length" {
		c.mod.emit(Inst{Op: OpArrayLen})
		return nil
	}
	c.mod.emit(Inst{Op: OpGetField, Field: c.mod.fieldIndex(ex.Field)})
	return nil
}

// builtinOp names the four calls that stay dedicated bytecode ops instead
// of going through the native-function registry (internal/embed): none of
// them take a module/engine-specific implementation, they're pure stack
// operations the VM already has to special-case for type checking.
var builtinOp = map[string]Op{
	"print": OpPrint, "print_int": OpPrintInt, "print_str": OpPrintStr, "len": OpArrayLen,
}

// mathNatives mirrors original_source's ffi.rs register_builtins list; a
// call to one of these compiles to OpCallNative instead of OpCall, since
// they have no funcIdx entry — they're resolved against internal/embed's
// native registry at run time, not against the module's own function table.
var mathNatives = map[string]bool{
	"sqrt": true, "abs": true, "pow": true, "sin": true, "cos": true, "tan": true,
	"floor": true, "ceil": true, "round": true, "min": true, "max": true,
	"clamp": true, "lerp": true, "random": true, "random_range": true,
}

func (c *Compiler) compileCall(ex ast.CallExpr) error {
	if op, ok := builtinOp[ex.Name]; ok {
		for _, a := range ex.Args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		c.mod.emit(Inst{Op: op})
		return nil
	}
	if idx, ok := c.funcIdx[ex.Name]; ok {
		for _, a := range ex.Args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		c.mod.emit(Inst{Op: OpCall, FuncIdx: idx, Argc: len(ex.Args)})
		return nil
	}
	if mathNatives[ex.Name] {
		for _, a := range ex.Args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		c.mod.emit(Inst{Op: OpCallNative, Native: c.mod.nativeIndex(ex.Name), Argc: len(ex.Args)})
		return nil
	}
	return errUnknownIdent(ex.Pos, ex.Name)
}

func (c *Compiler) compileMethodCall(ex ast.MethodCallExpr) error {
	if err := c.compileExpr(ex.Recv); err != nil {
		return err
	}
	for _, a := range ex.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	qualified := c.class + "." + ex.Method
	idx, ok := c.funcIdx[qualified]
	if !ok {
		idx, ok = c.funcIdx[ex.Method]
	}
	if !ok {
		return errUnknownIdent(ex.Pos, ex.Method)
	}
	c.mod.emit(Inst{Op: OpCall, FuncIdx: idx, Argc: len(ex.Args) + 1})
	return nil
}

func (c *Compiler) compileNewObject(ex ast.NewObjectExpr) error {
	c.mod.emit(Inst{Op: OpNewObject})
	if ctorIdx, ok := c.funcIdx[ex.Class+".new"]; ok {
		// Return truncates the stack to the call frame's base, which would
		// drop the receiver along with the rest of the frame; Dup keeps one
		// copy below the frame so the object survives the constructor call.
		c.mod.emit(Inst{Op: OpDup})
		for _, a := range ex.Args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		c.mod.emit(Inst{Op: OpCall, FuncIdx: ctorIdx, Argc: len(ex.Args) + 1})
		c.mod.emit(Inst{Op: OpPop}) // discard the constructor's return value; the pre-Dup'd object remains
	}
	return nil
}

// compileArrayLit allocates a fixed-size array, then Dup/index/store/Pop
// for every element (ArraySet returns the array, mirroring SetField),
// leaving exactly the original array on top of the stack once all elements
// are set.
func (c *Compiler) compileArrayLit(ex ast.ArrayLitExpr) error {
	c.mod.emit(Inst{Op: OpNewArray, Int: int64(len(ex.Elems))})
	for i, el := range ex.Elems {
		c.mod.emit(Inst{Op: OpDup})
		c.mod.emit(Inst{Op: OpInt, Int: int64(i)})
		if err := c.compileExpr(el); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpArraySet})
		c.mod.emit(Inst{Op: OpPop})
	}
	return nil
}

// compileTupleLit lowers a tuple literal to an object with positional
// field names ("_0", "_1", ...), matching TupleAccessExpr's lowering.
func (c *Compiler) compileTupleLit(ex ast.TupleLitExpr) error {
	c.mod.emit(Inst{Op: OpNewObject})
	for i, el := range ex.Elems {
		c.mod.emit(Inst{Op: OpDup})
		if err := c.compileExpr(el); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpSetField, Field: c.mod.fieldIndex(tupleFieldName(i))})
		c.mod.emit(Inst{Op: OpPop})
	}
	return nil
}

func (c *Compiler) compileObjectLit(ex ast.ObjectLitExpr) error {
	c.mod.emit(Inst{Op: OpNewObject})
	for _, f := range ex.Fields {
		c.mod.emit(Inst{Op: OpDup})
		if err := c.compileExpr(f.Value); err != nil {
			return err
		}
		c.mod.emit(Inst{Op: OpSetField, Field: c.mod.fieldIndex(f.Name)})
		c.mod.emit(Inst{Op: OpPop})
	}
	return nil
}

func (c *Compiler) compileNullCoalesce(ex ast.NullCoalesceExpr) error {
	if err := c.compileExpr(ex.X); err != nil {
		return err
	}
	c.mod.emit(Inst{Op: OpDup})
	c.mod.emit(Inst{Op: OpNull})
	c.mod.emit(Inst{Op: OpNotEq})
	jf := c.mod.emit(Inst{Op: OpJumpIfFalse, Target: 0})
	jEnd := c.mod.emit(Inst{Op: OpJump, Target: 0})
	c.mod.patch(jf, c.mod.here())
	c.mod.emit(Inst{Op: OpPop})
	if err := c.compileExpr(ex.Fallback); err != nil {
		return err
	}
	c.mod.patch(jEnd, c.mod.here())
	return nil
}
