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

import "fmt"

// ValKind tags a Val's variant.
type ValKind int

const (
	VInt ValKind = iota
	VFloat
	VBool
	VStr
	VArray
	VObj
	VFn
	VNull
)

// sharedArray/sharedObj give Array and Obj interior-mutable,
// reference-counted-by-sharing semantics: copying a Val copies the pointer,
// not the backing storage, so two Vals referring to the same array observe
// each other's mutations. Cyclic graphs (an array containing itself,
// transitively) are never collected — an accepted leak.
type sharedArray struct{ elems []Val }
type sharedObj struct{ fields map[string]Val }

// Val is the VM and embedding layer's runtime value. Heap variants (Str,
// Array, Obj) hold a pointer so assignment shares rather than copies.
type Val struct {
	Kind ValKind
	I    int64
	F    float64
	B    bool
	S    *string
	Arr  *sharedArray
	Obj  *sharedObj
	FnID int
}

func IntVal(v int64) Val     { return Val{Kind: VInt, I: v} }
func FloatVal(v float64) Val { return Val{Kind: VFloat, F: v} }
func BoolVal(v bool) Val     { return Val{Kind: VBool, B: v} }
func StrVal(v string) Val    { return Val{Kind: VStr, S: &v} }
func FnVal(idx int) Val      { return Val{Kind: VFn, FnID: idx} }
func NullVal() Val           { return Val{Kind: VNull} }

func NewArray(n int) Val {
	return Val{Kind: VArray, Arr: &sharedArray{elems: make([]Val, n)}}
}

func NewObject() Val {
	return Val{Kind: VObj, Obj: &sharedObj{fields: map[string]Val{}}}
}

// ArrayLen, ArrayGet, and ArraySet assume Kind == VArray; callers (the VM's
// dispatch loop) check that themselves so they can raise a RuntimeError with
// their own ip/message framing instead of a panic.
func (v Val) ArrayLen() int         { return len(v.Arr.elems) }
func (v Val) ArrayGet(i int) Val    { return v.Arr.elems[i] }
func (v Val) ArraySet(i int, x Val) { v.Arr.elems[i] = x }

// ObjGet and ObjSet assume Kind == VObj, same convention as the Array
// accessors above.
func (v Val) ObjGet(key string) (Val, bool) {
	x, ok := v.Obj.fields[key]
	return x, ok
}

func (v Val) ObjSet(key string, x Val) {
	v.Obj.fields[key] = x
}

func (v Val) IsTruthy() bool {
	switch v.Kind {
	case VBool:
		return v.B
	case VNull:
		return false
	case VInt:
		return v.I != 0
	case VFloat:
		return v.F != 0
	default:
		return true
	}
}

func (v Val) String() string {
	switch v.Kind {
	case VInt:
		return fmt.Sprintf("%d", v.I)
	case VFloat:
		return fmt.Sprintf("%g", v.F)
	case VBool:
		return fmt.Sprintf("%t", v.B)
	case VStr:
		if v.S == nil {
			return ""
		}
		return *v.S
	case VArray:
		return fmt.Sprintf("array[%d]", len(v.Arr.elems))
	case VObj:
		return "object"
	case VFn:
		return fmt.Sprintf("fn#%d", v.FnID)
	default:
		return "null"
	}
}

// TypeName names a Val's kind for runtime error messages.
func (v Val) TypeName() string {
	switch v.Kind {
	case VInt:
		return "int"
	case VFloat:
		return "float"
	case VBool:
		return "bool"
	case VStr:
		return "string"
	case VArray:
		return "array"
	case VObj:
		return "object"
	case VFn:
		return "function"
	default:
		return "null"
	}
}
