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
	"github.com/gorse-io/vetra/internal/ast"
	"github.com/gorse-io/vetra/internal/ir"
)

// lowerType maps an ast.Type to the IR's narrower type lattice. Inferred
// defaults to I32 per the Open Question decision in SPEC_FULL.md, unless
// the caller already resolved it via inferLitType.
func lowerType(t ast.Type) ir.Type {
	switch t.Kind {
	case ast.TypeI8, ast.TypeU8:
		return ir.TypeI8
	case ast.TypeI16, ast.TypeU16:
		return ir.TypeI16
	case ast.TypeI32, ast.TypeU32:
		return ir.TypeI32
	case ast.TypeI64, ast.TypeU64:
		return ir.TypeI64
	case ast.TypeF32:
		return ir.TypeF32
	case ast.TypeF64:
		return ir.TypeF64
	case ast.TypeBool:
		return ir.TypeBool
	case ast.TypeChar:
		return ir.TypeI32
	case ast.TypeString:
		return ir.PtrTo(ir.TypeI8)
	case ast.TypeVoid:
		return ir.TypeVoid
	case ast.TypePointer, ast.TypeRef:
		elem := lowerType(*t.Elem)
		return ir.PtrTo(elem)
	case ast.TypeArray:
		elem := lowerType(*t.Elem)
		n := t.Len
		if n < 0 {
			n = 0
		}
		return ir.Type{Kind: ir.Array, Elem: &elem, Len: n}
	case ast.TypeTuple, ast.TypeNamed, ast.TypeGenericNamed:
		return ir.Type{Kind: ir.Struct}
	case ast.TypeFunction:
		return ir.PtrTo(ir.TypeVoid)
	case ast.TypeInferred:
		return ir.TypeI32
	case ast.TypeNever:
		return ir.TypeVoid
	default:
		return ir.TypeI32
	}
}

// inferLitType resolves a literal's declared type, defaulting to fallback
// when the literal carries no suffix (ast.TypeInferred).
func inferLitType(declared ast.Type, fallback ir.Type) ir.Type {
	if declared.Kind == ast.TypeInferred {
		return fallback
	}
	return lowerType(declared)
}

func constKindFor(t ir.Type) ir.ConstKind {
	switch t.Kind {
	case ir.I8:
		return ir.CInt8
	case ir.I16:
		return ir.CInt16
	case ir.I32:
		return ir.CInt32
	case ir.I64:
		return ir.CInt64
	case ir.F32:
		return ir.CFloat32
	case ir.F64:
		return ir.CFloat64
	case ir.Bool:
		return ir.CBool
	default:
		return ir.CInt32
	}
}
