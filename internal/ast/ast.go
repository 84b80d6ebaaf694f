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

// Package ast is the language-agnostic tree the front end hands to the IR
// builder. Name resolution is lexical, innermost scope wins; namespaces
// contribute dotted prefixes and class methods are emitted under
// "ClassName.methodName".
package ast

// Pos is a source position, carried through for diagnostics only; the core
// does not use it for anything besides error messages.
type Pos struct {
	Line   int
	Column int
	File   string
}

// Type is a tagged variant over the source language's type system. Equality
// is structural: two Types are equal iff their Kind and all substructure
// match.
type Type struct {
	Kind     TypeKind
	Elem     *Type    // Pointer, Ref, Array element type
	Mutable  bool     // Ref mutability
	Len      int      // Array fixed length, -1 if dynamic
	Elems    []Type   // Tuple member types
	Name     string   // Named, GenericNamed
	Args     []Type   // GenericNamed type arguments
	Params   []Type   // Function parameter types
	Result   *Type    // Function return type
}

type TypeKind int

const (
	TypeI8 TypeKind = iota
	TypeI16
	TypeI32
	TypeI64
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeF32
	TypeF64
	TypeBool
	TypeChar
	TypeString
	TypeVoid
	TypePointer
	TypeRef
	TypeArray
	TypeTuple
	TypeNamed
	TypeGenericNamed
	TypeFunction
	TypeInferred
	TypeNever
)

// Equal reports structural equality between two types.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TypePointer, TypeRef:
		if t.Kind == TypeRef && t.Mutable != o.Mutable {
			return false
		}
		return t.Elem.Equal(*o.Elem)
	case TypeArray:
		if t.Len != o.Len {
			return false
		}
		return t.Elem.Equal(*o.Elem)
	case TypeTuple:
		if len(t.Elems) != len(o.Elems) {
			return false
		}
		for i := range t.Elems {
			if !t.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	case TypeNamed:
		return t.Name == o.Name
	case TypeGenericNamed:
		if t.Name != o.Name || len(t.Args) != len(o.Args) {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(o.Args[i]) {
				return false
			}
		}
		return true
	case TypeFunction:
		if len(t.Params) != len(o.Params) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return t.Result.Equal(*o.Result)
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.Kind {
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeU8:
		return "u8"
	case TypeU16:
		return "u16"
	case TypeU32:
		return "u32"
	case TypeU64:
		return "u64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeChar:
		return "char"
	case TypeString:
		return "string"
	case TypeVoid:
		return "void"
	case TypePointer:
		return "*" + t.Elem.String()
	case TypeRef:
		if t.Mutable {
			return "&mut " + t.Elem.String()
		}
		return "&" + t.Elem.String()
	case TypeArray:
		return "[" + t.Elem.String() + "]"
	case TypeTuple:
		return "(tuple)"
	case TypeNamed:
		return t.Name
	case TypeGenericNamed:
		return t.Name + "<...>"
	case TypeFunction:
		return "fn(...)"
	case TypeInferred:
		return "auto"
	case TypeNever:
		return "never"
	default:
		return "?"
	}
}

// Program is the root of a parsed translation unit: an ordered list of
// top-level declarations.
type Program struct {
	TopLevels []TopLevel
}

// TopLevel is a tagged variant over top-level declarations.
type TopLevel interface{ topLevel() }

type FunctionDecl struct {
	Pos        Pos
	Name       string
	Params     []Param
	ReturnType Type
	Body       []Stmt
	Attrs      FunctionAttrs
}

type FunctionAttrs struct {
	Inline     string // "", "hint", "always", "never"
	Pure       bool
	Const      bool
	Hot        bool
	Cold       bool
}

type Param struct {
	Name string
	Type Type
}

type ClassField struct {
	Name    string
	Type    Type
	Static  bool
	Access  string
}

type ClassDecl struct {
	Pos         Pos
	Name        string
	Fields      []ClassField
	Methods     []FunctionDecl
	Constructor *FunctionDecl
	Destructor  *FunctionDecl
}

type StructDecl struct {
	Pos    Pos
	Name   string
	Fields []ClassField
}

type EnumVariant struct {
	Name    string
	Payload []Type // empty if the variant carries no payload
}

type EnumDecl struct {
	Pos      Pos
	Name     string
	Variants []EnumVariant
}

type TraitDecl struct {
	Pos     Pos
	Name    string
	Methods []FunctionDecl
}

type ImplDecl struct {
	Pos     Pos
	Trait   string
	Target  string
	Methods []FunctionDecl
}

type TypeAliasDecl struct {
	Pos  Pos
	Name string
	Type Type
}

type NamespaceDecl struct {
	Pos       Pos
	Name      string
	TopLevels []TopLevel
}

type ConstDecl struct {
	Pos   Pos
	Name  string
	Type  Type
	Value Expr
}

func (FunctionDecl) topLevel()  {}
func (ClassDecl) topLevel()     {}
func (StructDecl) topLevel()    {}
func (EnumDecl) topLevel()      {}
func (TraitDecl) topLevel()     {}
func (ImplDecl) topLevel()      {}
func (TypeAliasDecl) topLevel() {}
func (NamespaceDecl) topLevel() {}
func (ConstDecl) topLevel()     {}
