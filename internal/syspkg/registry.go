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

// Package syspkg is the declarative registry of runtime-provided symbols:
// Console/Math/String/IO/Memory packages the IR builder consults instead
// of hardcoding call-target names inline. Entries
// are grouped by package so a dotted call like Console.print resolves to
// one table lookup; the intrinsic name it carries is what
// internal/codegen/x86 ultimately emits a call to.
package syspkg

import "github.com/gorse-io/vetra/internal/ir"

// Symbol describes one runtime-provided function: its IR parameter/return
// types, and whether the optimizer may treat it as pure or always inline
// it away (neither applies to anything with observable side effects, i.e.
// most of this table).
type Symbol struct {
	Name        string
	Params      []ir.Type
	Return      ir.Type
	Pure        bool
	IsIntrinsic bool
	Inline      ir.InlineHint
}

// Registry maps PackageName.MethodName to its Symbol. It is populated with
// the default runtime surface by New and can be extended at runtime via
// Register, which user hosts embedding the toolchain use to expose
// additional native packages without touching this file.
type Registry struct {
	pkgs map[string]map[string]Symbol
}

// New builds the registry pre-populated with Console, Math, String, IO and
// Memory, covering every symbol name the emitted assembly's runtime support
// object must provide (see the runtime-symbol list this table is grounded
// on).
func New() *Registry {
	r := &Registry{pkgs: map[string]map[string]Symbol{}}
	r.registerConsole()
	r.registerMath()
	r.registerString()
	r.registerIO()
	r.registerMemory()
	return r
}

// Register adds or overwrites one package's symbol table, letting an
// embedding host register a custom system package at startup.
func (r *Registry) Register(pkg string, syms map[string]Symbol) {
	if r.pkgs[pkg] == nil {
		r.pkgs[pkg] = map[string]Symbol{}
	}
	for name, s := range syms {
		r.pkgs[pkg][name] = s
	}
}

// Lookup resolves a bare call name against every registered package in
// turn (covers `print_int(x)`-style direct calls to a runtime symbol
// without a package qualifier) and returns the matching Symbol along with
// the package it was found under.
func (r *Registry) Lookup(name string) (Symbol, string, bool) {
	for pkg, syms := range r.pkgs {
		if s, ok := syms[name]; ok {
			return s, pkg, true
		}
	}
	return Symbol{}, "", false
}

// LookupQualified resolves Package.Method directly, used for dotted calls
// like Console.print(x).
func (r *Registry) LookupQualified(pkg, name string) (Symbol, bool) {
	syms, ok := r.pkgs[pkg]
	if !ok {
		return Symbol{}, false
	}
	s, ok := syms[name]
	return s, ok
}

func sym(name string, ret ir.Type, params ...ir.Type) Symbol {
	return Symbol{Name: name, Params: params, Return: ret, IsIntrinsic: true}
}

func pureSym(name string, ret ir.Type, params ...ir.Type) Symbol {
	s := sym(name, ret, params...)
	s.Pure = true
	return s
}

func (r *Registry) registerConsole() {
	str := ir.PtrTo(ir.TypeI8)
	r.pkgs["Console"] = map[string]Symbol{
		"print":      sym("console_print", ir.TypeVoid, str),
		"printInt":   sym("print_int", ir.TypeVoid, ir.TypeI32),
		"printI64":   sym("print_i64", ir.TypeVoid, ir.TypeI64),
		"printU32":   sym("print_u32", ir.TypeVoid, ir.TypeI32),
		"printU64":   sym("print_u64", ir.TypeVoid, ir.TypeI64),
		"printF32":   sym("print_f32", ir.TypeVoid, ir.TypeF32),
		"printF64":   sym("print_f64", ir.TypeVoid, ir.TypeF64),
		"printStr":   sym("print_str", ir.TypeVoid, str),
		"printChar":  sym("print_char", ir.TypeVoid, ir.TypeI32),
		"printBool":  sym("print_bool", ir.TypeVoid, ir.TypeBool),
	}
}

func (r *Registry) registerMath() {
	f64 := ir.TypeF64
	r.pkgs["Math"] = map[string]Symbol{
		"sqrt":  pureSym("math_sqrt", f64, f64),
		"pow":   pureSym("math_pow", f64, f64, f64),
		"abs":   pureSym("math_abs", f64, f64),
		"floor": pureSym("math_floor", f64, f64),
		"ceil":  pureSym("math_ceil", f64, f64),
		"min":   pureSym("math_min", f64, f64, f64),
		"max":   pureSym("math_max", f64, f64, f64),
	}
}

func (r *Registry) registerString() {
	str := ir.PtrTo(ir.TypeI8)
	r.pkgs["String"] = map[string]Symbol{
		"length":     pureSym("string_length", ir.TypeI32, str),
		"concat":     sym("string_concat_cstr", str, str, str),
		"concatInt":  sym("string_concat_int", str, str, ir.TypeI32),
		"substring":  pureSym("string_substring", str, str, ir.TypeI32, ir.TypeI32),
		"indexOf":    pureSym("string_indexof", ir.TypeI32, str, str),
		"contains":   pureSym("string_contains", ir.TypeBool, str, str),
		"equals":     pureSym("string_equals", ir.TypeBool, str, str),
	}
}

func (r *Registry) registerIO() {
	str := ir.PtrTo(ir.TypeI8)
	r.pkgs["IO"] = map[string]Symbol{
		"printf": sym("printf", ir.TypeI32, str),
	}
}

func (r *Registry) registerMemory() {
	ptr := ir.PtrTo(ir.TypeVoid)
	r.pkgs["Memory"] = map[string]Symbol{
		"malloc":  sym("malloc", ptr, ir.TypeI64),
		"calloc":  sym("calloc", ptr, ir.TypeI64, ir.TypeI64),
		"realloc": sym("realloc", ptr, ptr, ir.TypeI64),
		"free":    sym("free", ir.TypeVoid, ptr),
		"alloc":   sym("magolor_alloc", ptr, ir.TypeI64),
		"dealloc": sym("magolor_free", ir.TypeVoid, ptr),
	}
}
