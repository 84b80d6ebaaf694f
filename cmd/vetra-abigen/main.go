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

// Command vetra-abigen parses internal/embed/script_engine_stub.c with
// modernc.org/cc/v4, the same function-definition walk goat used to pull
// signatures out of its own C prologues, and checks the result against
// the script_engine_* surface internal/embed/cabi.go actually exports.
// It exists so the C header a host embeds and the Go ABI behind it can
// never silently drift apart.
package main

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"modernc.org/cc/v4"
)

// signature is the shape vetra-abigen checks: a function name, its
// parameter type names in order, and whether each parameter is a
// pointer. Return type is not load-bearing for the ABI check since every
// script_engine_* function already returns either a handle or a status
// code, so it is neither recorded nor compared.
type signature struct {
	name       string
	paramTypes []string
	pointer    []bool
}

// expected mirrors internal/embed/cabi.go's exported Handle-taking
// functions one for one.
var expected = map[string]signature{
	"script_engine_new":       {paramTypes: nil, pointer: nil},
	"script_engine_free":      {paramTypes: []string{"script_engine_handle"}, pointer: []bool{false}},
	"script_engine_compile":   {paramTypes: []string{"script_engine_handle", "char", "char"}, pointer: []bool{false, true, true}},
	"script_engine_run":       {paramTypes: []string{"script_engine_handle"}, pointer: []bool{false}},
	"script_engine_set_int":   {paramTypes: []string{"script_engine_handle", "char", "long long"}, pointer: []bool{false, true, false}},
	"script_engine_set_float": {paramTypes: []string{"script_engine_handle", "char", "double"}, pointer: []bool{false, true, false}},
	"script_engine_get_int":   {paramTypes: []string{"script_engine_handle", "char", "long long"}, pointer: []bool{false, true, true}},
	"script_engine_get_float": {paramTypes: []string{"script_engine_handle", "char", "double"}, pointer: []bool{false, true, true}},
}

func main() {
	path := "internal/embed/script_engine_stub.c"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if err := run(path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("script_engine_* ABI matches internal/embed/cabi.go")
}

func run(path string) error {
	found, err := parseSignatures(path)
	if err != nil {
		return err
	}

	var missing, mismatched []string
	for name, want := range expected {
		got, ok := found[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if !sameShape(want, got) {
			mismatched = append(mismatched, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(mismatched)

	if len(missing) > 0 || len(mismatched) > 0 {
		return fmt.Errorf("abi mismatch: missing=%v mismatched=%v", missing, mismatched)
	}
	return nil
}

func sameShape(want, got signature) bool {
	if len(want.paramTypes) != len(got.paramTypes) {
		return false
	}
	for i := range want.paramTypes {
		if want.pointer[i] != got.pointer[i] {
			return false
		}
		// the handle typedef and bare scalar spellings both resolve to the
		// same parameter slot; only pointer-ness of string/out-param args
		// is load-bearing for the Go side.
		if !want.pointer[i] && want.paramTypes[i] != got.paramTypes[i] {
			return false
		}
	}
	return true
}

// parseSignatures walks every top-level function definition in path and
// returns its parameter shape, following goat's parseSource/
// convertFunction/convertFunctionParameters pattern but stripped of the
// NEON/SIMD/multi-arch concerns that pattern also carried: vetra-abigen
// only ever looks at scalar and pointer parameters.
func parseSignatures(path string) (map[string]signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := cc.NewConfig(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return nil, err
	}
	ast, err := cc.Parse(cfg, []cc.Source{
		{Name: "<predefined>", Value: cfg.Predefined},
		{Name: "<builtin>", Value: cc.Builtin},
		{Name: path, Value: f},
	})
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	out := map[string]signature{}
	for tu := ast.TranslationUnit; tu != nil; tu = tu.TranslationUnit {
		ed := tu.ExternalDeclaration
		if ed.Position().Filename != path || ed.Case != cc.ExternalDeclarationFuncDef {
			continue
		}
		sig, err := convertFunction(ed.FunctionDefinition)
		if err != nil {
			return nil, err
		}
		out[sig.name] = sig
	}
	return out, nil
}

func convertFunction(fd *cc.FunctionDefinition) (signature, error) {
	dd := fd.Declarator.DirectDeclarator
	if dd.Case != cc.DirectDeclaratorFuncParam {
		return signature{}, fmt.Errorf("unsupported declarator shape for %v", fd.Declarator)
	}
	name := dd.DirectDeclarator.Token.SrcStr()

	var types []string
	var pointers []bool
	for p := dd.ParameterTypeList.ParameterList; p != nil; p = p.ParameterList {
		decl := p.ParameterDeclaration
		var typeName string
		if decl.DeclarationSpecifiers.Case == cc.DeclarationSpecifiersTypeQual {
			typeName = decl.DeclarationSpecifiers.DeclarationSpecifiers.TypeSpecifier.Token.SrcStr()
		} else {
			typeName = decl.DeclarationSpecifiers.TypeSpecifier.Token.SrcStr()
		}
		types = append(types, strings.TrimSpace(typeName))
		pointers = append(pointers, decl.Declarator.Pointer != nil)
	}
	return signature{name: name, paramTypes: types, pointer: pointers}, nil
}
