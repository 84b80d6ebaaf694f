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

// Package x86 emits Intel-syntax x86-64 assembly text from an ir.Program,
// given a regalloc.Allocation per function. The emitter is linear and
// branch-free within each instruction's lowering: no analysis beyond the
// allocation table is performed here.
package x86

import (
	"fmt"
	"strings"

	"github.com/klauspost/asmfmt"

	"github.com/gorse-io/vetra/internal/ir"
	"github.com/gorse-io/vetra/internal/regalloc"
)

// intArgRegs is the integer/pointer calling-convention register order;
// arguments beyond len(intArgRegs) are pushed.
var intArgRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// Emitter accumulates assembly text for one ir.Program. One Emitter
// processes one program; it is not safe for concurrent use, matching the
// toolchain's single-threaded scheduling contract.
type Emitter struct {
	b      strings.Builder
	allocs map[string]*regalloc.Allocation
	prog   *ir.Program
}

// New creates an Emitter for prog, given a per-function register
// allocation table built by the caller (cmd/vetrac wires regalloc.Allocate
// per function before calling Emit).
func New(prog *ir.Program, allocs map[string]*regalloc.Allocation) *Emitter {
	return &Emitter{prog: prog, allocs: allocs}
}

// Emit renders the whole program: header, then a single .text section
// holding one label block per function, then .data for strings and
// globals, then formats the result with asmfmt the same way the
// multi-arch stub generator this emitter is descended from does.
//
// .text must come before any function body: GNU as assembles into
// whichever section directive it last saw, so a .data emitted first
// would silently swallow every instruction that follows it.
func (e *Emitter) Emit() (string, error) {
	e.writeHeader()
	e.b.WriteString("\n.text\n")
	for _, name := range e.prog.FunctionNames() {
		fn, ok := e.prog.Function(name)
		if !ok {
			continue
		}
		e.emitFunction(fn)
	}
	e.writeDataSection()
	formatted, err := asmfmt.Format(strings.NewReader(e.b.String()))
	if err != nil {
		return e.b.String(), nil // best-effort: unformatted text is still valid input to an assembler
	}
	return string(formatted), nil
}

func (e *Emitter) writeHeader() {
	e.b.WriteString("# generated by vetrac, Intel syntax\n")
	e.b.WriteString(".intel_syntax noprefix\n")
}

func (e *Emitter) writeDataSection() {
	e.b.WriteString("\n.data\n")
	e.prog.Strings.Iter(func(s string, id int) bool {
		fmt.Fprintf(&e.b, "__str_%d:\n\t.asciz %q\n", id, s)
		return false
	})
	e.prog.Globals.Iter(func(name string, g *ir.Global) bool {
		label := globalLabel(name)
		if g.Init != nil {
			fmt.Fprintf(&e.b, "%s:\n\t.quad %s\n", label, globalInitText(*g.Init))
		} else {
			fmt.Fprintf(&e.b, "%s:\n\t.zero %d\n", label, g.Type.SizeBytes())
		}
		return false
	})
}

func globalLabel(name string) string {
	return "g_" + strings.ReplaceAll(name, ".", "_")
}

func globalInitText(c ir.Constant) string {
	switch c.Kind {
	case ir.CFloat32, ir.CFloat64:
		return fmt.Sprintf("%d", int64(c.F))
	case ir.CBool:
		if c.B {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%d", c.I)
	}
}
