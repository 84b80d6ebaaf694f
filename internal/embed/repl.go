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

package embed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/gorse-io/vetra/internal/bytecode"
	"github.com/gorse-io/vetra/internal/frontend"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	errColor    = color.New(color.FgRed)
	valColor    = color.New(color.FgGreen)
)

// Repl runs a read-eval-print loop over in/out: each line first tries
// expression mode (wrapped as the body of an anonymous function returning
// a value), and on a parse failure falls back to statement mode (wrapped
// as a bare effect body). Dot-commands bypass compilation entirely.
// Every line runs on its own fresh Engine/Machine. The globals map
// (emptied by .clear) is staged into each new Engine through
// SetInt/SetFloat; nothing writes into it, so no value carries over from
// one line to the next.
type Repl struct {
	in      *bufio.Scanner
	out     io.Writer
	history []string
	globals map[string]bytecode.Val
}

func NewRepl(in io.Reader, out io.Writer) *Repl {
	return &Repl{in: bufio.NewScanner(in), out: out, globals: map[string]bytecode.Val{}}
}

// Run drives the loop until EOF or a .exit command, returning the process
// exit code (always 0: REPL errors return to the prompt rather than
// terminating the process).
func (r *Repl) Run() int {
	for {
		promptColor.Fprint(r.out, "vetra> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return 0
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		r.history = append(r.history, line)

		if strings.HasPrefix(line, ".") {
			if done := r.dotCommand(line); done {
				return 0
			}
			continue
		}

		if err := r.eval(line); err != nil {
			errColor.Fprintf(r.out, "error: %s\n", err)
		}
	}
}

func (r *Repl) dotCommand(line string) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".exit":
		return true
	case ".clear":
		r.globals = map[string]bytecode.Val{}
		fmt.Fprintln(r.out, "globals cleared")
	case ".history":
		for i, h := range r.history {
			fmt.Fprintf(r.out, "%4d  %s\n", i+1, h)
		}
	case ".run":
		if len(fields) != 2 {
			errColor.Fprintln(r.out, "usage: .run <file>")
			return false
		}
		src, err := os.ReadFile(fields[1])
		if err != nil {
			errColor.Fprintf(r.out, "error: %s\n", err)
			return false
		}
		if err := r.runSource(fields[1], string(src)); err != nil {
			errColor.Fprintf(r.out, "error: %s\n", err)
		}
	case ".help":
		fmt.Fprintln(r.out, ".exit  .clear  .history  .run <file>  .help")
	default:
		errColor.Fprintf(r.out, "unknown command %q (try .help)\n", fields[0])
	}
	return false
}

// eval tries wrapping line as an expression-mode function body first; on a
// parse failure it retries in statement mode. Either shape's compile or
// runtime error surfaces only if both shapes fail to parse, or the shape
// that did parse fails to run.
func (r *Repl) eval(line string) error {
	exprSrc := "func __repl() { return " + line + "; }"
	if _, err := frontend.Parse("<repl>", exprSrc); err == nil {
		return r.runSource("<repl>", exprSrc)
	}
	return r.runSource("<repl>", "func __repl() { "+line+"; }")
}

func (r *Repl) runSource(name, source string) error {
	e := New()
	for k, v := range r.globals {
		switch v.Kind {
		case bytecode.VInt:
			e.SetInt(k, v.I)
		case bytecode.VFloat:
			e.SetFloat(k, v.F)
		}
	}
	if err := e.Compile(name, source); err != nil {
		return err
	}
	result, err := e.Run()
	if err != nil {
		return err
	}
	if result.Kind != bytecode.VNull {
		valColor.Fprintln(r.out, result.String())
	}
	return nil
}
