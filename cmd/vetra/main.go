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

// Command vetra is the bytecode driver: source file in, straight to a
// Module compiled by internal/bytecode and run on internal/vm. With no
// source argument it starts a REPL instead.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorse-io/vetra/internal/buildinfo"
	"github.com/gorse-io/vetra/internal/bytecode"
	"github.com/gorse-io/vetra/internal/embed"
	"github.com/gorse-io/vetra/internal/frontend"
)

var (
	dump  bool
	bench bool
)

var command = &cobra.Command{
	Use:     "vetra [source-file] [--dump] [--bench]",
	Version: buildinfo.String(),
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			os.Exit(embed.NewRepl(os.Stdin, os.Stdout).Run())
		}
		if err := run(args[0], dump, bench); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	command.Flags().BoolVar(&dump, "dump", false, "print constants, globals, function table and the op stream instead of running")
	command.Flags().BoolVar(&bench, "bench", false, "report per-phase timings on stderr")
}

func run(sourcePath string, dump, bench bool) error {
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}

	t0 := time.Now()
	prog, err := frontend.Parse(sourcePath, string(src))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	tParse := time.Since(t0)

	t1 := time.Now()
	mod, err := bytecode.NewCompiler().Compile(prog)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	tCompile := time.Since(t1)

	if dump {
		dumpModule(os.Stdout, mod)
		return nil
	}

	e := embed.New()
	if err := e.LoadModule(sourcePath, mod); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	t2 := time.Now()
	_, err = e.Run()
	tRun := time.Since(t2)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	if bench {
		_, _ = fmt.Fprintf(os.Stderr, "parse: %s, compile: %s, run: %s, total: %s\n",
			tParse, tCompile, tRun, time.Since(t0))
	}
	return nil
}

func dumpModule(w io.Writer, mod *bytecode.Module) {
	fmt.Fprintln(w, "constants:")
	for i, c := range mod.Consts {
		fmt.Fprintf(w, "  [%d] %s\n", i, c.String())
	}
	fmt.Fprintln(w, "globals:")
	for i, g := range mod.Globals {
		fmt.Fprintf(w, "  [%d] %s\n", i, g)
	}
	fmt.Fprintln(w, "natives:")
	for i, n := range mod.Natives {
		fmt.Fprintf(w, "  [%d] %s\n", i, n)
	}
	fmt.Fprintln(w, "functions:")
	for _, f := range mod.Funcs {
		fmt.Fprintf(w, "  %s: entry=%d params=%d locals=%d\n", f.Name, f.Entry, f.Params, f.Locals)
	}
	fmt.Fprintf(w, "entry offset: %d\n", mod.EntryOffset)
	fmt.Fprintln(w, "code:")
	for ip, inst := range mod.Code {
		fmt.Fprintf(w, "  %04d %s\n", ip, dumpInst(inst))
	}
}

func dumpInst(inst bytecode.Inst) string {
	switch inst.Op {
	case bytecode.OpConst:
		return fmt.Sprintf("%s %d", inst.Op, inst.ConstID)
	case bytecode.OpInt:
		return fmt.Sprintf("%s %d", inst.Op, inst.Int)
	case bytecode.OpFloat:
		return fmt.Sprintf("%s %g", inst.Op, inst.Float)
	case bytecode.OpLoadLocal, bytecode.OpStoreLocal:
		return fmt.Sprintf("%s %d", inst.Op, inst.Slot)
	case bytecode.OpLoadGlobal, bytecode.OpStoreGlobal:
		return fmt.Sprintf("%s %d", inst.Op, inst.Global)
	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
		return fmt.Sprintf("%s -> %d", inst.Op, inst.Target)
	case bytecode.OpCall:
		return fmt.Sprintf("%s #%d argc=%d", inst.Op, inst.FuncIdx, inst.Argc)
	case bytecode.OpCallNative:
		return fmt.Sprintf("%s #%d argc=%d", inst.Op, inst.Native, inst.Argc)
	case bytecode.OpGetField, bytecode.OpSetField:
		return fmt.Sprintf("%s #%d", inst.Op, inst.Field)
	case bytecode.OpNewArray:
		return fmt.Sprintf("%s %d", inst.Op, inst.Int)
	default:
		return inst.Op.String()
	}
}

func main() {
	if err := command.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
