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

// Command vetrac is the ahead-of-time driver: source file in, x86-64
// assembly out, through the full typed-IR/optimize/regalloc/emit pipeline.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorse-io/vetra/internal/buildinfo"
	"github.com/gorse-io/vetra/internal/cfg"
	"github.com/gorse-io/vetra/internal/codegen/llvm"
	"github.com/gorse-io/vetra/internal/codegen/x86"
	"github.com/gorse-io/vetra/internal/diag"
	"github.com/gorse-io/vetra/internal/frontend"
	"github.com/gorse-io/vetra/internal/ir"
	"github.com/gorse-io/vetra/internal/irbuild"
	"github.com/gorse-io/vetra/internal/optimize"
	"github.com/gorse-io/vetra/internal/regalloc"
	"github.com/gorse-io/vetra/internal/syspkg"
)

var verbose bool

var command = &cobra.Command{
	Use:     "vetrac source [-o output.s]",
	Version: buildinfo.String(),
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.PersistentFlags().GetString("output")
		level, _ := cmd.PersistentFlags().GetInt("optimize-level")
		if err := compile(args[0], output, optimize.Level(level)); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	command.PersistentFlags().StringP("output", "o", "", "output path for generated assembly (default: source with .s extension)")
	command.PersistentFlags().IntP("optimize-level", "O", int(optimize.Basic), "optimization level (0=none, 1=basic, 2=aggressive, 3=maximum)")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, trace each pipeline phase")
}

func compile(sourcePath, output string, level optimize.Level) error {
	logger := diag.New(verbose)
	defer logger.Sync()

	if output == "" {
		ext := filepath.Ext(sourcePath)
		output = strings.TrimSuffix(sourcePath, ext) + ".s"
	}

	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return diag.Wrap(diag.PhaseParse, err)
	}

	logger.Debugw("parsing", "file", sourcePath)
	prog, err := frontend.Parse(sourcePath, string(src))
	if err != nil {
		return diag.Wrap(diag.PhaseParse, err)
	}
	if os.Getenv("SHOW_AST") != "" {
		fmt.Fprintf(os.Stderr, "%# v\n", pretty.Formatter(prog))
	}

	logger.Debugw("building IR")
	builder := irbuild.New(syspkg.New())
	irProg, err := builder.Build(&prog)
	if err != nil {
		return diag.Wrap(diag.PhaseBuildIR, err)
	}
	if os.Getenv("SHOW_IR") != "" {
		fmt.Fprintf(os.Stderr, "%# v\n", pretty.Formatter(irProg))
	}

	logger.Debugw("optimizing", "level", level)
	optimize.Run(irProg, level)

	if os.Getenv("COMPILE_TO_ASM") != "" {
		return compileViaLLVM(logger, irProg, output)
	}

	allocs := map[string]*regalloc.Allocation{}
	for _, name := range irProg.FunctionNames() {
		fn, _ := irProg.Function(name)
		cfg.BuildEdges(fn)
		cfg.Dominators(fn)
		cfg.DominanceFrontiers(fn)
		ranges := cfg.LiveRanges(fn)
		logger.Debugw("allocating registers", "function", name)
		allocs[name] = regalloc.Allocate(fn, ranges)
	}

	logger.Debugw("emitting assembly")
	emitter := x86.New(irProg, allocs)
	asm, err := emitter.Emit()
	if err != nil {
		return diag.Wrap(diag.PhaseEmit, err)
	}

	if err := os.WriteFile(output, []byte(asm), 0o644); err != nil {
		return diag.Wrap(diag.PhaseEmit, err)
	}
	logger.Infow("wrote assembly", "path", output)
	return nil
}

// compileViaLLVM is the COMPILE_TO_ASM=1 path: it bypasses the register
// allocator and x86-64 emitter entirely, instead lowering to textual LLVM
// IR and handing that to an external llc to turn into assembly. The LLVM
// back end only covers terminators and arithmetic, so this path exists for
// comparing the AOT pipeline's output against a standard toolchain on the
// functions it can express, not as the default route.
func compileViaLLVM(logger *zap.SugaredLogger, irProg *ir.Program, output string) error {
	logger.Debugw("emitting LLVM IR")
	text, err := llvm.New(irProg).Emit()
	if err != nil {
		return diag.Wrap(diag.PhaseEmit, err)
	}

	llPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".ll"
	if err := os.WriteFile(llPath, []byte(text), 0o644); err != nil {
		return diag.Wrap(diag.PhaseEmit, err)
	}

	logger.Debugw("invoking llc", "input", llPath, "output", output)
	cmd := exec.Command("llc", llPath, "-o", output)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return diag.Wrap(diag.PhaseEmit, fmt.Errorf("llc: %w", err))
	}
	logger.Infow("wrote assembly", "path", output)
	return nil
}

func main() {
	if err := command.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
