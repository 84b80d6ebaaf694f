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

// Package diag carries the driver binaries' non-user-facing diagnostics:
// a zap-backed logger for -v/SHOW_IR-style tracing, and the phase error
// wrapping cmd/vetrac uses to report which pipeline stage failed. User-facing compiler/runtime errors never go through
// here — they print directly to stderr and set the process exit code.
package diag

import (
	"go.uber.org/zap"
)

// New builds a SugaredLogger: development encoding (human-readable,
// colorized level names, caller line) when verbose is set, otherwise a
// quieter production encoder that only surfaces warnings and above.
func New(verbose bool) *zap.SugaredLogger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		// Logging setup failing is not itself fatal to compiling or running
		// a program; fall back to a no-op logger rather than aborting.
		logger = zap.NewNop()
	}
	return logger.Sugar()
}
