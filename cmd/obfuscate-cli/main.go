// Package main is the thin driver spec.md §6 says doesn't belong to the
// core: it loads a YAML pipeline config, parses a module written in
// internal/asmir's textual dialect, runs the registered passes in order
// and prints a colorized summary. Grounded on kanso/cmd/kanso-cli/main.go
// (os.Args parsing, fatih/color success/failure styling, a
// participle.Error-aware error reporter).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
	"github.com/pkg/errors"

	"obfuscate/internal/asmir"
	"obfuscate/internal/obslog"
	"obfuscate/internal/pipeline"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: obfuscate-cli <pipeline.yaml> <module.asm> [output-dir]")
		os.Exit(1)
	}
	cfgPath, asmPath := os.Args[1], os.Args[2]
	outDir := "."
	if len(os.Args) > 3 {
		outDir = os.Args[3]
	}

	obslog.Configure(os.Getenv("OBFUSCATE_DEBUG") != "")

	cfg, err := pipeline.LoadConfig(cfgPath)
	if err != nil {
		color.Red("failed to load pipeline config: %s", err)
		os.Exit(1)
	}

	source, err := os.ReadFile(asmPath)
	if err != nil {
		color.Red("failed to read %s: %s", asmPath, err)
		os.Exit(1)
	}

	m, err := asmir.Parse(string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	run, err := pipeline.Execute(cfg, m)
	if err != nil {
		color.Red("obfuscation run failed: %s", err)
		os.Exit(1)
	}

	for _, d := range run.Diagnostics {
		if d.Code != "" {
			fmt.Printf("  [%s] %s: %s\n", d.Pass, d.Code, d.Message)
		} else {
			fmt.Printf("  [%s] %s\n", d.Pass, d.Message)
		}
	}

	if len(run.Splits) > 0 {
		if err := pipeline.WriteSplits(outDir, run.Splits); err != nil {
			color.Red("failed to write split modules: %s", err)
			os.Exit(1)
		}
		for _, split := range run.Splits {
			fmt.Printf("  wrote %s/%s.ll\n", outDir, split.Name)
		}
	}

	color.Green("run %s: %d passes, %d diagnostics, %d split module(s)",
		run.ID, len(cfg.Passes), len(run.Diagnostics), len(run.Splits))
}

// reportParseError prints a friendly caret-style parse error message, the
// same treatment kanso-cli gives a participle.Error.
func reportParseError(src string, err error) {
	pe, ok := errors.Cause(err).(participle.Error)
	if !ok {
		color.Red("unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("-> %s\n", pe.Message())
}
