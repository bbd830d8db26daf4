package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Module as a textual, non-parseable debug dump. It is
// not the round-trippable assembly dialect (see internal/asmir for that);
// this is closer to an `opt -S` style trace, used in tests and by
// internal/pipeline.WriteSplits to write Func2Mod's split modules.
type Printer struct {
	indent int
	output strings.Builder
}

func NewPrinter() *Printer { return &Printer{} }

// Print returns the textual dump of m.
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printModule(m *Module) {
	p.writeLine("; ModuleID = '%s'", m.Identifier)
	if m.TargetTriple != "" {
		p.writeLine("target triple = %q", m.TargetTriple)
	}
	p.writeLine("")
	for _, g := range m.Globals {
		p.printGlobal(g)
	}
	if len(m.Globals) > 0 {
		p.writeLine("")
	}
	for _, f := range m.Functions {
		p.printFunction(f)
		p.writeLine("")
	}
}

func (p *Printer) printGlobal(g *GlobalVariable) {
	init := "undef"
	if g.Initializer != nil {
		init = g.Initializer.String()
	}
	p.writeLine("@%s = %s global %s %s", g.Name, g.Linkage, g.Typ.String(), init)
}

func (p *Printer) printFunction(f *Function) {
	params := make([]string, len(f.Params))
	for i, param := range f.Params {
		params[i] = fmt.Sprintf("%%%s: %s", param.Name, param.Typ.String())
	}
	sig := fmt.Sprintf("define %s @%s(%s)", f.ReturnType.String(), f.Name, strings.Join(params, ", "))
	if len(f.Blocks) == 0 {
		p.writeLine("declare %s @%s(%s)", f.ReturnType.String(), f.Name, strings.Join(params, ", "))
		return
	}
	p.writeLine("%s {", sig)
	p.indent++
	for _, bb := range f.Blocks {
		p.printBlock(bb)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(bb *BasicBlock) {
	p.writeIndent()
	p.output.WriteString(bb.Name)
	p.output.WriteString(":\n")
	p.indent++
	for _, inst := range bb.Instructions {
		p.writeLine("%s", inst.String())
	}
	if bb.Terminator != nil {
		p.writeLine("%s", bb.Terminator.String())
	}
	p.indent--
}
