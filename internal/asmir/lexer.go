package asmir

import "github.com/alecthomas/participle/v2/lexer"

// AsmLexer tokenizes the textual SSA-assembly dialect this package parses.
// Grounded on kanso/grammar's stateful lexer (github.com/alecthomas/participle/v2/lexer.MustStateful),
// reused here for a far smaller token set: LLVM-flavored IR has no nested
// lexer states (no string interpolation, no doc comments), so a single
// "Root" state suffices where kanso needed several.
var AsmLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `;[^\n]*`, nil},
		{"String", `"(\\.|[^"\n])*"`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.]*`, nil},
		{"Integer", `-?[0-9]+`, nil},
		{"Punct", `[@%(){}\[\],:=<>*]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
