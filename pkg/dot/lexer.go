package dot

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// DOTLexer defines the lexical structure of Graphviz DOT files as emitted by
// dataflow front ends. Keywords are case-insensitive.
var DOTLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments: C++ line, C block and preprocessor-style lines
	{Name: "Comment", Pattern: `//[^\n]*|/\*[\s\S]*?\*/|#[^\n]*`},

	// Whitespace
	{Name: "Whitespace", Pattern: `\s+`},

	// Keywords
	{Name: "KwStrict", Pattern: `(?i)\bstrict\b`},
	{Name: "KwDigraph", Pattern: `(?i)\bdigraph\b`},
	{Name: "KwGraph", Pattern: `(?i)\bgraph\b`},
	{Name: "KwSubgraph", Pattern: `(?i)\bsubgraph\b`},
	{Name: "KwNode", Pattern: `(?i)\bnode\b`},
	{Name: "KwEdge", Pattern: `(?i)\bedge\b`},

	// Double-quoted strings with escapes, may span lines
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},

	// Edge operators (before Number so "-" is not taken as a sign)
	{Name: "Arrow", Pattern: `->|--`},

	// Numerals
	{Name: "Number", Pattern: `-?(?:\.[0-9]+|[0-9]+(?:\.[0-9]*)?)`},

	// Identifiers (must come after keywords)
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},

	// Punctuation
	{Name: "Punct", Pattern: `[{}\[\];,=]`},
})
