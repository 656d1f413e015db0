package dot

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// File represents a complete DOT document
// Example: digraph G { "a" -> "b" [from="out1", to="in1"]; }
type File struct {
	Pos    lexer.Position
	Strict bool    `@KwStrict?`
	Kind   string  `@( KwDigraph | KwGraph )`
	ID     *ID     `@@?`
	Stmts  []*Stmt `"{" @@* "}"`
}

// Directed reports whether the document is a digraph
func (f *File) Directed() bool {
	return strings.EqualFold(f.Kind, "digraph")
}

// Name returns the graph identifier, or "" when anonymous
func (f *File) Name() string {
	if f.ID == nil {
		return ""
	}
	return f.ID.Text()
}

// Stmt is one statement inside a graph or subgraph body
type Stmt struct {
	Pos      lexer.Position
	Attr     *AttrStmt `( @@`
	Subgraph *Subgraph `| @@`
	Element  *Element  `| @@ ) ";"?`
}

// AttrStmt sets default attributes for the enclosing scope
// Example: node [shape=box, style=filled];
type AttrStmt struct {
	Target string  `@( KwGraph | KwNode | KwEdge )`
	Attrs  []*Attr `( "[" ( @@ ( "," | ";" )? )* "]" )+`
}

// Subgraph represents a nested scope. Subgraphs named cluster_N group the
// components of one basic block.
type Subgraph struct {
	Pos   lexer.Position
	ID    *ID     `( KwSubgraph @@? )?`
	Stmts []*Stmt `"{" @@* "}"`
}

// Element is a node statement, an edge chain or a graph attribute assignment
// Examples:
//
//	"add_0" [type="Operator", op="add_op"]
//	"a" -> "b" -> "c" [color="red"]
//	splines=spline
type Element struct {
	Pos   lexer.Position
	ID    *ID        `@@`
	Value *ID        `( "=" @@ )?`
	Edges []*EdgeRHS `@@*`
	Attrs []*Attr    `( "[" ( @@ ( "," | ";" )? )* "]" )*`
}

// IsAssign reports whether the element is an ID=ID graph attribute
func (e *Element) IsAssign() bool {
	return e.Value != nil
}

// EdgeRHS is one hop of an edge chain
type EdgeRHS struct {
	Op string `@Arrow`
	To *ID    `@@`
}

// Attr is a single key=value pair; a bare key means "true"
type Attr struct {
	Pos   lexer.Position
	Key   *ID `@@`
	Value *ID `( "=" @@ )?`
}

// Text returns the attribute value, "true" for bare keys
func (a *Attr) Text() string {
	if a.Value == nil {
		return "true"
	}
	return a.Value.Text()
}

// ID is a DOT identifier: a bare word, a numeral or a quoted string
type ID struct {
	Pos    lexer.Position
	Quoted *string `  @String`
	Bare   string  `| @( Ident | Number )`
}

// Text returns the identifier with surrounding quotes and escapes removed
func (id *ID) Text() string {
	if id == nil {
		return ""
	}
	if id.Quoted == nil {
		return id.Bare
	}
	return Unquote(*id.Quoted)
}

// Unquote strips the surrounding quotes of a DOT string and resolves \"
// escapes and line continuations. Other escapes are kept verbatim.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"':
				b.WriteByte('"')
				i++
				continue
			case '\n':
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
