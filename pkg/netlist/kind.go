package netlist

import (
	"fmt"
	"strings"
)

// Kind is the closed set of component variants
type Kind int

const (
	Operator Kind = iota
	Fork
	Merge
	Mux
	Branch
	Buffer
	Source
	Sink
	Constant
	MemoryController
	LSQ
	Start
	End
)

var kindNames = [...]string{
	Operator:         "Operator",
	Fork:             "Fork",
	Merge:            "Merge",
	Mux:              "Mux",
	Branch:           "Branch",
	Buffer:           "Buffer",
	Source:           "Source",
	Sink:             "Sink",
	Constant:         "Constant",
	MemoryController: "MC",
	LSQ:              "LSQ",
	Start:            "Entry",
	End:              "Exit",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// typeAliases maps DOT "type" attribute values onto kinds
var typeAliases = map[string]Kind{
	"operator":   Operator,
	"fork":       Fork,
	"lazyfork":   Fork,
	"merge":      Merge,
	"cntrlmerge": Merge,
	"mux":        Mux,
	"branch":     Branch,
	"buffer":     Buffer,
	"fifo":       Buffer,
	"tehb":       Buffer,
	"oehb":       Buffer,
	"source":     Source,
	"sink":       Sink,
	"constant":   Constant,
	"mc":         MemoryController,
	"lsq":        LSQ,
	"entry":      Start,
	"start":      Start,
	"exit":       End,
	"end":        End,
}

// ParseKind maps a DOT type name to a Kind
func ParseKind(typeName string) (Kind, bool) {
	k, ok := typeAliases[strings.ToLower(typeName)]
	return k, ok
}

// IsMemory reports whether the kind is a memory interface
func (k Kind) IsMemory() bool {
	return k == MemoryController || k == LSQ
}
