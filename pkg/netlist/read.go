package netlist

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/dot"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/timing"
)

// LoadError reports a malformed or inconsistent input netlist
type LoadError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *LoadError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("netlist: %s:%d:%d: %s", file, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("netlist: %s: %s", file, e.Msg)
}

func loadErrorAt(pos lexer.Position, format string, args ...any) *LoadError {
	return &LoadError{
		File:   pos.Filename,
		Line:   pos.Line,
		Column: pos.Column,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// Option configures netlist loading
type Option func(*loader)

// WithTimingLibrary fills delay, latency and II from lib when the DOT node
// does not carry them
func WithTimingLibrary(lib timing.Library) Option {
	return func(l *loader) { l.lib = lib }
}

// WithLogger sets the logger used while loading and mutating
func WithLogger(log *slog.Logger) Option {
	return func(l *loader) { l.log = log }
}

// WithFileName names the input in error messages
func WithFileName(name string) Option {
	return func(l *loader) { l.file = name }
}

type loader struct {
	lib  timing.Library
	log  *slog.Logger
	file string
}

// Read loads a netlist from DOT text
func Read(r io.Reader, opts ...Option) (*Netlist, error) {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l.read(r)
}

// ReadString loads a netlist from a DOT string
func ReadString(s string, opts ...Option) (*Netlist, error) {
	return Read(strings.NewReader(s), opts...)
}

// Open loads a netlist from path and, if bbPath is not empty, its block
// graph. It always returns a netlist; failures are reported through
// HasError and Error.
func Open(path, bbPath string, opts ...Option) *Netlist {
	n, err := openFile(path, opts...)
	if err != nil {
		n = New(path)
		n.err = err
		return n
	}
	if bbPath != "" {
		g, err := openBlocks(bbPath)
		if err != nil {
			n.err = err
			return n
		}
		n.SetBlockGraph(g)
	}
	return n
}

func openFile(path string, opts ...Option) (*Netlist, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Msg: err.Error()}
	}
	defer file.Close()

	return Read(file, append([]Option{WithFileName(path)}, opts...)...)
}

func openBlocks(path string) (*BlockGraph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Msg: err.Error()}
	}
	defer file.Close()

	return ReadBlocks(file, path)
}

func parseDot(r io.Reader, file string) (*dot.Graph, error) {
	parser, err := dot.NewParser()
	if err != nil {
		return nil, fmt.Errorf("netlist: %w", err)
	}
	f, err := parser.Parse(file, r)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			le := loadErrorAt(perr.Position(), "%s", perr.Message())
			le.File = file
			return nil, le
		}
		return nil, &LoadError{File: file, Msg: err.Error()}
	}
	return dot.Flatten(f), nil
}

func (l *loader) read(r io.Reader) (*Netlist, error) {
	g, err := parseDot(r, l.file)
	if err != nil {
		return nil, err
	}

	n := New(g.Name)
	if l.log != nil {
		n.log = l.log
	}
	n.graphAttrs = g.Attrs

	for _, node := range g.Nodes {
		if _, typed := node.Attrs.Get("type"); !typed {
			// labels and legend nodes carry no type
			continue
		}
		c, err := l.component(node)
		if err != nil {
			return nil, err
		}
		if _, err := n.AddComponent(c); err != nil {
			return nil, l.errorAt(node.Pos, "%v", err)
		}
	}

	for _, e := range g.Edges {
		if err := l.connect(n, e); err != nil {
			return nil, err
		}
	}

	if err := n.Validate(); err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.File == "" {
			le.File = l.file
		}
		return nil, err
	}

	n.log.Debug("netlist loaded",
		"name", n.Name,
		"components", n.NumComponents(),
		"channels", n.NumChannels(),
		"blocks", len(n.Blocks()))
	return n, nil
}

func (l *loader) errorAt(pos lexer.Position, format string, args ...any) *LoadError {
	le := loadErrorAt(pos, format, args...)
	le.File = l.file
	return le
}

// consumed lists the node attributes mapped onto Component fields
var consumed = map[string]bool{
	"type": true, "bbid": true, "op": true, "in": true, "out": true,
	"delay": true, "latency": true, "ii": true, "slots": true,
	"transparent": true, "value": true, "control": true, "memory": true,
}

func (l *loader) component(node *dot.Node) (Component, error) {
	typeName := node.Attrs.Lookup("type")
	kind, ok := ParseKind(typeName)
	if !ok {
		return Component{}, l.errorAt(node.Pos, "%s: unknown component type %q", node.Name, typeName)
	}

	c := Component{
		Name:         node.Name,
		Kind:         kind,
		TypeName:     typeName,
		Op:           node.Attrs.Lookup("op"),
		Value:        node.Attrs.Lookup("value"),
		Memory:       node.Attrs.Lookup("memory"),
		ControlMerge: strings.EqualFold(typeName, "CntrlMerge"),
		Control:      node.Attrs.Lookup("control") == "true",
		II:           1,
	}

	var err error
	if c.Block, err = l.intAttr(node, "bbID", blockFromCluster(node.Cluster)); err != nil {
		return c, err
	}
	if c.Inputs, err = l.ports(node, "in"); err != nil {
		return c, err
	}
	if c.Outputs, err = l.ports(node, "out"); err != nil {
		return c, err
	}

	var entry timing.Entry
	if l.lib != nil {
		key := typeName
		if kind == Operator && c.Op != "" {
			key = c.Op
		}
		entry, _ = l.lib.Lookup(key)
	}
	if c.Delay, err = l.floatAttr(node, "delay", entry.Delay); err != nil {
		return c, err
	}
	if c.Latency, err = l.intAttr(node, "latency", entry.Latency); err != nil {
		return c, err
	}
	ii := entry.II
	if ii == 0 {
		ii = 1
	}
	if c.II, err = l.intAttr(node, "II", ii); err != nil {
		return c, err
	}
	if c.Delay < 0 || c.Latency < 0 || c.II < 1 {
		return c, l.errorAt(node.Pos, "%s: negative delay or latency, or II below 1", node.Name)
	}

	if kind == Buffer {
		c.Buffer.Slots, err = l.intAttr(node, "slots", 1)
		if err != nil {
			return c, err
		}
		transparent := strings.EqualFold(typeName, "Fifo") || strings.EqualFold(typeName, "tehb")
		if v, ok := node.Attrs.Get("transparent"); ok {
			transparent = v == "true"
		}
		c.Buffer.Transparent = transparent
	}

	for _, key := range node.Attrs.Keys() {
		if !consumed[strings.ToLower(key)] {
			c.Attrs.Set(key, node.Attrs.Lookup(key))
		}
	}
	return c, nil
}

var clusterRe = regexp.MustCompile(`^cluster_(\d+)$`)

func blockFromCluster(cluster string) int {
	if m := clusterRe.FindStringSubmatch(cluster); m != nil {
		b, _ := strconv.Atoi(m[1])
		return b
	}
	return 0
}

func (l *loader) intAttr(node *dot.Node, key string, def int) (int, error) {
	v, ok := node.Attrs.Get(key)
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, l.errorAt(node.Pos, "%s: %s is not an integer: %q", node.Name, key, v)
	}
	return i, nil
}

func (l *loader) floatAttr(node *dot.Node, key string, def float64) (float64, error) {
	v, ok := node.Attrs.Get(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, l.errorAt(node.Pos, "%s: %s is not a number: %q", node.Name, key, v)
	}
	return f, nil
}

// portRe matches "in1:32", "in2?:1", "out1+:0" and "in1:32*c0"
var portRe = regexp.MustCompile(`^(in|out)(\d+)([^:]*):(\d+)(.*)$`)

func (l *loader) ports(node *dot.Node, side string) ([]Port, error) {
	spec := strings.TrimSpace(node.Attrs.Lookup(side))
	if spec == "" {
		return nil, nil
	}
	var ports []Port
	for _, field := range strings.Fields(spec) {
		m := portRe.FindStringSubmatch(field)
		if m == nil || m[1] != side {
			return nil, l.errorAt(node.Pos, "%s: malformed %s port %q", node.Name, side, field)
		}
		index, _ := strconv.Atoi(m[2])
		width, _ := strconv.Atoi(m[4])
		ports = append(ports, Port{Index: index, Width: width, Tag: m[3], Extra: m[5]})
	}
	sort.SliceStable(ports, func(i, j int) bool { return ports[i].Index < ports[j].Index })
	for i, p := range ports {
		if p.Index != i+1 {
			return nil, l.errorAt(node.Pos, "%s: %s ports must be unique and numbered 1..%d", node.Name, side, len(ports))
		}
	}
	return ports, nil
}

func (l *loader) connect(n *Netlist, e *dot.Edge) error {
	src, ok := n.ComponentByName(e.From)
	if !ok {
		return l.errorAt(e.Pos, "edge %s -> %s: unknown source component", e.From, e.To)
	}
	dst, ok := n.ComponentByName(e.To)
	if !ok {
		return l.errorAt(e.Pos, "edge %s -> %s: unknown destination component", e.From, e.To)
	}

	srcPort, err := l.edgePort(e, "from", "out", len(src.Outputs))
	if err != nil {
		return err
	}
	dstPort, err := l.edgePort(e, "to", "in", len(dst.Inputs))
	if err != nil {
		return err
	}

	id, err := n.Connect(src.ID, srcPort, dst.ID, dstPort)
	if err != nil {
		return l.errorAt(e.Pos, "edge %s -> %s: %v", e.From, e.To, err)
	}
	ch := n.chans[id]
	for _, key := range e.Attrs.Keys() {
		val := e.Attrs.Lookup(key)
		switch key {
		case "from", "to":
		case "minslots":
			if ch.MinSlots, err = strconv.Atoi(val); err != nil || ch.MinSlots < 0 {
				return l.errorAt(e.Pos, "edge %s -> %s: invalid minslots %q", e.From, e.To, val)
			}
		default:
			ch.Attrs.Set(key, val)
		}
	}
	return nil
}

func (l *loader) edgePort(e *dot.Edge, key, side string, count int) (int, error) {
	v, ok := e.Attrs.Get(key)
	if !ok {
		if count == 1 {
			return 1, nil
		}
		return 0, l.errorAt(e.Pos, "edge %s -> %s: missing %s port", e.From, e.To, key)
	}
	if !strings.HasPrefix(v, side) {
		return 0, l.errorAt(e.Pos, "edge %s -> %s: %s port %q is not an %s port", e.From, e.To, key, v, side)
	}
	idx, err := strconv.Atoi(v[len(side):])
	if err != nil {
		return 0, l.errorAt(e.Pos, "edge %s -> %s: malformed %s port %q", e.From, e.To, key, v)
	}
	return idx, nil
}

// ReadBlocks loads a basic-block graph: nodes named "blockN" and edges with
// an optional freq attribute.
func ReadBlocks(r io.Reader, file string) (*BlockGraph, error) {
	g, err := parseDot(r, file)
	if err != nil {
		return nil, err
	}

	bg := NewBlockGraph()
	ids := make(map[string]int, len(g.Nodes))
	for _, node := range g.Nodes {
		id, ok := blockID(node.Name)
		if !ok {
			return nil, &LoadError{File: file, Line: node.Pos.Line, Column: node.Pos.Column,
				Msg: fmt.Sprintf("block node %q has no block number", node.Name)}
		}
		ids[node.Name] = id
		bg.AddBlock(id, node.Name)
	}
	for _, e := range g.Edges {
		freq := 1.0
		if v, ok := e.Attrs.Get("freq"); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || f < 0 {
				return nil, &LoadError{File: file, Line: e.Pos.Line, Column: e.Pos.Column,
					Msg: fmt.Sprintf("edge %s -> %s: invalid freq %q", e.From, e.To, v)}
			}
			freq = f
		}
		edge := bg.AddEdge(ids[e.From], ids[e.To], freq)
		for _, key := range e.Attrs.Keys() {
			if key != "freq" {
				edge.Attrs.Set(key, e.Attrs.Lookup(key))
			}
		}
	}
	return bg, nil
}

var blockRe = regexp.MustCompile(`(\d+)$`)

func blockID(name string) (int, bool) {
	m := blockRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	return id, err == nil
}
