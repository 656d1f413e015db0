package netlist

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/timing"
)

const pipelineDot = `
Digraph G {
	splines=spline;
	"DHLS version: 0.1.1" [shape = "none" pos = "20,20!"]
	subgraph cluster_0 {
		color = "darkgreen";
		label = "block1";
		"start_0" [type="Entry", control="true", bbID=1, in="in1:0", out="out1:0"];
		"cst_0" [type="Constant", bbID=1, value="0x00000001", in="in1:0", out="out1:32"];
		"add_0" [type="Operator", bbID=1, op="add_op", in="in1:32 in2:32", out="out1:32", delay=1.693, latency=0, II=1];
		"end_0" [type="Exit", bbID=1, in="in1:32", out="out1:32"];
	}
	"src_0" [type="Source", bbID=1, out="out1:32"];
	"sink_0" [type="Sink", bbID=1, in="in1:32"];
	"start_0" -> "cst_0" [color="red", from="out1", to="in1"];
	"cst_0" -> "add_0" [color="red", from="out1", to="in1"];
	"src_0" -> "add_0" [color="red", from="out1", to="in2"];
	"add_0" -> "end_0" [color="red", from="out1", to="in1"];
	"end_0" -> "sink_0" [color="red"];
}
`

func mustRead(t *testing.T, input string, opts ...Option) *Netlist {
	t.Helper()
	n, err := ReadString(input, opts...)
	if err != nil {
		t.Fatalf("Failed to read netlist: %v", err)
	}
	return n
}

func TestReadPipeline(t *testing.T) {
	n := mustRead(t, pipelineDot)

	if n.NumComponents() != 6 {
		t.Fatalf("Expected 6 components, got %d", n.NumComponents())
	}
	if n.NumChannels() != 5 {
		t.Fatalf("Expected 5 channels, got %d", n.NumChannels())
	}

	add, ok := n.ComponentByName("add_0")
	if !ok {
		t.Fatal("add_0 not found")
	}
	if add.Kind != Operator || add.Op != "add_op" {
		t.Errorf("Unexpected add_0: kind=%v op=%s", add.Kind, add.Op)
	}
	if add.Delay != 1.693 || add.Latency != 0 || add.II != 1 {
		t.Errorf("Unexpected timing: delay=%v latency=%d II=%d", add.Delay, add.Latency, add.II)
	}
	if add.Block != 1 {
		t.Errorf("Expected block 1, got %d", add.Block)
	}
	if len(add.Inputs) != 2 || add.Inputs[1].Width != 32 {
		t.Errorf("Unexpected inputs %+v", add.Inputs)
	}

	start, _ := n.ComponentByName("start_0")
	if start.Kind != Start || !start.Control {
		t.Errorf("Expected control Entry, got kind=%v control=%v", start.Kind, start.Control)
	}
	if n.Channel(n.OutChannel(start.ID, 1)).Kind != Control {
		t.Error("Expected channel from a width-0 port to be control")
	}

	preds := n.Preds(add.ID)
	if len(preds) != 2 {
		t.Fatalf("Expected 2 predecessors, got %d", len(preds))
	}
	cst, _ := n.ComponentByName("cst_0")
	src, _ := n.ComponentByName("src_0")
	if preds[0] != cst.ID || preds[1] != src.ID {
		t.Errorf("Predecessors not in port order: %v", preds)
	}

	end, _ := n.ComponentByName("end_0")
	if succs := n.Succs(end.ID); len(succs) != 1 {
		t.Errorf("Expected 1 successor of end_0, got %d", len(succs))
	}

	if blocks := n.Blocks(); len(blocks) != 1 || blocks[0] != 1 {
		t.Errorf("Expected blocks [1], got %v", blocks)
	}
}

func TestReadBufferKinds(t *testing.T) {
	input := `
	digraph {
		"m" [type="CntrlMerge", bbID=2, in="in1:0 in2:0", out="out1:0 out2?:1"];
		"f" [type="Fifo", bbID=2, slots=4, in="in1:0", out="out1:0"];
		"b" [type="Buffer", bbID=2, slots=2, transparent=false, in="in1:0", out="out1:0"];
		"b" -> "m" [from="out1", to="in1"];
		"f" -> "m" [from="out1", to="in2"];
		"m" -> "f" [from="out1", to="in1"];
		"m" -> "b" [from="out2", to="in1"];
	}
	`
	n := mustRead(t, input)

	m, _ := n.ComponentByName("m")
	if m.Kind != Merge || !m.ControlMerge {
		t.Errorf("Expected control merge, got kind=%v cm=%v", m.Kind, m.ControlMerge)
	}
	if m.Outputs[1].Tag != "?" || m.Outputs[1].Width != 1 {
		t.Errorf("Port annotation lost: %+v", m.Outputs[1])
	}
	if id, ok := n.ControlMerge(2); !ok || id != m.ID {
		t.Error("Expected m to be block 2's control merge")
	}

	f, _ := n.ComponentByName("f")
	if f.Kind != Buffer || !f.Buffer.Transparent || f.Buffer.Slots != 4 {
		t.Errorf("Unexpected fifo %+v", f.Buffer)
	}
	if f.Registered() {
		t.Error("Transparent fifo must not be registered")
	}

	b, _ := n.ComponentByName("b")
	if !b.Registered() || b.Buffer.Slots != 2 {
		t.Errorf("Unexpected buffer %+v", b.Buffer)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "malformed",
			input: `digraph { "a" [type="Sink" }`,
			want:  "",
		},
		{
			name:  "unknown type",
			input: `digraph { "a" [type="Widget"] }`,
			want:  "unknown component type",
		},
		{
			name: "dangling edge",
			input: `digraph {
				"a" [type="Source", out="out1:32"];
				"a" -> "ghost" [from="out1", to="in1"];
			}`,
			want: "unknown destination",
		},
		{
			name:  "non contiguous ports",
			input: `digraph { "a" [type="Operator", op="add_op", in="in1:32 in3:32", out="out1:32"] }`,
			want:  "numbered",
		},
		{
			name:  "duplicate ports",
			input: `digraph { "a" [type="Operator", op="add_op", in="in1:32 in1:32", out="out1:32"] }`,
			want:  "numbered",
		},
		{
			name: "port driven twice",
			input: `digraph {
				"a" [type="Source", out="out1:32"];
				"b" [type="Source", out="out1:32"];
				"c" [type="Sink", in="in1:32"];
				"a" -> "c";
				"b" -> "c";
			}`,
			want: "already connected",
		},
		{
			name: "port out of range",
			input: `digraph {
				"a" [type="Source", out="out1:32"];
				"c" [type="Sink", in="in1:32"];
				"a" -> "c" [from="out2", to="in1"];
			}`,
			want: "no output 2",
		},
		{
			name: "ambiguous default port",
			input: `digraph {
				"a" [type="Source", out="out1:32"];
				"c" [type="Operator", op="add_op", in="in1:32 in2:32", out="out1:32"];
				"a" -> "c";
			}`,
			want: "missing to port",
		},
		{
			name: "duplicate control merge",
			input: `digraph {
				"m1" [type="CntrlMerge", bbID=1, in="in1:0", out="out1:0"];
				"m2" [type="CntrlMerge", bbID=1, in="in1:0", out="out1:0"];
			}`,
			want: "control-merge point is not unique",
		},
		{
			name: "start and control merge in one block",
			input: `digraph {
				"start_0" [type="Entry", control="true", bbID=1, in="in1:0", out="out1:0"];
				"phiC_0" [type="CntrlMerge", bbID=1, in="in1:0", out="out1:0"];
			}`,
			want: "control-merge point is not unique",
		},
		{
			name:  "bad delay",
			input: `digraph { "a" [type="Sink", in="in1:32", delay="fast"] }`,
			want:  "not a number",
		},
		{
			name:  "negative latency",
			input: `digraph { "a" [type="Sink", in="in1:32", latency=-2] }`,
			want:  "negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadString(tt.input)
			if err == nil {
				t.Fatal("Expected load error")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Expected *LoadError, got %T: %v", err, err)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestReadErrorPosition(t *testing.T) {
	input := "digraph {\n\"a\" [type=\"Widget\"]\n}"
	_, err := ReadString(input, WithFileName("bad.dot"))
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *LoadError, got %v", err)
	}
	if le.File != "bad.dot" || le.Line != 2 {
		t.Errorf("Expected bad.dot:2, got %s:%d", le.File, le.Line)
	}
}

func TestOpenReportsErrorFlag(t *testing.T) {
	n := Open(filepath.Join(t.TempDir(), "missing.dot"), "")
	if n == nil {
		t.Fatal("Open must always return a netlist")
	}
	if !n.HasError() {
		t.Fatal("Expected error flag")
	}
	if n.Error() == "" {
		t.Error("Expected error message")
	}

	path := filepath.Join(t.TempDir(), "ok.dot")
	if err := os.WriteFile(path, []byte(pipelineDot), 0o644); err != nil {
		t.Fatal(err)
	}
	ok := Open(path, "")
	if ok.HasError() {
		t.Fatalf("Unexpected error: %s", ok.Error())
	}
	if ok.Error() != "" {
		t.Errorf("Expected empty message, got %q", ok.Error())
	}
}

func TestOpenWithBlockGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel.dot")
	bbPath := filepath.Join(dir, "kernel_bbgraph.dot")
	if err := os.WriteFile(path, []byte(pipelineDot), 0o644); err != nil {
		t.Fatal(err)
	}
	bb := `Digraph G {
		"block1";
		"block2";
		"block1" -> "block2" [color="blue", freq = 10];
		"block2" -> "block2" [color="red", freq = 90];
	}`
	if err := os.WriteFile(bbPath, []byte(bb), 0o644); err != nil {
		t.Fatal(err)
	}

	n := Open(path, bbPath)
	if n.HasError() {
		t.Fatalf("Unexpected error: %s", n.Error())
	}
	if !n.HasBlockGraph() {
		t.Fatal("Expected block graph")
	}
	g := n.BlockGraph()
	if g.Freq(2, 2) != 90 || g.MaxFreq() != 90 {
		t.Errorf("Unexpected frequencies: self=%v max=%v", g.Freq(2, 2), g.MaxFreq())
	}
	node, ok := g.Node(2)
	if !ok || len(node.Preds) != 2 || len(node.Succs) != 1 {
		t.Errorf("Unexpected block2 adjacency: %+v", node)
	}

	bad := filepath.Join(dir, "bad_bb.dot")
	if err := os.WriteFile(bad, []byte(`digraph { "entry" }`), 0o644); err != nil {
		t.Fatal(err)
	}
	if n := Open(path, bad); !n.HasError() {
		t.Error("Expected error for block node without number")
	}
}

func TestTimingLibraryFillsMissingValues(t *testing.T) {
	lib := timing.Table{}
	lib.Set("mul_op", timing.Entry{Delay: 0.5, Latency: 4})
	lib.Set("Fork", timing.Entry{Delay: 0.1})

	input := `digraph {
		"m" [type="Operator", op="mul_op", in="in1:32 in2:32", out="out1:32"];
		"f" [type="Fork", in="in1:32", out="out1:32 out2:32", delay=0.7];
	}`
	n := mustRead(t, input, WithTimingLibrary(lib))

	m, _ := n.ComponentByName("m")
	if m.Latency != 4 || m.Delay != 0.5 {
		t.Errorf("Expected library values, got delay=%v latency=%d", m.Delay, m.Latency)
	}
	f, _ := n.ComponentByName("f")
	if f.Delay != 0.7 {
		t.Errorf("Explicit delay must win over library, got %v", f.Delay)
	}
}

func TestWriteDotRoundTrip(t *testing.T) {
	n := mustRead(t, pipelineDot)

	var buf bytes.Buffer
	if err := n.WriteDot(&buf); err != nil {
		t.Fatalf("WriteDot failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "Digraph G {\n\tsplines=spline;") {
		t.Errorf("Unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "subgraph cluster_1") {
		t.Errorf("Missing block cluster:\n%s", out)
	}

	again := mustRead(t, out)
	if again.NumComponents() != n.NumComponents() || again.NumChannels() != n.NumChannels() {
		t.Fatalf("Round trip changed size: %d/%d -> %d/%d",
			n.NumComponents(), n.NumChannels(), again.NumComponents(), again.NumChannels())
	}
	for _, c := range n.Components() {
		d, ok := again.ComponentByName(c.Name)
		if !ok {
			t.Errorf("Component %s lost", c.Name)
			continue
		}
		if d.Kind != c.Kind || d.Block != c.Block || len(d.Inputs) != len(c.Inputs) || d.Delay != c.Delay {
			t.Errorf("Component %s changed: %+v -> %+v", c.Name, c, d)
		}
	}
	for _, ch := range again.Channels() {
		if ch.Attrs.Lookup("color") != "red" {
			t.Errorf("Channel %d lost its color", ch.ID)
		}
	}
}

func TestWriteDotAnnotations(t *testing.T) {
	n := mustRead(t, pipelineDot)
	if err := n.Annotate(0, BufferSpec{Slots: 2}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := n.WriteDot(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `slots=2, transparent="false"`) {
		t.Errorf("Expected buffer annotation in output:\n%s", buf.String())
	}

	n.ClearAnnotations()
	if n.Channel(0).Buffer != nil {
		t.Error("Expected annotation cleared")
	}
	if err := n.Annotate(99, BufferSpec{Slots: 1}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Expected ErrUnknownChannel, got %v", err)
	}
}

func TestWriteBlocksDot(t *testing.T) {
	n := New("blocks")
	a, _ := n.AddComponent(Component{Name: "a", Kind: Operator, Op: "add_op", Block: 1,
		Inputs: []Port{{Index: 1, Width: 32}}, Outputs: []Port{{Index: 1, Width: 32}}})
	b, _ := n.AddComponent(Component{Name: "b", Kind: Operator, Op: "add_op", Block: 2,
		Inputs: []Port{{Index: 1, Width: 32}}, Outputs: []Port{{Index: 1, Width: 32}}})
	if _, err := n.Connect(a, 1, b, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Connect(b, 1, a, 1); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := n.WriteBlocksDot(&buf); err != nil {
		t.Fatal(err)
	}
	g, err := ReadBlocks(&buf, "")
	if err != nil {
		t.Fatalf("Failed to read back block graph: %v", err)
	}
	if len(g.Blocks()) != 2 || len(g.Edges()) != 2 {
		t.Errorf("Unexpected block graph: blocks=%v edges=%d", g.Blocks(), len(g.Edges()))
	}
}

func TestReadBareNodeStatements(t *testing.T) {
	n := mustRead(t, `digraph G {
		"legend";
		"a" [type="Source", bbID=1, out="out1:32"];
		"b" [type="Sink", bbID=1, in="in1:32"];
		"a" -> "b" [from="out1", to="in1"];
	}`)
	if n.NumComponents() != 2 || n.NumChannels() != 1 {
		t.Errorf("Expected 2 components and 1 channel, got %d and %d", n.NumComponents(), n.NumChannels())
	}

	g, err := ReadBlocks(strings.NewReader(`Digraph G {
		"block1";
		"block2";
		"block1" -> "block2" [color = "blue", freq = 3];
	}`), "bb.dot")
	if err != nil {
		t.Fatalf("Failed to read block graph: %v", err)
	}
	if len(g.Blocks()) != 2 || g.Freq(1, 2) != 3 {
		t.Errorf("Unexpected block graph: blocks=%v freq=%v", g.Blocks(), g.Freq(1, 2))
	}
}

func TestBlockGraphRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.dot")
	bbPath := filepath.Join(dir, "loop_bbgraph.dot")
	if err := os.WriteFile(path, []byte(pipelineDot), 0o644); err != nil {
		t.Fatal(err)
	}
	bb := `Digraph G {
		"block1";
		"block2";
		"block1" -> "block2" [color="blue", freq = 10];
		"block2" -> "block2" [color="red", freq = 90];
	}`
	if err := os.WriteFile(bbPath, []byte(bb), 0o644); err != nil {
		t.Fatal(err)
	}

	n := Open(path, bbPath)
	if n.HasError() {
		t.Fatalf("Unexpected error: %s", n.Error())
	}

	var buf bytes.Buffer
	if err := n.WriteBlocksDot(&buf); err != nil {
		t.Fatal(err)
	}
	written := buf.String()
	if !strings.Contains(written, `"block1";`) {
		t.Errorf("Expected bare block node statements:\n%s", written)
	}

	g, err := ReadBlocks(&buf, "written.dot")
	if err != nil {
		t.Fatalf("Failed to read back block graph: %v\n%s", err, written)
	}
	if len(g.Blocks()) != 2 || len(g.Edges()) != 2 {
		t.Fatalf("Unexpected block graph: blocks=%v edges=%d", g.Blocks(), len(g.Edges()))
	}
	if g.Freq(1, 2) != 10 || g.Freq(2, 2) != 90 {
		t.Errorf("Frequencies lost: %v %v", g.Freq(1, 2), g.Freq(2, 2))
	}
	for _, e := range g.Edges() {
		if e.From == 1 && e.Attrs.Lookup("color") != "blue" {
			t.Errorf("Edge attributes lost: %+v", e)
		}
	}
}
