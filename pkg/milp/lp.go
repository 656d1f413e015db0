package milp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const termsPerLine = 8

// WriteLP writes p in CPLEX LP format. Every variable appears in the
// objective, with coefficient 0 if unused, so that solvers that number
// columns by first appearance number them in VarID order.
func WriteLP(w io.Writer, p *Problem) error {
	bw := bufio.NewWriter(w)
	if p.Name != "" {
		fmt.Fprintf(bw, "\\ Problem: %s\n", p.Name)
	}

	coef := make([]float64, len(p.vars))
	for _, t := range p.obj {
		coef[t.Var] = t.Coef
	}
	all := make([]Term, len(p.vars))
	for i := range p.vars {
		all[i] = Term{Var: VarID(i), Coef: coef[i]}
	}
	fmt.Fprintln(bw, "Minimize")
	fmt.Fprintf(bw, " obj:%s\n", p.expr(all, true))

	fmt.Fprintln(bw, "Subject To")
	for _, c := range p.cons {
		fmt.Fprintf(bw, " %s:%s %s %s\n", c.Name, p.expr(c.Terms, false), c.Sense, num(c.RHS))
	}

	fmt.Fprintln(bw, "Bounds")
	for _, v := range p.vars {
		if v.Kind == Binary {
			continue
		}
		switch {
		case math.IsInf(v.Lo, -1) && math.IsInf(v.Hi, 1):
			fmt.Fprintf(bw, " %s free\n", v.Name)
		case v.Lo == v.Hi:
			fmt.Fprintf(bw, " %s = %s\n", v.Name, num(v.Lo))
		case math.IsInf(v.Hi, 1):
			fmt.Fprintf(bw, " %s >= %s\n", v.Name, num(v.Lo))
		case math.IsInf(v.Lo, -1):
			fmt.Fprintf(bw, " -inf <= %s <= %s\n", v.Name, num(v.Hi))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", num(v.Lo), v.Name, num(v.Hi))
		}
	}

	writeSection(bw, "Generals", p.vars, Integer)
	writeSection(bw, "Binaries", p.vars, Binary)
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func writeSection(bw *bufio.Writer, title string, vars []Var, kind VarKind) {
	var names []string
	for _, v := range vars {
		if v.Kind == kind {
			names = append(names, v.Name)
		}
	}
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(bw, title)
	for i := 0; i < len(names); i += termsPerLine {
		end := min(i+termsPerLine, len(names))
		fmt.Fprintf(bw, " %s\n", strings.Join(names[i:end], " "))
	}
}

// expr renders a linear expression, wrapping long lines
func (p *Problem) expr(terms []Term, keepZero bool) string {
	var b strings.Builder
	n := 0
	for _, t := range terms {
		if t.Coef == 0 && !keepZero {
			continue
		}
		if n > 0 && n%termsPerLine == 0 {
			b.WriteString("\n   ")
		}
		sign := "+"
		c := t.Coef
		if c < 0 || (c == 0 && math.Signbit(c)) {
			sign = "-"
			c = -c
		}
		if n == 0 && sign == "+" {
			fmt.Fprintf(&b, " %s %s", num(c), p.vars[t.Var].Name)
		} else {
			fmt.Fprintf(&b, " %s %s %s", sign, num(c), p.vars[t.Var].Name)
		}
		n++
	}
	if n == 0 {
		return " 0"
	}
	return b.String()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
