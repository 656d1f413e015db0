package solver

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/milp"
)

// NewCBC returns the COIN-OR CBC backend
func NewCBC(binary string) *External {
	return &External{inv: invocation{
		name:   "cbc",
		binary: binary,
		args: func(model, solution string, limit time.Duration) []string {
			args := []string{model}
			if limit > 0 {
				args = append(args, "sec", seconds(limit))
			}
			return append(args, "solve", "solu", solution)
		},
		parse: func(p *milp.Problem, r io.Reader, _ []byte, _ bool) (*milp.Solution, error) {
			if r == nil {
				return nil, fmt.Errorf("%w: no solution file", ErrBadOutput)
			}
			return parseCBC(p, r)
		},
	}}
}

// NewGLPK returns the GLPK glpsol backend
func NewGLPK(binary string) *External {
	return &External{inv: invocation{
		name:   "glpk",
		binary: binary,
		args: func(model, solution string, limit time.Duration) []string {
			args := []string{"--lp", model}
			if limit > 0 {
				args = append(args, "--tmlim", strconv.Itoa(int(math.Ceil(limit.Seconds()))))
			}
			return append(args, "-w", solution)
		},
		parse: func(p *milp.Problem, r io.Reader, _ []byte, limited bool) (*milp.Solution, error) {
			if r == nil {
				return nil, fmt.Errorf("%w: no solution file", ErrBadOutput)
			}
			return parseGLPK(p, r, limited)
		},
	}}
}

// NewHiGHS returns the HiGHS backend
func NewHiGHS(binary string) *External {
	return &External{inv: invocation{
		name:   "highs",
		binary: binary,
		args: func(model, solution string, limit time.Duration) []string {
			args := []string{"--model_file", model, "--solution_file", solution}
			if limit > 0 {
				args = append(args, "--time_limit", seconds(limit))
			}
			return args
		},
		parse: func(p *milp.Problem, r io.Reader, _ []byte, _ bool) (*milp.Solution, error) {
			if r == nil {
				return nil, fmt.Errorf("%w: no solution file", ErrBadOutput)
			}
			return parseHiGHS(p, r)
		},
	}}
}

// NewSCIP returns the SCIP backend
func NewSCIP(binary string) *External {
	return &External{inv: invocation{
		name:   "scip",
		binary: binary,
		args: func(model, solution string, limit time.Duration) []string {
			script := "read " + model
			if limit > 0 {
				script += " set limits time " + seconds(limit)
			}
			script += " optimize write solution " + solution + " quit"
			return []string{"-c", script}
		},
		parse: func(p *milp.Problem, r io.Reader, _ []byte, _ bool) (*milp.Solution, error) {
			if r == nil {
				return nil, fmt.Errorf("%w: no solution file", ErrBadOutput)
			}
			return parseSCIP(p, r)
		},
	}}
}

// NewGurobi returns the Gurobi command line backend
func NewGurobi(binary string) *External {
	return &External{inv: invocation{
		name:   "gurobi",
		binary: binary,
		args: func(model, solution string, limit time.Duration) []string {
			var args []string
			if limit > 0 {
				args = append(args, "TimeLimit="+seconds(limit))
			}
			return append(args, "ResultFile="+solution, model)
		},
		parse: parseGurobi,
	}}
}

// assign stores value under the variable called name
func assign(p *milp.Problem, values []float64, name, value string) error {
	id, ok := p.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: unknown variable %q", ErrBadOutput, name)
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: value of %s: %q", ErrBadOutput, name, value)
	}
	values[id] = f
	return nil
}

// parseCBC reads the output of "solu". Only nonzero columns are listed.
//
//	Optimal - objective value 1.10000000
//	      0 B_c0                 1                      0
func parseCBC(p *milp.Problem, r io.Reader) (*milp.Solution, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return nil, fmt.Errorf("%w: empty cbc solution", ErrBadOutput)
	}
	header := strings.TrimSpace(sc.Text())
	sol := &milp.Solution{}

	objective := math.Inf(1)
	if i := strings.Index(header, "objective value"); i >= 0 {
		if f, err := strconv.ParseFloat(strings.TrimSpace(header[i+len("objective value"):]), 64); err == nil {
			objective = f
		}
	}
	lower := strings.ToLower(header)
	switch {
	case strings.HasPrefix(lower, "optimal"):
		sol.Status = milp.Solved
	case strings.Contains(lower, "infeasible"):
		sol.Status = milp.Infeasible
		return sol, nil
	case strings.HasPrefix(lower, "stopped"):
		sol.Status = milp.TimedOut
		sol.HasIncumbent = objective < 1e40
		if !sol.HasIncumbent {
			return sol, nil
		}
	default:
		return nil, fmt.Errorf("%w: cbc status %q", ErrBadOutput, header)
	}

	values := make([]float64, p.NumVars())
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == "**" {
			fields = fields[1:]
		}
		if len(fields) < 3 {
			continue
		}
		if err := assign(p, values, fields[1], fields[2]); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	sol.Values = values
	return sol, nil
}

// parseGLPK reads glpsol's -w plain text format. Columns are numbered in
// order of first appearance, which WriteLP makes equal to VarID order.
//
//	s mip 3 3 o 2.5
//	j 1 1
func parseGLPK(p *milp.Problem, r io.Reader, limited bool) (*milp.Solution, error) {
	sc := bufio.NewScanner(r)
	sol := &milp.Solution{}
	values := make([]float64, p.NumVars())
	kind := ""
	seen := false

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "s":
			if len(fields) < 6 {
				return nil, fmt.Errorf("%w: glpk status line %q", ErrBadOutput, sc.Text())
			}
			kind = fields[1]
			seen = true
			status := fields[4]
			if kind == "bas" && len(fields) >= 7 {
				// s bas rows cols primal dual obj
				switch {
				case fields[4] == "f" && fields[5] == "f":
					status = "o"
				case fields[4] == "n" || fields[4] == "i":
					status = "n"
				default:
					status = "u"
				}
			}
			switch status {
			case "o":
				sol.Status = milp.Solved
			case "f":
				sol.Status = milp.TimedOut
				sol.HasIncumbent = true
			case "n", "i":
				sol.Status = milp.Infeasible
			default:
				if !limited {
					return nil, fmt.Errorf("%w: glpk status %q", ErrBadOutput, status)
				}
				sol.Status = milp.TimedOut
			}
		case "j":
			col := 2
			if kind == "bas" {
				col = 3
			}
			if len(fields) <= col {
				return nil, fmt.Errorf("%w: glpk column line %q", ErrBadOutput, sc.Text())
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil || idx < 1 || idx > len(values) {
				return nil, fmt.Errorf("%w: glpk column %q", ErrBadOutput, fields[1])
			}
			if values[idx-1], err = strconv.ParseFloat(fields[col], 64); err != nil {
				return nil, fmt.Errorf("%w: glpk value %q", ErrBadOutput, fields[col])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	if !seen {
		return nil, fmt.Errorf("%w: glpk solution without status", ErrBadOutput)
	}
	if sol.Status == milp.Solved || sol.HasIncumbent {
		sol.Values = values
	}
	return sol, nil
}

// parseHiGHS reads a HiGHS solution file
//
//	Model status
//	Optimal
//	# Primal solution values
//	Feasible
//	Objective 2.5
//	# Columns 3
//	x 4
func parseHiGHS(p *milp.Problem, r io.Reader) (*milp.Solution, error) {
	sc := bufio.NewScanner(r)
	sol := &milp.Solution{}
	status := ""
	feasible := false
	var values []float64

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "Model status":
			if sc.Scan() {
				status = strings.TrimSpace(sc.Text())
			}
		case line == "# Primal solution values":
			if sc.Scan() {
				feasible = strings.TrimSpace(sc.Text()) == "Feasible"
			}
		case strings.HasPrefix(line, "# Columns"):
			if values != nil {
				continue // dual section repeats the header
			}
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "# Columns")))
			if err != nil {
				return nil, fmt.Errorf("%w: highs column count %q", ErrBadOutput, line)
			}
			values = make([]float64, p.NumVars())
			for i := 0; i < n && sc.Scan(); i++ {
				fields := strings.Fields(sc.Text())
				if len(fields) < 2 {
					return nil, fmt.Errorf("%w: highs column line %q", ErrBadOutput, sc.Text())
				}
				if err := assign(p, values, fields[0], fields[1]); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}

	switch strings.ToLower(status) {
	case "optimal":
		sol.Status = milp.Solved
	case "infeasible", "primal infeasible":
		sol.Status = milp.Infeasible
		return sol, nil
	case "time limit reached", "interrupted by user", "iteration limit reached":
		sol.Status = milp.TimedOut
		sol.HasIncumbent = feasible && values != nil
	default:
		return nil, fmt.Errorf("%w: highs status %q", ErrBadOutput, status)
	}
	if sol.Status == milp.Solved && values == nil {
		return nil, fmt.Errorf("%w: highs solution without columns", ErrBadOutput)
	}
	if sol.Status == milp.Solved || sol.HasIncumbent {
		sol.Values = values
	}
	return sol, nil
}

// parseSCIP reads "write solution" output. Only nonzero variables are listed.
//
//	solution status: optimal solution found
//	objective value:                                  2.5
//	x                                                   4 	(obj:0)
func parseSCIP(p *milp.Problem, r io.Reader) (*milp.Solution, error) {
	sc := bufio.NewScanner(r)
	sol := &milp.Solution{}
	values := make([]float64, p.NumVars())
	status := ""
	hasValues := false

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "solution status:"):
			status = strings.TrimSpace(strings.TrimPrefix(line, "solution status:"))
		case strings.HasPrefix(line, "objective value:"):
			hasValues = true
		case strings.HasPrefix(line, "no solution available"):
			hasValues = false
		default:
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			if err := assign(p, values, fields[0], fields[1]); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}

	switch {
	case strings.HasPrefix(status, "optimal"):
		sol.Status = milp.Solved
	case strings.HasPrefix(status, "infeasible"):
		sol.Status = milp.Infeasible
		return sol, nil
	case strings.Contains(status, "limit reached"), strings.HasPrefix(status, "user interrupt"):
		sol.Status = milp.TimedOut
		sol.HasIncumbent = hasValues
	default:
		return nil, fmt.Errorf("%w: scip status %q", ErrBadOutput, status)
	}
	if sol.Status == milp.Solved || sol.HasIncumbent {
		sol.Values = values
	}
	return sol, nil
}

// parseGurobi takes the status from the console log and the values from
// the .sol result file, which Gurobi only writes when it has a solution.
//
//	# Objective value = 2.5
//	x 4
func parseGurobi(p *milp.Problem, r io.Reader, output []byte, _ bool) (*milp.Solution, error) {
	log := string(output)
	sol := &milp.Solution{}
	switch {
	case strings.Contains(log, "Optimal solution found"):
		sol.Status = milp.Solved
	case strings.Contains(log, "Model is infeasible"), strings.Contains(log, "Infeasible model"):
		sol.Status = milp.Infeasible
		return sol, nil
	case strings.Contains(log, "Time limit reached"):
		sol.Status = milp.TimedOut
		sol.HasIncumbent = r != nil
		if r == nil {
			return sol, nil
		}
	default:
		return nil, fmt.Errorf("%w: gurobi status not found", ErrBadOutput)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: no solution file", ErrBadOutput)
	}

	values := make([]float64, p.NumVars())
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if err := assign(p, values, fields[0], fields[1]); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	sol.Values = values
	return sol, nil
}
