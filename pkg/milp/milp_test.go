package milp

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) (*Problem, VarID, VarID, VarID) {
	t.Helper()
	p := NewProblem("sample")
	x, err := p.AddVar("x", Continuous, 0, 10)
	require.NoError(t, err)
	b, err := p.AddVar("b", Binary, -5, 5)
	require.NoError(t, err)
	n, err := p.AddVar("n", Integer, 0, math.Inf(1))
	require.NoError(t, err)

	require.NoError(t, p.AddConstraint("c1", []Term{T(1, x), T(-3, b)}, GE, 1))
	require.NoError(t, p.AddConstraint("c2", []Term{T(1, n), T(-1, b)}, GE, 0))
	require.NoError(t, p.SetObjective([]Term{T(2, n), T(0.5, b)}))
	return p, x, b, n
}

func TestAddVar(t *testing.T) {
	p, _, b, _ := sample(t)

	assert.Equal(t, 3, p.NumVars())
	v := p.Var(b)
	assert.Equal(t, 0.0, v.Lo, "binary lower bound is forced to 0")
	assert.Equal(t, 1.0, v.Hi, "binary upper bound is forced to 1")

	_, err := p.AddVar("x", Continuous, 0, 1)
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = p.AddVar("bad name", Continuous, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = p.AddVar("empty", Integer, 3, 1)
	assert.Error(t, err)

	id, ok := p.Lookup("n")
	assert.True(t, ok)
	assert.Equal(t, VarID(2), id)
}

func TestAddConstraintMergesTerms(t *testing.T) {
	p := NewProblem("")
	x, _ := p.AddVar("x", Continuous, 0, 1)
	y, _ := p.AddVar("y", Continuous, 0, 1)

	require.NoError(t, p.AddConstraint("c", []Term{T(1, y), T(2, x), T(-1, y), T(1, x)}, LE, 3))
	c := p.Constraints()[0]
	require.Len(t, c.Terms, 1)
	assert.Equal(t, Term{Var: x, Coef: 3}, c.Terms[0])

	assert.Error(t, p.AddConstraint("zero", []Term{T(1, x), T(-1, x)}, LE, 0))
	assert.Error(t, p.AddConstraint("unknown", []Term{T(1, 7)}, LE, 0))
	assert.ErrorIs(t, p.AddConstraint("c", []Term{T(1, x)}, LE, 0), ErrDuplicateName)
	assert.Error(t, p.AddConstraint("nan", []Term{T(math.NaN(), x)}, LE, 0))
}

func TestCheck(t *testing.T) {
	p, _, _, _ := sample(t)

	assert.NoError(t, Check(p, []float64{4, 1, 2}, DefaultTolerance))
	assert.NoError(t, Check(p, []float64{1, 0, 0}, DefaultTolerance))

	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"wrong length", []float64{1, 0}, "values"},
		{"bound", []float64{11, 0, 0}, "outside"},
		{"integrality", []float64{4, 1, 1.5}, "integral"},
		{"constraint", []float64{3, 1, 1}, "c1"},
		{"linking", []float64{4, 1, 0}, "c2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(p, tt.values, DefaultTolerance)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.InDelta(t, 4.5, p.ObjectiveValue([]float64{4, 1, 2}), 1e-9)
}

func TestRoundIntegers(t *testing.T) {
	p, _, _, _ := sample(t)
	values := []float64{0.4, 0.9999999, 2.0000001}
	p.RoundIntegers(values)
	assert.Equal(t, []float64{0.4, 1, 2}, values)
}

func TestWriteLP(t *testing.T) {
	p, _, _, _ := sample(t)

	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, p))
	out := buf.String()

	assert.Contains(t, out, "Minimize\n obj: 0 x + 0.5 b + 2 n\n")
	assert.Contains(t, out, " c1: 1 x - 3 b >= 1\n")
	assert.Contains(t, out, " c2: - 1 b + 1 n >= 0\n")
	assert.Contains(t, out, " 0 <= x <= 10\n")
	assert.Contains(t, out, " n >= 0\n")
	assert.Contains(t, out, "Generals\n n\n")
	assert.Contains(t, out, "Binaries\n b\n")
	assert.True(t, strings.HasSuffix(out, "End\n"))

	sections := []string{"Minimize", "Subject To", "Bounds", "Generals", "Binaries", "End"}
	last := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		require.GreaterOrEqual(t, idx, 0, s)
		assert.Greater(t, idx, last, "section %s out of order", s)
		last = idx
	}
}

func TestWriteLPWrapsLongExpressions(t *testing.T) {
	p := NewProblem("wide")
	var terms []Term
	for i := 0; i < 20; i++ {
		v, err := p.AddVar("v"+string(rune('a'+i)), Binary, 0, 1)
		require.NoError(t, err)
		terms = append(terms, T(1, v))
	}
	require.NoError(t, p.AddConstraint("sum", terms, GE, 1))

	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, p))
	for _, line := range strings.Split(buf.String(), "\n") {
		assert.LessOrEqual(t, strings.Count(line, " + "), termsPerLine)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "solved", Solved.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "Status(9)", Status(9).String())

	var s *Solution
	assert.False(t, s.Usable())
	assert.Zero(t, s.Value(0))
}
