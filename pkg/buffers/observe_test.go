package buffers

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	nl, _, _ := ring(t, 3, 1, 1, 1)
	e := simEngine(nl, WithMetrics(metrics))
	m, err := e.AddElasticBuffers(context.Background(), 5, 1)
	require.NoError(t, err)
	_, err = m.Instantiate()
	require.NoError(t, err)

	infeasible, _, _ := ring(t, 3, 0, 1, 1)
	_, err = simEngine(infeasible, WithMetrics(metrics)).AddElasticBuffers(context.Background(), 3, 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.solves.WithLabelValues("direct", "solved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.solves.WithLabelValues("direct", "infeasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.inserted))
	assert.Equal(t, float64(m.Problem().NumVars()), testutil.ToFloat64(metrics.variables.WithLabelValues("direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cycles.WithLabelValues("direct")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.solves))

	problems, err := testutil.GatherAndLint(reg)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeBuild(Direct, 1, 1, 1)
		m.observeSolve(Direct, "solved", 0)
		m.observeInserted(1)
	})
}

func TestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	nl, _, _ := ring(t, 3, 1, 1, 2)
	e := simEngine(nl, WithTracer(tp.Tracer("test")))
	m, err := e.AddElasticBuffersBBSC(context.Background(), 5, 1, BBOptions{StartBlock: -1})
	require.NoError(t, err)
	_, err = m.Instantiate()
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"buffers.build", "buffers.solve", "buffers.bb_sc", "buffers.instantiate"}, names)
}

func TestFormulationAndStateNames(t *testing.T) {
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "bb", BasicBlock.String())
	assert.Equal(t, "bb_sc", Sequential.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "instantiated", Instantiated.String())
}
