package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/buffers"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/netlist"
	"github.com/OpenTraceLab/OpenTraceHLS/pkg/timing"
)

// session holds everything a command needs besides its arguments
type session struct {
	log      *slog.Logger
	cfg      *buffers.Config
	lib      timing.Table
	registry *prometheus.Registry
	metrics  *buffers.Metrics
	tp       *sdktrace.TracerProvider
}

func newSession() (*session, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	s := &session{
		log:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		cfg:      buffers.DefaultConfig(),
		lib:      timing.Default(),
		registry: prometheus.NewRegistry(),
	}
	s.metrics = buffers.NewMetrics(s.registry)

	if configFile != "" {
		cfg, err := buffers.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		s.cfg = cfg
	}
	if timingFile != "" {
		t, err := timing.LoadFile(timingFile)
		if err != nil {
			return nil, err
		}
		s.lib = s.lib.Merge(t)
	}
	if traceSpans {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		s.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	}
	return s, nil
}

func (s *session) open(path, bbPath string) (*netlist.Netlist, error) {
	nl := netlist.Open(path, bbPath, netlist.WithTimingLibrary(s.lib), netlist.WithLogger(s.log))
	if nl.HasError() {
		return nil, nl.Err()
	}
	s.log.Debug("netlist loaded", "file", path, "components", nl.NumComponents(), "channels", nl.NumChannels())
	return nl, nil
}

func (s *session) engine(nl *netlist.Netlist, solverName string) *buffers.Engine {
	opts := []buffers.Option{
		buffers.WithConfig(s.cfg),
		buffers.WithLogger(s.log),
		buffers.WithMetrics(s.metrics),
	}
	if s.tp != nil {
		opts = append(opts, buffers.WithTracer(s.tp.Tracer("hlsbuf")))
	}
	eng := buffers.New(nl, opts...)
	eng.SetSolver(solverName)
	return eng
}

// finish instantiates a solved model and reports the outcome. Models that
// did not solve leave the netlist untouched, which is not an error.
func (s *session) finish(m *buffers.Model, nl *netlist.Netlist, acceptIncumbent bool) error {
	if m.State() == buffers.TimedOut && acceptIncumbent && m.HasIncumbent() {
		if err := m.AcceptIncumbent(); err != nil {
			return err
		}
		fmt.Println("Time limit reached, using the best placement found")
	}

	if m.State() != buffers.Solved {
		fmt.Printf("Buffer placement %s, writing the netlist without new buffers\n", m.State())
		if err := m.Err(); err != nil {
			s.log.Error("buffer placement failed", "status", m.State().String(), "error", err)
		}
		return nil
	}

	ids, err := m.Instantiate()
	if err != nil {
		return err
	}
	fmt.Printf("Inserted %d buffer(s), cost %.4g\n", len(ids), m.Objective())

	if verifyResult {
		if err := buffers.VerifyCycles(nl); err != nil {
			s.log.Warn("verification failed", "check", "cycles", "error", err)
		}
		if err := buffers.VerifyTiming(nl, m.Period()); err != nil {
			s.log.Warn("verification failed", "check", "timing", "error", err)
		}
	}
	return nil
}

func (s *session) close() error {
	var errs []error
	if s.tp != nil {
		errs = append(errs, s.tp.Shutdown(context.Background()))
	}
	if metricsFile != "" {
		errs = append(errs, prometheus.WriteToTextfile(metricsFile, s.registry))
	}
	return errors.Join(errs...)
}

func parseTiming(periodArg, delayArg string) (period, delay float64, err error) {
	if period, err = strconv.ParseFloat(periodArg, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid period %q", periodArg)
	}
	if delay, err = strconv.ParseFloat(delayArg, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid buffer delay %q", delayArg)
	}
	return period, delay, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
