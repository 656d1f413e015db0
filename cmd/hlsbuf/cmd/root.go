package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose      bool
	configFile   string
	timingFile   string
	metricsFile  string
	traceSpans   bool
	verifyResult bool
)

var rootCmd = &cobra.Command{
	Use:   "hlsbuf",
	Short: "Elastic buffer insertion for dataflow circuits",
	Long: `Place elastic buffers on the channels of a dataflow netlist so that every
cycle is broken by a register and every combinational path fits the clock
period, then write the buffered netlist back as DOT.

Examples:
  hlsbuf buffers 5 0.5 cbc kernel.dot kernel_buf.dot           # Direct placement
  hlsbuf shab 5 0.5 cbc 1 kernel.dot kernel_bbgraph.dot \
         kernel_buf.dot kernel_buf_bbgraph.dot 180                # Per-block placement
  hlsbuf buffers --config hlsbuf.yaml --metrics-file m.prom ...  # With config and metrics`,
	Version: "0.3.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML file with placement weights and solver paths")
	rootCmd.PersistentFlags().StringVar(&timingFile, "timing", "", "s-expression timing table merged over the built-in one")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "print trace spans to stderr")
	rootCmd.PersistentFlags().BoolVar(&verifyResult, "verify", false, "check cycles and timing of the buffered netlist")
}
