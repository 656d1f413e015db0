package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buffersCmd = &cobra.Command{
	Use:   "buffers <period> <buffer_delay> <solver> <infile> <outfile>",
	Short: "Place elastic buffers on a whole netlist",
	Long: `Solve buffer placement over the whole netlist at once and write the
buffered netlist to outfile. When no placement exists the input netlist is
written unchanged.

Solvers: cbc, glpk, highs, scip, gurobi, sim (in-process)

Examples:
  hlsbuf buffers 5 0.5 cbc fir.dot fir_buf.dot
  hlsbuf buffers 4 0 sim gcd.dot gcd_buf.dot`,
	Args: cobra.ExactArgs(5),
	RunE: runBuffers,
}

func init() {
	rootCmd.AddCommand(buffersCmd)
}

func runBuffers(cmd *cobra.Command, args []string) (err error) {
	period, delay, err := parseTiming(args[0], args[1])
	if err != nil {
		return err
	}
	solverName, infile, outfile := args[2], args[3], args[4]

	s, err := newSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	nl, err := s.open(infile, "")
	if err != nil {
		return err
	}

	fmt.Printf("Adding elastic buffers with period=%g and buffer_delay=%g\n", period, delay)
	m, err := s.engine(nl, solverName).AddElasticBuffers(cmd.Context(), period, delay)
	if err != nil {
		return err
	}
	if err := s.finish(m, nl, false); err != nil {
		return err
	}
	return writeFile(outfile, nl.WriteDot)
}
