package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/buffers"
)

var shabCmd = &cobra.Command{
	Use:   "shab <period> <buffer_delay> <solver> <sc_flag> [startBBidx] <infile> <bbinfile> <outfile> <bboutfile> <timeout>",
	Short: "Place elastic buffers per basic block",
	Long: `Solve buffer placement with channels grouped by basic block pair. With a
non-zero sc_flag the sequential-critical variant is used, weighting the
schedule length from startBBidx (default: the entry block). The timeout is
in seconds; when it elapses the best placement found so far is used.

Writes the buffered netlist to outfile and the block graph to bboutfile.

Examples:
  hlsbuf shab 5 0.5 cbc 0 fir.dot fir_bbgraph.dot fir_buf.dot fir_buf_bbgraph.dot 180
  hlsbuf shab 5 0.5 cbc 1 2 fir.dot fir_bbgraph.dot fir_buf.dot fir_buf_bbgraph.dot 60`,
	Args: cobra.RangeArgs(9, 10),
	RunE: runShab,
}

func init() {
	rootCmd.AddCommand(shabCmd)
}

func runShab(cmd *cobra.Command, args []string) (err error) {
	period, delay, err := parseTiming(args[0], args[1])
	if err != nil {
		return err
	}
	solverName := args[2]
	sc, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid sc flag %q", args[3])
	}

	opts := buffers.BBOptions{StartBlock: -1}
	files := args[4:]
	if len(args) == 10 {
		if opts.StartBlock, err = strconv.Atoi(args[4]); err != nil {
			return fmt.Errorf("invalid start block %q", args[4])
		}
		files = args[5:]
	}
	infile, bbinfile, outfile, bboutfile := files[0], files[1], files[2], files[3]
	seconds, err := strconv.Atoi(files[4])
	if err != nil || seconds < 0 {
		return fmt.Errorf("invalid timeout %q", files[4])
	}
	opts.Timeout = time.Duration(seconds) * time.Second

	s, err := newSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	nl, err := s.open(infile, bbinfile)
	if err != nil {
		return err
	}

	fmt.Printf("Adding elastic buffers with period=%g and buffer_delay=%g\n", period, delay)
	eng := s.engine(nl, solverName)
	var m *buffers.Model
	if sc != 0 {
		m, err = eng.AddElasticBuffersBBSC(cmd.Context(), period, delay, opts)
	} else {
		m, err = eng.AddElasticBuffersBB(cmd.Context(), period, delay, opts)
	}
	if err != nil {
		return err
	}
	if err := s.finish(m, nl, true); err != nil {
		return err
	}

	if err := writeFile(outfile, nl.WriteDot); err != nil {
		return err
	}
	return writeFile(bboutfile, nl.WriteBlocksDot)
}
