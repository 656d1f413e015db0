package buffers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceHLS/pkg/netlist"
)

var (
	// ErrUnbufferedCycle is returned by VerifyCycles
	ErrUnbufferedCycle = errors.New("buffers: cycle without an opaque buffer")

	// ErrCombinationalLoop is returned by VerifyTiming when arrival times
	// depend on themselves
	ErrCombinationalLoop = errors.New("buffers: combinational loop")

	// ErrPeriodExceeded is returned by VerifyTiming
	ErrPeriodExceeded = errors.New("buffers: combinational path exceeds the period")
)

const verifyTolerance = 1e-6

// VerifyCycles checks that every elementary cycle passes through an opaque
// Buffer component
func VerifyCycles(nl *netlist.Netlist) error {
	cycles, err := nl.ElementaryCycles(0)
	if err != nil {
		return err
	}
	for _, cyc := range cycles {
		ok := false
		names := make([]string, 0, len(cyc))
		for _, id := range cyc.Components(nl) {
			c := nl.Component(id)
			names = append(names, c.Name)
			if c.Kind == netlist.Buffer && c.Buffer.Opaque() {
				ok = true
			}
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnbufferedCycle, strings.Join(names, " -> "))
		}
	}
	return nil
}

// VerifyTiming computes channel arrival times with the same delay model as
// the formulations and checks that no combinational path is longer than
// period. Opaque buffers and memory interfaces launch at their delay,
// pipelined operators at zero.
func VerifyTiming(nl *netlist.Netlist, period float64) error {
	v := &timingCheck{
		nl:     nl,
		period: period,
		arr:    make([]float64, nl.NumChannels()),
		state:  make([]uint8, nl.NumChannels()),
	}
	for _, ch := range nl.Channels() {
		if _, err := v.arrival(ch.ID); err != nil {
			return err
		}
	}

	for _, c := range nl.Components() {
		limit := period
		if !(c.Kind == netlist.Buffer && c.Buffer.Opaque()) && !c.Kind.IsMemory() {
			if c.Registered() || len(connected(nl.OutChannels(c.ID))) == 0 {
				limit = period - c.Delay
			}
		}
		for _, a := range connected(nl.InChannels(c.ID)) {
			if v.arr[a] > limit+verifyTolerance {
				return fmt.Errorf("%w: %.3f at %s input (limit %.3f)", ErrPeriodExceeded, v.arr[a], c.Name, limit)
			}
		}
	}
	for _, ch := range nl.Channels() {
		if v.arr[ch.ID] > period+verifyTolerance {
			return fmt.Errorf("%w: %.3f on channel %s -> %s", ErrPeriodExceeded, v.arr[ch.ID],
				nl.Component(ch.Src).Name, nl.Component(ch.Dst).Name)
		}
	}
	return nil
}

type timingCheck struct {
	nl     *netlist.Netlist
	period float64
	arr    []float64
	state  []uint8 // 0 unvisited, 1 in progress, 2 done
}

// arrival returns the arrival time on channel id, which is the same at both
// ends of a channel
func (v *timingCheck) arrival(id netlist.ChannelID) (float64, error) {
	switch v.state[id] {
	case 1:
		return 0, fmt.Errorf("%w: through %s", ErrCombinationalLoop, v.nl.Component(v.nl.Channel(id).Src).Name)
	case 2:
		return v.arr[id], nil
	}
	v.state[id] = 1

	c := v.nl.Component(v.nl.Channel(id).Src)
	var t float64
	switch {
	case (c.Kind == netlist.Buffer && c.Buffer.Opaque()) || c.Kind.IsMemory():
		t = c.Delay
	case c.Registered():
		t = 0
	default:
		t = c.Delay
		for _, a := range connected(v.nl.InChannels(c.ID)) {
			in, err := v.arrival(a)
			if err != nil {
				return 0, err
			}
			if in+c.Delay > t {
				t = in + c.Delay
			}
		}
	}

	v.arr[id] = t
	v.state[id] = 2
	return t, nil
}
