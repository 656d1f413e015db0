// Package timing provides read-only delay and latency lookup for dataflow
// components. Tables are keyed by operator mnemonic ("add_op") or by
// component type name ("Fork") and can be loaded from s-expression files.
package timing

import (
	"sort"
	"strings"
)

// Entry holds the characterisation of one component
type Entry struct {
	Delay   float64 // combinational delay in ns
	Latency int     // pipeline depth in cycles
	II      int     // initiation interval in cycles
}

// Library is a read-only timing lookup
type Library interface {
	Lookup(key string) (Entry, bool)
}

// Table is an in-memory Library. Keys are matched case-insensitively.
type Table map[string]Entry

// Lookup implements Library
func (t Table) Lookup(key string) (Entry, bool) {
	e, ok := t[strings.ToLower(key)]
	return e, ok
}

// Set stores an entry
func (t Table) Set(key string, e Entry) {
	if e.II == 0 {
		e.II = 1
	}
	t[strings.ToLower(key)] = e
}

// Keys returns the sorted table keys
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new table with the entries of t overridden by o
func (t Table) Merge(o Table) Table {
	out := make(Table, len(t)+len(o))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Default returns the built-in 32-bit characterisation used when no table
// file is supplied.
func Default() Table {
	t := Table{}
	for key, e := range map[string]Entry{
		"add_op":           {Delay: 1.693},
		"sub_op":           {Delay: 1.693},
		"and_op":           {Delay: 1.0},
		"or_op":            {Delay: 1.0},
		"xor_op":           {Delay: 1.0},
		"shl_op":           {Delay: 1.0},
		"lshr_op":          {Delay: 1.0},
		"ashr_op":          {Delay: 1.0},
		"icmp_op":          {Delay: 1.907},
		"select_op":        {Delay: 1.397},
		"zext_op":          {},
		"sext_op":          {},
		"getelementptr_op": {Delay: 2.966},
		"mul_op":           {Delay: 0, Latency: 4},
		"udiv_op":          {Delay: 0, Latency: 36},
		"sdiv_op":          {Delay: 0, Latency: 36},
		"fadd_op":          {Delay: 0, Latency: 10},
		"fsub_op":          {Delay: 0, Latency: 10},
		"fmul_op":          {Delay: 0, Latency: 6},
		"fdiv_op":          {Delay: 0, Latency: 30},
		"fcmp_op":          {Delay: 0, Latency: 2},
		"load_op":          {Delay: 0, Latency: 2},
		"store_op":         {Delay: 0},
		"ret_op":           {},
		"fork":             {Delay: 0.1},
		"merge":            {Delay: 0.366},
		"cntrlmerge":       {Delay: 0.366},
		"mux":              {Delay: 0.366},
		"branch":           {Delay: 0.3},
		"buffer":           {},
		"fifo":             {},
		"constant":         {},
		"source":           {},
		"sink":             {},
		"entry":            {},
		"exit":             {},
	} {
		t.Set(key, e)
	}
	return t
}
