package timing

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chewxy/sexp"
)

// Load reads a timing table from s-expressions of the form
//
//	(component add_op (delay 1.693) (latency 0) (ii 1))
//
// Top-level forms may be wrapped in a single (library ...) form.
func Load(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("timing: read: %w", err)
	}
	forms, err := sexp.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("timing: parse error: %w", err)
	}

	t := Table{}
	for _, form := range forms {
		if err := loadForm(t, form); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// LoadFile reads a timing table from a file path
func LoadFile(filename string) (Table, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("timing: failed to open file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

func loadForm(t Table, form sexp.Sexp) error {
	items := toSlice(form)
	if len(items) == 0 {
		return nil
	}
	switch head := atom(items[0]); head {
	case "library":
		for _, item := range items[1:] {
			if err := loadForm(t, item); err != nil {
				return err
			}
		}
		return nil
	case "component":
		return loadComponent(t, items)
	default:
		return fmt.Errorf("timing: unexpected form %q", head)
	}
}

func loadComponent(t Table, items []sexp.Sexp) error {
	if len(items) < 2 || !items[1].IsLeaf() {
		return fmt.Errorf("timing: component without name")
	}
	name := atom(items[1])
	e := Entry{II: 1}
	for _, prop := range items[2:] {
		kv := toSlice(prop)
		if len(kv) != 2 {
			return fmt.Errorf("timing: %s: malformed property %v", name, prop)
		}
		key, val := atom(kv[0]), atom(kv[1])
		var err error
		switch key {
		case "delay":
			e.Delay, err = strconv.ParseFloat(val, 64)
		case "latency":
			e.Latency, err = strconv.Atoi(val)
		case "ii":
			e.II, err = strconv.Atoi(val)
		default:
			return fmt.Errorf("timing: %s: unknown property %q", name, key)
		}
		if err != nil {
			return fmt.Errorf("timing: %s: invalid %s %q: %w", name, key, val, err)
		}
	}
	if e.Delay < 0 || e.Latency < 0 || e.II < 1 {
		return fmt.Errorf("timing: %s: negative delay or latency, or II below 1", name)
	}
	t.Set(name, e)
	return nil
}

// toSlice returns the elements of a list form, or nil for an atom
func toSlice(s sexp.Sexp) []sexp.Sexp {
	switch v := s.(type) {
	case sexp.List:
		return v
	case *sexp.Strict:
		var items []sexp.Sexp
		for cur := sexp.Sexp(v); cur != nil; {
			st, ok := cur.(*sexp.Strict)
			if !ok {
				items = append(items, cur)
				break
			}
			items = append(items, st.Head())
			cur = st.Tail()
		}
		return items
	}
	return nil
}

func atom(s sexp.Sexp) string {
	if s == nil || !s.IsLeaf() {
		return ""
	}
	return strings.Trim(strings.TrimSpace(fmt.Sprint(s)), `"`)
}
