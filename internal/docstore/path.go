package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// segment is one step of an attribute path: a map field or a list index.
type segment struct {
	name  string
	index int
	isIdx bool
}

func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty attribute path")
	}
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		name := part
		var idxs []int
		if i := strings.IndexByte(part, '['); i >= 0 {
			name = part[:i]
			rest := part[i:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("bad attribute path %q", path)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("bad attribute path %q", path)
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("bad index in attribute path %q", path)
				}
				idxs = append(idxs, n)
				rest = rest[end+1:]
			}
		}
		if name == "" {
			return nil, fmt.Errorf("bad attribute path %q", path)
		}
		segs = append(segs, segment{name: name})
		for _, n := range idxs {
			segs = append(segs, segment{index: n, isIdx: true})
		}
	}
	return segs, nil
}

// normalize turns a Go value into the generic form produced by decoding JSON,
// so it can be stored in or compared against a decoded document.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func lookup(doc map[string]any, segs []segment) (any, bool) {
	var cur any = doc
	for _, s := range segs {
		if s.isIdx {
			list, ok := cur.([]any)
			if !ok || s.index >= len(list) {
				return nil, false
			}
			cur = list[s.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[s.name]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign sets v at segs, creating intermediate maps. Setting a list element
// past the end appends it.
func assign(doc map[string]any, segs []segment, v any) error {
	parent, last, err := parentOf(doc, segs, true)
	if err != nil {
		return err
	}
	return setChild(doc, segs[:len(segs)-1], parent, last, v)
}

func remove(doc map[string]any, segs []segment) error {
	parent, last, err := parentOf(doc, segs, false)
	if err != nil {
		return nil
	}
	if !last.isIdx {
		if m, ok := parent.(map[string]any); ok {
			delete(m, last.name)
		}
		return nil
	}
	list, ok := parent.([]any)
	if !ok || last.index >= len(list) {
		return nil
	}
	out := make([]any, 0, len(list)-1)
	out = append(out, list[:last.index]...)
	out = append(out, list[last.index+1:]...)
	return setChild(doc, segs[:len(segs)-1], parent, segment{}, out)
}

// parentOf walks to the container holding the final segment.
func parentOf(doc map[string]any, segs []segment, create bool) (any, segment, error) {
	var cur any = doc
	for i, s := range segs[:len(segs)-1] {
		next := segs[i+1]
		if s.isIdx {
			list, ok := cur.([]any)
			if !ok || s.index >= len(list) {
				return nil, s, fmt.Errorf("list index %d out of range", s.index)
			}
			cur = list[s.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, s, fmt.Errorf("attribute %q is not a map", s.name)
		}
		child, ok := m[s.name]
		if !ok || child == nil {
			if !create || next.isIdx {
				return nil, s, fmt.Errorf("attribute %q is missing", s.name)
			}
			child = map[string]any{}
			m[s.name] = child
		}
		cur = child
	}
	return cur, segs[len(segs)-1], nil
}

// setChild stores v under last in parent. A zero last replaces parent itself,
// which matters for lists because their headers are held by value.
func setChild(doc map[string]any, parentSegs []segment, parent any, last segment, v any) error {
	if last == (segment{}) {
		if len(parentSegs) == 0 {
			return fmt.Errorf("cannot replace document root")
		}
		gp, ls, err := parentOf(doc, parentSegs, false)
		if err != nil {
			return err
		}
		return setChild(doc, parentSegs[:len(parentSegs)-1], gp, ls, v)
	}
	if !last.isIdx {
		m, ok := parent.(map[string]any)
		if !ok {
			return fmt.Errorf("attribute %q has no map parent", last.name)
		}
		m[last.name] = v
		return nil
	}
	list, ok := parent.([]any)
	if !ok {
		return fmt.Errorf("index %d has no list parent", last.index)
	}
	if last.index < len(list) {
		list[last.index] = v
		return nil
	}
	return setChild(doc, parentSegs, parent, segment{}, append(list, v))
}

// appendItems concatenates the normalized slice items onto the list at segs.
func appendItems(doc map[string]any, segs []segment, items any) error {
	add, ok := items.([]any)
	if !ok && items != nil {
		return fmt.Errorf("append value is not a list")
	}
	cur, found := lookup(doc, segs)
	var list []any
	if found && cur != nil {
		if list, ok = cur.([]any); !ok {
			return fmt.Errorf("append target is not a list")
		}
	}
	out := make([]any, 0, len(list)+len(add))
	out = append(out, list...)
	out = append(out, add...)
	return assign(doc, segs, out)
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
