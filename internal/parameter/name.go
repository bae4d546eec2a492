package parameter

import (
	"fmt"
	"strconv"
	"strings"
)

// Roots of the fully-qualified namespace.
const (
	RootParameter = "$parameter"
	RootVariables = "$variables"
	RootDomain    = "$domain"
)

// IsReference reports whether s is a "$..." reference rather than a literal.
func IsReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

// segment is one dotted path component, optionally followed by one or more
// index accessors: "value_range[0]" -> {key: "value_range", index: [0]}.
type segment struct {
	key   string
	index []int
}

type name struct {
	root string
	path []segment
}

func (n name) String() string {
	var b strings.Builder
	b.WriteString(n.root)
	for _, s := range n.path {
		b.WriteByte('.')
		b.WriteString(s.key)
		for _, i := range s.index {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(i))
			b.WriteByte(']')
		}
	}
	return b.String()
}

func parseName(s string) (name, error) {
	s = strings.TrimSpace(s)
	if !IsReference(s) {
		return name{}, fmt.Errorf("%w: %q has no $ root", ErrInvalidName, s)
	}

	parts := strings.Split(s, ".")
	n := name{root: parts[0]}
	switch n.root {
	case RootParameter, RootVariables, RootDomain:
	default:
		return name{}, fmt.Errorf("%w: unknown root %q in %q", ErrInvalidName, n.root, s)
	}

	for _, p := range parts[1:] {
		seg, err := parseSegment(p)
		if err != nil {
			return name{}, fmt.Errorf("%w: %q: %v", ErrInvalidName, s, err)
		}
		n.path = append(n.path, seg)
	}
	return n, nil
}

func parseSegment(p string) (segment, error) {
	if p == "" {
		return segment{}, fmt.Errorf("empty path segment")
	}
	open := strings.IndexByte(p, '[')
	if open < 0 {
		return segment{key: p}, nil
	}
	if open == 0 {
		return segment{}, fmt.Errorf("segment %q has no key", p)
	}

	seg := segment{key: p[:open]}
	rest := p[open:]
	for rest != "" {
		if rest[0] != '[' {
			return segment{}, fmt.Errorf("unexpected %q in segment %q", rest, p)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return segment{}, fmt.Errorf("unterminated index in segment %q", p)
		}
		i, err := strconv.Atoi(rest[1:end])
		if err != nil || i < 0 {
			return segment{}, fmt.Errorf("bad index %q in segment %q", rest[1:end], p)
		}
		seg.index = append(seg.index, i)
		rest = rest[end+1:]
	}
	return seg, nil
}
