// Package fieldpath converts between human-readable field paths and
// structured paths, and reads or writes values at a path inside arbitrarily
// nested containers. The string form uses '.' between name segments and
// '[n]' for indexed segments, e.g. "addresses[0].street".
//
// All functions are total: malformed paths degrade to best-effort traversal
// and never panic.
package fieldpath

import (
	"reflect"
	"strconv"
	"strings"
)

// Segment addresses one step into a nested container: either an object key
// or a non-negative slice index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Name returns a key segment.
func Name(key string) Segment { return Segment{Key: key} }

// Index returns an indexed segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Path is an ordered sequence of segments. The empty Path addresses the
// root value itself.
type Path []Segment

// Parse converts the string form of a field path into a Path. Numeric-looking
// name segments become indexed segments ("a.0.b" parses the same as "a[0].b").
// The empty string parses to the empty Path.
func Parse(s string) Path {
	if s == "" {
		return Path{}
	}
	p := make(Path, 0, 4)
	for _, part := range strings.Split(s, ".") {
		p = appendPart(p, part)
	}
	return p
}

func appendPart(p Path, part string) Path {
	if part == "" {
		// Tolerate leading, trailing, and doubled dots.
		return p
	}

	head := part
	rest := ""
	if i := strings.IndexByte(part, '['); i >= 0 {
		head, rest = part[:i], part[i:]
	}

	if head != "" {
		if n, err := strconv.Atoi(head); err == nil && n >= 0 {
			p = append(p, Index(n))
		} else {
			p = append(p, Name(head))
		}
	}

	for rest != "" {
		if rest[0] != '[' {
			p = append(p, Name(rest))
			break
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			// Unterminated bracket: keep the text as a name segment.
			p = append(p, Name(rest))
			break
		}
		inner := rest[1:end]
		if n, err := strconv.Atoi(inner); err == nil && n >= 0 {
			p = append(p, Index(n))
		} else {
			p = append(p, Name(inner))
		}
		rest = rest[end+1:]
	}
	return p
}

// String renders the canonical string form of the path. Indexed segments
// render as "[n]" with no preceding dot; name segments after the first are
// preceded by '.'.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// Equal reports whether two paths address the same location.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Get walks the path segment by segment and returns the addressed value.
// It returns false as soon as an intermediate value is nil or not a container
// of the right shape. The empty path returns the root itself.
func Get(root any, p Path) (any, bool) {
	current := root
	for _, seg := range p {
		if current == nil {
			return nil, false
		}
		if seg.IsIndex {
			if seg.Index < 0 {
				return nil, false
			}
			switch c := current.(type) {
			case []any:
				if seg.Index >= len(c) {
					return nil, false
				}
				current = c[seg.Index]
			default:
				rv := reflect.ValueOf(current)
				if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
					return nil, false
				}
				if seg.Index >= rv.Len() {
					return nil, false
				}
				current = rv.Index(seg.Index).Interface()
			}
			continue
		}
		switch c := current.(type) {
		case map[string]any:
			v, ok := c[seg.Key]
			if !ok {
				return nil, false
			}
			current = v
		default:
			rv := reflect.ValueOf(current)
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			mv := rv.MapIndex(reflect.ValueOf(seg.Key))
			if !mv.IsValid() {
				return nil, false
			}
			current = mv.Interface()
		}
	}
	return current, true
}

// Set writes a value at the path, auto-vivifying missing or non-container
// intermediates: a slice when the next segment is indexed, a map otherwise.
// Because Go slices may be reallocated while growing, Set returns the
// (possibly replaced) root; callers addressing into a map root always get
// the same map back. The empty path is a no-op: the root cannot be replaced
// in place.
func Set(root any, p Path, value any) any {
	if len(p) == 0 {
		return root
	}
	return setRec(root, p, value)
}

func setRec(current any, p Path, value any) any {
	seg := p[0]
	if seg.IsIndex {
		if seg.Index < 0 {
			// Unaddressable position: skip the write.
			return current
		}
		s, ok := current.([]any)
		if !ok || s == nil {
			s = make([]any, 0, seg.Index+1)
		}
		for len(s) <= seg.Index {
			s = append(s, nil)
		}
		if len(p) == 1 {
			s[seg.Index] = value
		} else {
			s[seg.Index] = setRec(s[seg.Index], p[1:], value)
		}
		return s
	}

	m, ok := current.(map[string]any)
	if !ok || m == nil {
		m = make(map[string]any)
	}
	if len(p) == 1 {
		m[seg.Key] = value
	} else {
		m[seg.Key] = setRec(m[seg.Key], p[1:], value)
	}
	return m
}

// GetAtPath is Get applied to the string form of a path.
func GetAtPath(root any, path string) (any, bool) {
	return Get(root, Parse(path))
}

// SetAtPath is Set applied to the string form of a path.
func SetAtPath(root any, path string, value any) any {
	return Set(root, Parse(path), value)
}
